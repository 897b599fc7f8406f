package crm

import (
	"fmt"
	"net/url"
	"strings"

	"lenddash-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

var (
	ErrNoLoginForm        = fmt.Errorf("no login form on page")
	ErrNoCredentialFields = fmt.Errorf("could not determine username/password fields")
)

type FormInput struct {
	Name  string
	Type  string
	Value string
}

// LoginForm is one <form> lifted out of a portal's login page. Values
// of hidden inputs (csrf tokens and friends) are carried verbatim
// into the submission.
type LoginForm struct {
	Action string
	Inputs []FormInput
}

// FormLocator finds the login form on a portal's login page. Portals
// differ in how many forms the page carries, so each portal picks a
// strategy instead of branching inline.
type FormLocator interface {
	Locate(doc *goquery.Document) (LoginForm, error)
}

// FirstForm takes the first <form> on the page. Works for every
// portal whose login page is just a login page.
type FirstForm struct{}

func (FirstForm) Locate(doc *goquery.Document) (LoginForm, error) {
	sel := doc.Find("form").First()
	if sel.Length() == 0 {
		return LoginForm{}, ErrNoLoginForm
	}
	return formFromSelection(sel), nil
}

// ActionForm prefers the <form> whose action attribute matches,
// falling back to the first form. Used for portals that render
// several forms (search bars, newsletter boxes) on the login page.
type ActionForm struct {
	Action string
}

func (f ActionForm) Locate(doc *goquery.Document) (LoginForm, error) {
	sel := doc.Find(fmt.Sprintf(`form[action=%q]`, f.Action)).First()
	if sel.Length() == 0 {
		return FirstForm{}.Locate(doc)
	}
	return formFromSelection(sel), nil
}

func formFromSelection(sel *goquery.Selection) LoginForm {
	form := LoginForm{
		Action: sel.AttrOr("action", ""),
	}
	sel.Find("input").Each(func(_ int, inp *goquery.Selection) {
		name := inp.AttrOr("name", "")
		if name == "" {
			return
		}
		form.Inputs = append(form.Inputs, FormInput{
			Name:  name,
			Type:  strings.ToLower(inp.AttrOr("type", "")),
			Value: inp.AttrOr("value", ""),
		})
	})
	return form
}

// ResolveAction makes the form action absolute against the login page
// URL. An empty action submits back to the login page itself.
func (f LoginForm) ResolveAction(loginURL *url.URL) string {
	if f.Action == "" {
		return loginURL.String()
	}
	ref, err := url.Parse(f.Action)
	if err != nil {
		return loginURL.String()
	}
	return loginURL.ResolveReference(ref).String()
}

// usernameTokens are the name fragments that mark an input as the
// username field, checked case-insensitively as substrings.
var usernameTokens = []string{
	"user", "email", "login", "employee", "userid", "username", "employeeid",
}

type fieldRole int

const (
	roleUsername fieldRole = iota
	rolePassword
)

// credentialRules are evaluated in priority order against every
// input; the first input matching a rule wins that rule's role. The
// order makes the tie-breaks explicit: an input typed password is
// never mistaken for a username no matter what it is named.
var credentialRules = []struct {
	role  fieldRole
	match func(in FormInput) bool
}{
	{rolePassword, func(in FormInput) bool { return in.Type == "password" }},
	{rolePassword, func(in FormInput) bool {
		return textutil.MatchName(in.Name, []string{"pass"})
	}},
	{roleUsername, func(in FormInput) bool {
		return in.Type != "password" && textutil.MatchName(in.Name, usernameTokens)
	}},
	{roleUsername, func(in FormInput) bool { return in.Type == "text" }},
}

// CredentialFields picks the input names that should receive the
// username and the password.
func (f LoginForm) CredentialFields() (username string, password string, err error) {
	for _, rule := range credentialRules {
		for _, in := range f.Inputs {
			if !rule.match(in) {
				continue
			}
			switch rule.role {
			case roleUsername:
				if username == "" {
					username = in.Name
				}
			case rolePassword:
				if password == "" {
					password = in.Name
				}
			}
			break
		}
	}

	if username == "" || password == "" {
		return "", "", fmt.Errorf(
			"%w (username=%q, password=%q)",
			ErrNoCredentialFields, username, password,
		)
	}
	if username == password {
		return "", "", fmt.Errorf("%w (single candidate %q)", ErrNoCredentialFields, username)
	}
	return username, password, nil
}

// SubmitData builds the form payload: every named input keeps its
// page-rendered value, then the credentials overwrite their resolved
// fields.
func (f LoginForm) SubmitData(usernameField, passwordField, username, password string) map[string]string {
	data := make(map[string]string, len(f.Inputs)+2)
	for _, in := range f.Inputs {
		data[in.Name] = in.Value
	}
	data[usernameField] = username
	data[passwordField] = password
	return data
}
