package crm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"lenddash-backend/lib/chrono"

	"github.com/stretchr/testify/require"
)

// fakePortal mimics the shape of a partner admin panel: a login page
// with a csrf-protected form, a session cookie, and a report page.
type fakePortal struct {
	mux      *http.ServeMux
	server   *httptest.Server
	username string
	password string

	reportHTML   string
	loginCount   int
	reportedPage map[int]bool
}

func newFakePortal(t *testing.T) *fakePortal {
	p := &fakePortal{
		username:     "ops",
		password:     "s3cret",
		reportedPage: map[int]bool{},
	}
	p.mux = http.NewServeMux()
	p.server = httptest.NewServer(p.mux)
	t.Cleanup(p.server.Close)

	p.mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<form action="/doLogin">
				<input type="hidden" name="csrf_token" value="tok-1">
				<input type="text" name="userName">
				<input type="password" name="password">
			</form>
		</body></html>`)
	})
	p.mux.HandleFunc("/doLogin", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.FormValue("csrf_token") != "tok-1" ||
			r.FormValue("userName") != p.username ||
			r.FormValue("password") != p.password {
			http.Redirect(w, r, "/login?error=incorrect", http.StatusFound)
			return
		}
		p.loginCount++
		http.SetCookie(w, &http.Cookie{Name: "sess", Value: "ok"})
		http.Redirect(w, r, "/dashboard", http.StatusFound)
	})
	p.mux.HandleFunc("/dashboard", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>welcome</body></html>`)
	})
	p.mux.HandleFunc("/report", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("sess"); err != nil || c.Value != "ok" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		if r.Method == http.MethodGet && r.URL.Query().Get("page") != "" {
			page, _ := strconv.Atoi(r.URL.Query().Get("page"))
			p.reportedPage[page] = true
			fmt.Fprint(w, p.pageHTML(page))
			return
		}
		fmt.Fprint(w, p.reportHTML)
	})

	return p
}

// three pages: 10 + 10 + 3 rows
func (p *fakePortal) pageHTML(page int) string {
	rowCount := 10
	if page >= 3 {
		rowCount = 3
	}
	if page > 3 {
		rowCount = 0
	}
	var rows strings.Builder
	for i := 0; i < rowCount; i++ {
		fmt.Fprintf(&rows,
			"<tr><td>0%d-02-2026</td><td>CM %d</td><td>1,000</td></tr>",
			(i%9)+1, (page-1)*10+i,
		)
	}
	return fmt.Sprintf(`<html><body><table>
		<thead><tr><th>Disbursal Date</th><th>Credit By</th><th>Loan Amount</th></tr></thead>
		<tbody>%s</tbody>
	</table></body></html>`, rows.String())
}

func (p *fakePortal) clientOptions(label string) ClientOptions {
	return ClientOptions{
		Label:    label,
		LoginURL: p.server.URL + "/login",
		DataURL:  p.server.URL + "/report",
		Username: p.username,
		Password: p.password,
	}
}

func TestLoginSuccess(t *testing.T) {
	portal := newFakePortal(t)

	client, err := NewClient(portal.clientOptions("ELI"))
	require.NoError(t, err)
	require.NoError(t, client.Login(context.Background()))
	require.Equal(t, 1, portal.loginCount)
}

func TestLoginBadCredentials(t *testing.T) {
	portal := newFakePortal(t)
	opts := portal.clientOptions("ELI")
	opts.Password = "wrong"

	client, err := NewClient(opts)
	require.NoError(t, err)

	err = client.Login(context.Background())
	require.ErrorIs(t, err, ErrLoginFailed)
}

func TestLoginMissingCredentials(t *testing.T) {
	portal := newFakePortal(t)
	opts := portal.clientOptions("CP")
	opts.Username = ""

	client, err := NewClient(opts)
	require.NoError(t, err)

	err = client.Login(context.Background())
	require.ErrorIs(t, err, ErrMissingCredentials)
}

func TestLoginNoForm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>down for maintenance</body></html>`)
	}))
	defer server.Close()

	client, err := NewClient(ClientOptions{
		Label:    "NBL",
		LoginURL: server.URL + "/",
		DataURL:  server.URL + "/report",
		Username: "u",
		Password: "p",
	})
	require.NoError(t, err)

	err = client.Login(context.Background())
	require.ErrorIs(t, err, ErrNoLoginForm)
}

func TestFetchDateRange(t *testing.T) {
	portal := newFakePortal(t)
	portal.reportHTML = `<html><body><table id="example2">
		<thead><tr><th>Disbursal Date</th><th>Credit By</th><th>Loan Amount</th></tr></thead>
		<tbody>
			<tr><td>07-02-2026 05:24:07 PM</td><td>Asha</td><td>1,23,456.50</td></tr>
			<tr><td>08-02-2026</td><td>Ravi</td><td>2,000</td></tr>
		</tbody>
	</table></body></html>`

	client, err := NewClient(portal.clientOptions("ELI"))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, client.Login(ctx))

	rows, err := client.FetchDateRange(ctx,
		chrono.Date{Year: 2026, Month: 2, Day: 1},
		chrono.Date{Year: 2026, Month: 2, Day: 28},
	)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "Asha", rows[0]["Credit By"])
	require.Equal(t, "1,23,456.50", rows[0]["Loan Amount"])
}

func TestFetchDateRangeNoTable(t *testing.T) {
	portal := newFakePortal(t)
	portal.reportHTML = `<html><body><p>No records found.</p></body></html>`

	client, err := NewClient(portal.clientOptions("NBL"))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, client.Login(ctx))

	// an empty report is a valid response, not an error
	rows, err := client.FetchDateRange(ctx,
		chrono.Date{Year: 2026, Month: 2, Day: 1},
		chrono.Date{Year: 2026, Month: 2, Day: 28},
	)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestFetchPaginatedStopsOnShortPage(t *testing.T) {
	portal := newFakePortal(t)

	client, err := NewClient(portal.clientOptions("CP"))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, client.Login(ctx))

	rows, err := client.FetchPaginated(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 23)
	require.True(t, portal.reportedPage[3])
	require.False(t, portal.reportedPage[4])
}
