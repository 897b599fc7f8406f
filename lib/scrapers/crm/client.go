// Package crm logs into partner lending portals and scrapes their
// disbursement report tables. Every portal speaks a slightly
// different dialect of "HTML admin panel", so the client works off
// heuristics: first login form, hidden fields carried verbatim,
// credential fields matched by name.
package crm

import (
	"bytes"
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"lenddash-backend/lib/chrono"
	"lenddash-backend/lib/htmlutil"
	"lenddash-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lib/scrapers/crm")

var (
	ErrMissingCredentials = fmt.Errorf("credentials not configured")
	ErrLoginFailed        = fmt.Errorf("login failed")
)

const (
	// a page with fewer rows than this is the last page
	pageSize = 10
	// runaway-pagination guard
	maxPages = 50

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
)

type ClientOptions struct {
	// Label tags log lines and errors, e.g. "ELI".
	Label    string
	LoginURL string
	DataURL  string
	Username string
	Password string
	// Locator defaults to FirstForm.
	Locator FormLocator
}

type Client struct {
	opts     ClientOptions
	loginURL *url.URL
	http     *resty.Client
}

func NewClient(opts ClientOptions) (*Client, error) {
	loginURL, err := url.Parse(opts.LoginURL)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid login url: %w", opts.Label, err)
	}
	if opts.Locator == nil {
		opts.Locator = FirstForm{}
	}

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", userAgent)
	client.SetHeader("accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	client.SetTimeout(time.Second * 90)

	telemetry.InstrumentResty(client, "scrapers/crm/http")

	return &Client{
		opts:     opts,
		loginURL: loginURL,
		http:     client,
	}, nil
}

// Login authenticates against the portal: fetch the login page,
// locate the form, inject credentials into the heuristically resolved
// fields and submit. Landing back on a login page counts as failure.
func (c *Client) Login(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()
	span.SetAttributes(attribute.String("portal", c.opts.Label))

	if c.opts.Username == "" || c.opts.Password == "" {
		err := fmt.Errorf("%s: %w", c.opts.Label, ErrMissingCredentials)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	res, err := c.http.R().
		SetContext(ctx).
		Get(c.opts.LoginURL)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch login page")
		return fmt.Errorf("%s: fetch login page: %w", c.opts.Label, err)
	}
	if res.IsError() {
		span.SetStatus(codes.Error, "login page returned error status")
		return fmt.Errorf("%s: login page returned %s", c.opts.Label, res.Status())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return fmt.Errorf("%s: parse login page: %w", c.opts.Label, err)
	}

	form, err := c.opts.Locator.Locate(doc)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%s: %w", c.opts.Label, err)
	}

	usernameField, passwordField, err := form.CredentialFields()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%s: %w", c.opts.Label, err)
	}
	span.SetAttributes(
		attribute.String("username_field", usernameField),
		attribute.String("password_field", passwordField),
	)

	res, err = c.http.R().
		SetContext(ctx).
		SetHeader("referer", c.opts.LoginURL).
		SetFormData(form.SubmitData(
			usernameField, passwordField,
			c.opts.Username, c.opts.Password,
		)).
		Post(form.ResolveAction(c.loginURL))
	if err != nil {
		span.SetStatus(codes.Error, "failed to submit login form")
		return fmt.Errorf("%s: submit login form: %w", c.opts.Label, err)
	}
	if res.IsError() {
		span.SetStatus(codes.Error, "login submission returned error status")
		return fmt.Errorf("%s: login returned %s", c.opts.Label, res.Status())
	}

	finalURL := strings.ToLower(res.RawResponse.Request.URL.String())
	if strings.Contains(finalURL, "login") && !strings.Contains(finalURL, "dashboard") {
		span.SetStatus(codes.Error, ErrLoginFailed.Error())
		return fmt.Errorf("%s: %w (final url=%s)", c.opts.Label, ErrLoginFailed, finalURL)
	}

	return nil
}

// FetchDateRange retrieves the disbursement report by posting a
// date-range search to the data page, the way the ELI/NBL portals
// expect. Returns raw header->cell rows; nil when the response has no
// table.
func (c *Client) FetchDateRange(ctx context.Context, start, end chrono.Date) ([]map[string]string, error) {
	ctx, span := tracer.Start(ctx, "client:FetchDateRange")
	defer span.End()
	span.SetAttributes(
		attribute.String("portal", c.opts.Label),
		attribute.String("start", start.String()),
		attribute.String("end", end.String()),
	)

	// visit the page once so the portal seeds any report cookies
	_, err := c.http.R().SetContext(ctx).Get(c.opts.DataURL)
	if err != nil {
		span.SetStatus(codes.Error, "failed to visit data page")
		return nil, fmt.Errorf("%s: visit data page: %w", c.opts.Label, err)
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("referer", c.opts.DataURL).
		SetFormData(map[string]string{
			"startDate": fmt.Sprintf("%02d-%02d-%04d", start.Day, start.Month, start.Year),
			"endDate":   fmt.Sprintf("%02d-%02d-%04d", end.Day, end.Month, end.Year),
			"submit":    "Search",
		}).
		Post(c.opts.DataURL)
	if err != nil {
		span.SetStatus(codes.Error, "report request failed")
		return nil, fmt.Errorf("%s: report request: %w", c.opts.Label, err)
	}
	if res.IsError() {
		span.SetStatus(codes.Error, "report returned error status")
		return nil, fmt.Errorf("%s: report returned %s", c.opts.Label, res.Status())
	}

	rows, err := tableRows(res.Body())
	if err != nil {
		return nil, fmt.Errorf("%s: parse report: %w", c.opts.Label, err)
	}
	span.SetAttributes(attribute.Int("rows", len(rows)))
	return rows, nil
}

// FetchPaginated walks the report list page by page with a
// "this month" filter, the way the CP/LR portals paginate. Stops on a
// short or empty page, capped at maxPages.
func (c *Client) FetchPaginated(ctx context.Context) ([]map[string]string, error) {
	ctx, span := tracer.Start(ctx, "client:FetchPaginated")
	defer span.End()
	span.SetAttributes(attribute.String("portal", c.opts.Label))

	var all []map[string]string
	for page := 1; page <= maxPages; page++ {
		res, err := c.http.R().
			SetContext(ctx).
			SetQueryParam("filter", "this_month").
			SetQueryParam("page", strconv.Itoa(page)).
			Get(c.opts.DataURL)
		if err != nil {
			span.SetStatus(codes.Error, "report page request failed")
			return nil, fmt.Errorf("%s: report page %d: %w", c.opts.Label, page, err)
		}
		if res.IsError() {
			span.SetStatus(codes.Error, "report page returned error status")
			return nil, fmt.Errorf("%s: report page %d returned %s", c.opts.Label, page, res.Status())
		}

		rows, err := tableRows(res.Body())
		if err != nil {
			return nil, fmt.Errorf("%s: parse report page %d: %w", c.opts.Label, page, err)
		}

		all = append(all, rows...)
		if len(rows) < pageSize {
			break
		}
	}

	span.SetAttributes(attribute.Int("rows", len(all)))
	return all, nil
}

func tableRows(body []byte) ([]map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	return htmlutil.TableRows(doc), nil
}
