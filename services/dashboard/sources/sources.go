// Package sources defines the four partner portal adapters. Each
// adapter logs into its portal, pulls the disbursement report for a
// month window and normalizes the rows into the common record shape.
package sources

import (
	"context"
	"log/slog"
	"time"

	"lenddash-backend/lib/chrono"
	"lenddash-backend/lib/scrapers/crm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/dashboard/sources")

// Source tags, in the fixed order the combiner concatenates them.
const (
	TagELI = "ELI"
	TagNBL = "NBL"
	TagCP  = "CP"
	TagLR  = "LR"
)

var Tags = []string{TagELI, TagNBL, TagCP, TagLR}

// Mode selects how a portal serves its disbursement report.
type Mode int

const (
	// one POST with a start/end date payload
	ModeDateRange Mode = iota
	// page-by-page GETs with a "this month" filter
	ModePaginated
)

// PortalConfig carries one portal's endpoints and credentials.
// Missing credentials are a configuration error at first use, not at
// startup: the dashboard starts fine and the affected source fails
// its refreshes.
type PortalConfig struct {
	LoginURL string `json:"login_url"`
	DataURL  string `json:"data_url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type Source struct {
	Tag      string
	Mode     Mode
	Config   PortalConfig
	Locator  crm.FormLocator
	sessions *sessionCache
}

// ForConfig builds the four adapters in combiner order.
func ForConfig(eli, nbl, cp, lr PortalConfig) []*Source {
	sessions := newSessionCache()
	return []*Source{
		{Tag: TagELI, Mode: ModeDateRange, Config: eli, sessions: sessions},
		{
			Tag: TagNBL, Mode: ModeDateRange, Config: nbl, sessions: sessions,
			// the NBL login page renders a search form above the
			// login form
			Locator: crm.ActionForm{Action: "/admin/login/doLogin"},
		},
		{Tag: TagCP, Mode: ModePaginated, Config: cp, sessions: sessions},
		{Tag: TagLR, Mode: ModePaginated, Config: lr, sessions: sessions},
	}
}

// SourceTag reports the tag stamped on this adapter's records.
func (s *Source) SourceTag() string {
	return s.Tag
}

// Fetch retrieves and normalizes one month of disbursements. Any
// authentication or transport failure aborts the whole invocation;
// an empty report is a successful empty result.
func (s *Source) Fetch(ctx context.Context, year int, month time.Month) ([]crm.Record, error) {
	ctx, span := tracer.Start(ctx, "source:Fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("source", s.Tag),
		attribute.Int("year", year),
		attribute.Int("month", int(month)),
	)

	start, end := chrono.MonthWindow(year, month)
	slog.Info("fetching disbursed data",
		"source", s.Tag, "start", start.String(), "end", end.String())

	raw, err := s.fetchRaw(ctx, start, end)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	records, stats := crm.NormalizeRows(raw, s.Tag, year, month)
	span.SetAttributes(
		attribute.Int("rows_raw", len(raw)),
		attribute.Int("rows_normalized", len(records)),
		attribute.Int("rows_dropped_parse", stats.ParseFailures),
		attribute.Int("rows_dropped_range", stats.OutOfRange),
	)
	slog.Info("normalized disbursed rows",
		"source", s.Tag,
		"raw", len(raw),
		"kept", len(records),
		"dropped_parse", stats.ParseFailures,
		"dropped_out_of_range", stats.OutOfRange,
	)
	return records, nil
}

func (s *Source) fetchRaw(ctx context.Context, start, end chrono.Date) ([]map[string]string, error) {
	client, cached, err := s.sessions.get(ctx, s)
	if err != nil {
		return nil, err
	}

	raw, err := s.fetchWith(ctx, client, start, end)
	if err != nil && cached {
		// the cached session may simply have expired server-side;
		// log in fresh and try once more
		slog.Warn("fetch with cached session failed, retrying with fresh login",
			"source", s.Tag, "err", err)
		s.sessions.evict(s.Tag)

		client, _, err = s.sessions.get(ctx, s)
		if err != nil {
			return nil, err
		}
		raw, err = s.fetchWith(ctx, client, start, end)
	}
	if err != nil {
		s.sessions.evict(s.Tag)
		return nil, err
	}
	return raw, nil
}

func (s *Source) fetchWith(ctx context.Context, client *crm.Client, start, end chrono.Date) ([]map[string]string, error) {
	switch s.Mode {
	case ModePaginated:
		return client.FetchPaginated(ctx)
	default:
		return client.FetchDateRange(ctx, start, end)
	}
}
