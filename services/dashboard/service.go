// Package dashboard aggregates disbursement records from the partner
// portals, caches them per month and serves the analytics the
// dashboard UI renders.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"lenddash-backend/lib/refreshcache"
	"lenddash-backend/lib/scrapers/crm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/dashboard")

const DefaultCacheTTL = time.Second * 60

// Adapter is one partner portal's scrape-and-normalize procedure.
// *sources.Source implements it.
type Adapter interface {
	SourceTag() string
	Fetch(ctx context.Context, year int, month time.Month) ([]crm.Record, error)
}

// Targets are the monthly disbursement goals per source, in rupees.
type Targets struct {
	ELI float64 `json:"eli"`
	NBL float64 `json:"nbl"`
	CP  float64 `json:"cp"`
	LR  float64 `json:"lr"`
}

func DefaultTargets() Targets {
	return Targets{
		ELI: 42_500_000, // ₹4.25 Cr
		NBL: 50_000_000, // ₹5 Cr
		CP:  50_000_000, // ₹5 Cr
		LR:  50_000_000, // ₹5 Cr
	}
}

type Options struct {
	// Sources in combiner concatenation order. Usually sources.ForConfig.
	Sources []Adapter
	// CacheTTL defaults to DefaultCacheTTL when zero.
	CacheTTL time.Duration
	// Targets defaults to DefaultTargets when zero.
	Targets Targets
}

type Service struct {
	sources []Adapter
	cache   *refreshcache.Cache[crm.Record]
	ttl     time.Duration
	targets Targets
}

func NewService(opts Options) *Service {
	if opts.CacheTTL == 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Targets == (Targets{}) {
		opts.Targets = DefaultTargets()
	}
	return &Service{
		sources: opts.Sources,
		cache:   refreshcache.New[crm.Record](opts.CacheTTL),
		ttl:     opts.CacheTTL,
		targets: opts.Targets,
	}
}

// GetCached returns the best available records for the month without
// blocking, starting a background refresh when needed. The error
// string is "" when the entry is fresh and healthy.
func (s *Service) GetCached(year int, month time.Month) ([]crm.Record, string) {
	key := refreshcache.Key{Year: year, Month: month}
	return s.cache.Get(key, s.fetchFunc(year, month))
}

// KickoffRefresh starts a background refresh for the month unless one
// is already running.
func (s *Service) KickoffRefresh(year int, month time.Month) {
	key := refreshcache.Key{Year: year, Month: month}
	s.cache.Kickoff(key, s.fetchFunc(year, month))
}

// Entry exposes the cache entry snapshot for status routes.
func (s *Service) Entry(year int, month time.Month) refreshcache.Entry[crm.Record] {
	return s.cache.Entry(refreshcache.Key{Year: year, Month: month})
}

// ClearCache drops every cached month.
func (s *Service) ClearCache() {
	s.cache.Clear()
}

func (s *Service) CacheTTL() time.Duration {
	return s.ttl
}

func (s *Service) fetchFunc(year int, month time.Month) refreshcache.FetchFunc[crm.Record] {
	// refreshes outlive the request that triggered them, so they run
	// on a background context
	return func() ([]crm.Record, error) {
		return s.fetchCombined(context.Background(), year, month)
	}
}

// fetchCombined fans out to every source in parallel and combines the
// results: fixed source order, rows lacking a date or amount dropped,
// credit_by trimmed. Any source failing fails the whole fetch.
func (s *Service) fetchCombined(ctx context.Context, year int, month time.Month) ([]crm.Record, error) {
	ctx, span := tracer.Start(ctx, "fetchCombined")
	defer span.End()
	span.SetAttributes(
		attribute.Int("year", year),
		attribute.Int("month", int(month)),
	)

	results := make([][]crm.Record, len(s.sources))
	errs := make([]error, len(s.sources))

	wg := sync.WaitGroup{}
	for i, src := range s.sources {
		i, src := i, src
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = src.Fetch(ctx, year, month)
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var combined []crm.Record
	counts := make([]int, len(s.sources))
	for i, records := range results {
		for _, r := range records {
			if r.DisbursalDate.IsZero() || r.LoanAmount == nil {
				continue
			}
			r.CreditBy = strings.Trim(r.CreditBy, " ")
			combined = append(combined, r)
			counts[i]++
		}
	}

	logAttrs := []any{"year", year, "month", int(month), "total", len(combined)}
	for i, src := range s.sources {
		logAttrs = append(logAttrs, src.SourceTag(), counts[i])
	}
	slog.Info("combined disbursed rows", logAttrs...)

	return combined, nil
}
