// Package refreshcache provides a per-month TTL cache that serves
// whatever it currently holds without blocking and refreshes entries
// in the background, guaranteeing at most one in-flight refresh per
// key.
package refreshcache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lib/refreshcache")

const (
	// ErrWarmingUp is surfaced while a key has never completed a fetch.
	ErrWarmingUp = "warming_up"
	// ErrStale is surfaced when an entry is past its TTL and a refresh
	// is running (or was just started) behind the caller's back.
	ErrStale = "stale"
)

// Key identifies one cached month of data.
type Key struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

func (k Key) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, k.Month)
}

// FetchFunc produces the full record set for a key. It runs on a
// background goroutine and may block on network I/O.
type FetchFunc[T any] func() ([]T, error)

// Entry is a read-only snapshot of a cache entry.
type Entry[T any] struct {
	Timestamp  time.Time
	Records    []T
	Error      string
	Refreshing bool
}

type entry[T any] struct {
	timestamp  time.Time
	records    []T
	err        string
	refreshing bool
}

type Cache[T any] struct {
	ttl time.Duration

	// mu guards both maps and every entry field. it is only ever held
	// for map/flag work, never across a fetch.
	mu      sync.Mutex
	entries map[Key]*entry[T]
	locks   map[Key]*sync.Mutex
}

func New[T any](ttl time.Duration) *Cache[T] {
	return &Cache[T]{
		ttl:     ttl,
		entries: map[Key]*entry[T]{},
		locks:   map[Key]*sync.Mutex{},
	}
}

// Get returns the best available data for key without ever blocking
// on the fetch:
//
//   - fresh entry: its records and its error, even if that error is
//     from a failed refresh (errors are not retried until the TTL
//     expires).
//   - stale entry: the stored records immediately, plus a background
//     refresh if none is running. The stored error is kept, or
//     "stale" when there is none.
//   - unknown key: empty records and "warming_up", with a refresh
//     started and a placeholder installed.
//
// Fetch failures never surface here as a Go error, only through the
// error string of later calls.
func (c *Cache[T]) Get(key Key, fetch FetchFunc[T]) ([]T, string) {
	c.mu.Lock()
	e, ok := c.entries[key]

	if ok && time.Since(e.timestamp) < c.ttl {
		records, errStr := e.records, e.err
		c.mu.Unlock()
		if errStr != "" {
			slog.Warn("cache hit with previous error", "key", key, "err", errStr)
		}
		return records, errStr
	}

	if ok {
		records, errStr, refreshing := e.records, e.err, e.refreshing
		c.mu.Unlock()
		if !refreshing {
			c.Kickoff(key, fetch)
		}
		if errStr == "" {
			errStr = ErrStale
		}
		return records, errStr
	}

	c.mu.Unlock()
	c.Kickoff(key, fetch)
	return nil, ErrWarmingUp
}

// Kickoff ensures exactly one background refresh is running for key.
// If one is already in flight this is a no-op.
func (c *Cache[T]) Kickoff(key Key, fetch FetchFunc[T]) {
	kl := c.keyLock(key)
	kl.Lock()

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && e.refreshing {
		c.mu.Unlock()
		kl.Unlock()
		return
	}
	if !ok {
		c.entries[key] = &entry[T]{err: ErrWarmingUp, refreshing: true}
	} else {
		e.refreshing = true
	}
	c.mu.Unlock()
	kl.Unlock()

	go c.refresh(key, fetch)
}

// Entry returns a snapshot of the entry for key, for status routes.
// The records slice is copied so callers can serialize it without
// racing a refresh.
func (c *Cache[T]) Entry(key Key) Entry[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Entry[T]{}
	}
	records := make([]T, len(e.records))
	copy(records, e.records)
	return Entry[T]{
		Timestamp:  e.timestamp,
		Records:    records,
		Error:      e.err,
		Refreshing: e.refreshing,
	}
}

// Clear drops every entry and every per-key lock. The next access for
// any key behaves as cold.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[Key]*entry[T]{}
	c.locks = map[Key]*sync.Mutex{}
}

func (c *Cache[T]) keyLock(key Key) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[key] = lock
	}
	return lock
}

func (c *Cache[T]) refresh(key Key, fetch FetchFunc[T]) {
	_, span := tracer.Start(context.Background(), "refresh")
	defer span.End()
	span.SetAttributes(attribute.String("key", key.String()))

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("background refresh panicked", "key", key, "panic", r)
		}
		// an entry must never stay stuck in refreshing, even if the
		// fetch or the write-back panicked
		c.mu.Lock()
		if e, ok := c.entries[key]; ok {
			e.refreshing = false
		}
		c.mu.Unlock()
	}()

	slog.Info("background refresh start", "key", key)

	records, err := fetch()
	errStr := ""
	if err != nil {
		// a failed refresh replaces previously cached records, it does
		// not preserve them
		errStr = err.Error()
		records = nil
		span.RecordError(err)
		span.SetStatus(codes.Error, errStr)
		slog.Error("background refresh failed", "key", key, "err", errStr)
	}

	c.mu.Lock()
	c.entries[key] = &entry[T]{
		timestamp:  time.Now(),
		records:    records,
		err:        errStr,
		refreshing: false,
	}
	c.mu.Unlock()

	slog.Info(
		"background refresh finished",
		"key", key,
		"elapsed", time.Since(started).Round(time.Millisecond*10),
		"rows", len(records),
		"err", errStr,
	)
}
