// Package cache memoizes the canonical table for a freshness window.
package cache

import (
	"context"
	"crypto/rand"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/singleflight"

	"github.com/hpungsan/oltdash/internal/errors"
	"github.com/hpungsan/oltdash/internal/table"
)

// DefaultTTL is used when Options.TTL is not positive.
const DefaultTTL = 600 * time.Second

// RefreshFunc produces a new canonical table.
type RefreshFunc func(ctx context.Context) (*table.Table, error)

// Snapshot is one fetched dataset. Snapshots are never modified after they
// are published.
type Snapshot struct {
	// ID identifies the fetch that produced the snapshot. Empty for the
	// placeholder returned before any fetch has succeeded.
	ID        string
	Table     *table.Table
	FetchedAt time.Time
}

// Options configures a Cache.
type Options struct {
	TTL time.Duration

	// FetchTimeout bounds a single refresh. 0 means no timeout.
	FetchTimeout time.Duration

	// Now defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Hits       int64     `json:"hits"`
	Refreshes  int64     `json:"refreshes"`
	Failures   int64     `json:"failures"`
	LastError  string    `json:"last_error,omitempty"`
	LastReason string    `json:"last_reason,omitempty"`
	FetchID    string    `json:"fetch_id,omitempty"`
	FetchedAt  time.Time `json:"fetched_at,omitzero"`
	AgeSeconds float64   `json:"age_seconds"`
	Rows       int       `json:"rows"`
	Fresh      bool      `json:"fresh"`
}

// Cache holds at most one snapshot and refreshes it on demand once it is
// older than the TTL. It is safe for concurrent use.
type Cache struct {
	refresh RefreshFunc
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	log     *slog.Logger

	group singleflight.Group

	mu        sync.Mutex
	snap      *Snapshot
	stale     bool // set by Invalidate until the next successful refresh
	lastErr   error
	hits      int64
	refreshes int64
	failures  int64
}

// New returns an empty cache that calls refresh to fill itself.
func New(refresh RefreshFunc, opts Options) *Cache {
	c := &Cache{
		refresh: refresh,
		ttl:     opts.TTL,
		timeout: opts.FetchTimeout,
		now:     opts.Now,
		log:     opts.Logger,
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

// Get returns the current snapshot, refreshing it first when it is missing
// or stale.
//
// The returned snapshot is always usable. When the refresh fails, Get
// returns the last good snapshot (or an empty one if there never was one)
// together with the refresh error. When ctx ends before a shared refresh
// completes, Get returns the current snapshot and ctx.Err(); the refresh
// keeps running for the other callers.
func (c *Cache) Get(ctx context.Context) (*Snapshot, error) {
	c.mu.Lock()
	if c.freshLocked() {
		c.hits++
		s := c.snap
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	ch := c.group.DoChan("refresh", func() (any, error) {
		return c.doRefresh(ctx)
	})

	select {
	case res := <-ch:
		return res.Val.(*Snapshot), res.Err
	case <-ctx.Done():
		return c.current(), ctx.Err()
	}
}

func (c *Cache) doRefresh(ctx context.Context) (*Snapshot, error) {
	// A refresh may have completed between the caller's check and DoChan.
	c.mu.Lock()
	if c.freshLocked() {
		s := c.snap
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	rctx := context.WithoutCancel(ctx)
	if c.timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(rctx, c.timeout)
		defer cancel()
	}

	start := c.now()
	t, err := c.refresh(rctx)
	if err != nil {
		c.mu.Lock()
		c.failures++
		c.lastErr = err
		c.mu.Unlock()

		s := c.current()
		c.log.Warn("dataset refresh failed",
			"error", err,
			"serving_fetch_id", s.ID,
		)
		return s, err
	}
	if t == nil {
		t = table.Empty()
	}

	s := &Snapshot{
		ID:        ulid.MustNew(ulid.Timestamp(start), ulid.Monotonic(rand.Reader, 0)).String(),
		Table:     t,
		FetchedAt: c.now(),
	}

	c.mu.Lock()
	c.snap = s
	c.stale = false
	c.lastErr = nil
	c.refreshes++
	c.mu.Unlock()

	c.log.Info("dataset refreshed",
		"fetch_id", s.ID,
		"rows", t.Len(),
		"duration", s.FetchedAt.Sub(start),
	)
	return s, nil
}

// freshLocked reports whether the snapshot can be served without a refresh.
// c.mu must be held.
func (c *Cache) freshLocked() bool {
	return c.snap != nil && !c.stale && c.now().Sub(c.snap.FetchedAt) < c.ttl
}

// current returns the published snapshot or an empty placeholder.
func (c *Cache) current() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap != nil {
		return c.snap
	}
	return &Snapshot{Table: table.Empty()}
}

// Invalidate marks the current snapshot stale so the next Get refreshes.
// The snapshot keeps its fetch time and is still served if that refresh
// fails.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap != nil {
		c.stale = true
	}
}

// Stats reports cache counters and the age of the current snapshot.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Stats{
		Hits:      c.hits,
		Refreshes: c.refreshes,
		Failures:  c.failures,
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
		st.LastReason = errors.Reason(c.lastErr)
	}
	if c.snap != nil {
		age := c.now().Sub(c.snap.FetchedAt)
		st.FetchID = c.snap.ID
		st.FetchedAt = c.snap.FetchedAt
		st.AgeSeconds = age.Seconds()
		st.Rows = c.snap.Table.Len()
		st.Fresh = c.freshLocked()
	}
	return st
}
