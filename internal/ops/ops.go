package ops

import (
	"context"
	"time"

	"github.com/hpungsan/oltdash/internal/cache"
	"github.com/hpungsan/oltdash/internal/errors"
	"github.com/hpungsan/oltdash/internal/source"
	"github.com/hpungsan/oltdash/internal/table"
)

// Pagination limits
const (
	DefaultRowLimit = 200
	MaxRowLimit     = 5000
)

// User-facing warnings. Causes are logged by the cache, not shown.
const (
	WarnStale    = "Could not refresh data from the source. Showing the last data loaded."
	WarnNoData   = "Could not load data. Check that the spreadsheet contains data."
	WarnCanceled = "The request ended before fresh data was available."
)

// Pagination contains pagination metadata for row listings.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// Pipeline runs Cache → Filter → Aggregate for every interaction.
type Pipeline struct {
	cache *cache.Cache
}

// NewPipeline builds a pipeline whose cache refreshes from src.
func NewPipeline(src source.RowSource, opts cache.Options) *Pipeline {
	refresh := func(ctx context.Context) (*table.Table, error) {
		recs, err := src.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		return table.Normalize(recs), nil
	}
	return &Pipeline{cache: cache.New(refresh, opts)}
}

// Cache returns the pipeline's cache.
func (p *Pipeline) Cache() *cache.Cache {
	return p.cache
}

// selection is one filtered view of one snapshot.
type selection struct {
	snap     *cache.Snapshot
	filtered *table.Table
	warning  string
}

// selectRows fetches (or reuses) the snapshot and filters it. It never fails:
// a refresh error becomes a warning next to whatever snapshot is available.
func (p *Pipeline) selectRows(ctx context.Context, query string) selection {
	snap, err := p.cache.Get(ctx)

	sel := selection{
		snap:     snap,
		filtered: table.Filter(snap.Table, query),
	}
	switch {
	case err == nil:
	case ctx.Err() != nil:
		sel.warning = WarnCanceled
	case snap.ID != "":
		sel.warning = WarnStale
	default:
		sel.warning = WarnNoData
	}
	if sel.warning == "" && snap.Table.Len() == 0 {
		sel.warning = WarnNoData
	}
	return sel
}

// fetchedAt returns a pointer to the snapshot time, or nil before any fetch.
func fetchedAt(s *cache.Snapshot) *time.Time {
	if s.ID == "" {
		return nil
	}
	t := s.FetchedAt
	return &t
}

func validatePage(limit, offset int) (int, int, error) {
	if limit < 0 {
		return 0, 0, errors.NewInvalidRequest("limit must not be negative")
	}
	if offset < 0 {
		return 0, 0, errors.NewInvalidRequest("offset must not be negative")
	}
	if limit == 0 {
		limit = DefaultRowLimit
	}
	if limit > MaxRowLimit {
		limit = MaxRowLimit
	}
	return limit, offset, nil
}

func paginate(t *table.Table, limit, offset int) (*table.Table, Pagination) {
	page := t.Slice(offset, limit)
	return page, Pagination{
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+page.Len() < t.Len(),
		Total:   t.Len(),
	}
}
