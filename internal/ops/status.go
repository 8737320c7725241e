package ops

import (
	"context"

	"github.com/hpungsan/oltdash/internal/cache"
)

// StatusInput contains parameters for the Status operation.
type StatusInput struct {
	// Refresh marks the cached dataset stale and reloads it before reporting.
	Refresh bool
}

// StatusOutput reports the state of the cached dataset.
type StatusOutput struct {
	cache.Stats
	Warning string `json:"warning,omitempty"`
}

// Status returns cache statistics, optionally forcing a reload first.
func (p *Pipeline) Status(ctx context.Context, input StatusInput) (*StatusOutput, error) {
	out := &StatusOutput{}
	if input.Refresh {
		p.cache.Invalidate()
		out.Warning = p.selectRows(ctx, "").warning
	}
	out.Stats = p.cache.Stats()
	return out, nil
}
