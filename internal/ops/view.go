package ops

import (
	"context"
	"time"

	"github.com/hpungsan/oltdash/internal/table"
)

// ViewInput contains parameters for the View operation.
type ViewInput struct {
	Query  string
	Limit  int // default: DefaultRowLimit, max: MaxRowLimit
	Offset int
}

// ViewOutput is everything the dashboard page shows for one query.
// Summary and Chart always cover the whole filtered selection; Rows is
// one page of it.
type ViewOutput struct {
	Query      string             `json:"query"`
	Columns    []string           `json:"columns"`
	Rows       [][]any            `json:"rows"`
	Pagination Pagination         `json:"pagination"`
	Summary    table.Summary      `json:"summary"`
	Chart      []table.GroupCount `json:"chart"`

	// DatasetRows is the size of the unfiltered dataset.
	DatasetRows int        `json:"dataset_rows"`
	FetchID     string     `json:"fetch_id,omitempty"`
	FetchedAt   *time.Time `json:"fetched_at,omitempty"`
	Warning     string     `json:"warning,omitempty"`
}

// View filters the current dataset by query, aggregates the selection and
// returns one page of its rows.
func (p *Pipeline) View(ctx context.Context, input ViewInput) (*ViewOutput, error) {
	limit, offset, err := validatePage(input.Limit, input.Offset)
	if err != nil {
		return nil, err
	}

	sel := p.selectRows(ctx, input.Query)
	summary := table.Aggregate(sel.filtered)
	page, pagination := paginate(sel.filtered, limit, offset)

	return &ViewOutput{
		Query:       input.Query,
		Columns:     page.Columns,
		Rows:        page.Rows,
		Pagination:  pagination,
		Summary:     summary,
		Chart:       summary.ByCount(),
		DatasetRows: sel.snap.Table.Len(),
		FetchID:     sel.snap.ID,
		FetchedAt:   fetchedAt(sel.snap),
		Warning:     sel.warning,
	}, nil
}

// RecordsInput contains parameters for the Records operation.
type RecordsInput struct {
	Query  string
	Limit  int
	Offset int
}

// RecordsOutput is a page of the (filtered) table. With an empty query it is
// the canonical table.
type RecordsOutput struct {
	Query      string     `json:"query"`
	Columns    []string   `json:"columns"`
	Rows       [][]any    `json:"rows"`
	Pagination Pagination `json:"pagination"`
	FetchID    string     `json:"fetch_id,omitempty"`
	FetchedAt  *time.Time `json:"fetched_at,omitempty"`
	Warning    string     `json:"warning,omitempty"`
}

// Records returns one page of the rows matching query.
func (p *Pipeline) Records(ctx context.Context, input RecordsInput) (*RecordsOutput, error) {
	limit, offset, err := validatePage(input.Limit, input.Offset)
	if err != nil {
		return nil, err
	}

	sel := p.selectRows(ctx, input.Query)
	page, pagination := paginate(sel.filtered, limit, offset)

	return &RecordsOutput{
		Query:      input.Query,
		Columns:    page.Columns,
		Rows:       page.Rows,
		Pagination: pagination,
		FetchID:    sel.snap.ID,
		FetchedAt:  fetchedAt(sel.snap),
		Warning:    sel.warning,
	}, nil
}

// SummaryInput contains parameters for the Summary operation.
type SummaryInput struct {
	Query string
}

// SummaryOutput is the per-OLT count of the rows matching query.
type SummaryOutput struct {
	Query       string             `json:"query"`
	Groups      []table.GroupCount `json:"groups"`
	TotalRows   int                `json:"total_rows"`
	TotalGroups int                `json:"total_groups"`
	FetchID     string             `json:"fetch_id,omitempty"`
	FetchedAt   *time.Time         `json:"fetched_at,omitempty"`
	Warning     string             `json:"warning,omitempty"`
}

// Summary aggregates the rows matching query by OLT. Groups are ordered by
// count, largest first.
func (p *Pipeline) Summary(ctx context.Context, input SummaryInput) (*SummaryOutput, error) {
	sel := p.selectRows(ctx, input.Query)
	summary := table.Aggregate(sel.filtered)

	return &SummaryOutput{
		Query:       input.Query,
		Groups:      summary.ByCount(),
		TotalRows:   summary.TotalRows,
		TotalGroups: summary.TotalGroups,
		FetchID:     sel.snap.ID,
		FetchedAt:   fetchedAt(sel.snap),
		Warning:     sel.warning,
	}, nil
}
