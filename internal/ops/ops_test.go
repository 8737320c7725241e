package ops

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hpungsan/oltdash/internal/cache"
	"github.com/hpungsan/oltdash/internal/errors"
	"github.com/hpungsan/oltdash/internal/source"
	"github.com/hpungsan/oltdash/internal/table"
)

// groupCount returns the row count for key, or 0.
func groupCount(s table.Summary, key string) int {
	for _, g := range s.Groups {
		if g.Key == key {
			return g.Count
		}
	}
	return 0
}

func scenarioRecords() []table.Record {
	return []table.Record{
		{{Name: "OLT NAME", Value: "OLT-A"}, {Name: "ONT ID", Value: float64(123)}},
		{{Name: "OLT NAME", Value: "OLT-B"}, {Name: "ONT ID", Value: float64(456)}},
		{{Name: "OLT NAME", Value: "OLT-A"}, {Name: "ONT ID", Value: float64(789)}},
	}
}

// fakeSource serves recs (or err) and counts fetches.
type fakeSource struct {
	recs  []table.Record
	err   atomic.Pointer[error]
	calls atomic.Int32
}

func (f *fakeSource) Fetch(ctx context.Context) ([]table.Record, error) {
	f.calls.Add(1)
	if p := f.err.Load(); p != nil {
		return nil, *p
	}
	return f.recs, nil
}

func (f *fakeSource) fail(err error) { f.err.Store(&err) }
func (f *fakeSource) heal()          { f.err.Store(nil) }

type testClock struct{ t atomic.Int64 }

func (c *testClock) Now() time.Time          { return time.Unix(c.t.Load(), 0) }
func (c *testClock) Advance(d time.Duration) { c.t.Add(int64(d / time.Second)) }

func newTestPipeline(src source.RowSource, clock *testClock) *Pipeline {
	clock.t.Store(1_700_000_000)
	return NewPipeline(src, cache.Options{
		TTL:    600 * time.Second,
		Now:    clock.Now,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestView_Scenario(t *testing.T) {
	p := newTestPipeline(&fakeSource{recs: scenarioRecords()}, &testClock{})

	out, err := p.View(context.Background(), ViewInput{})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}

	if out.Warning != "" {
		t.Errorf("Warning = %q, want empty", out.Warning)
	}
	if out.Summary.TotalRows != 3 || out.Summary.TotalGroups != 2 {
		t.Errorf("totals = %d/%d, want 3/2", out.Summary.TotalRows, out.Summary.TotalGroups)
	}
	if groupCount(out.Summary, "OLT-A") != 2 || groupCount(out.Summary, "OLT-B") != 1 {
		t.Errorf("groups = %+v", out.Summary.Groups)
	}
	if out.Chart[0].Key != "OLT-A" {
		t.Errorf("chart[0] = %+v, want OLT-A first", out.Chart[0])
	}
	if out.Rows[0][1] != "123" {
		t.Errorf("ONT ID = %#v, want \"123\"", out.Rows[0][1])
	}
	if out.DatasetRows != 3 || out.FetchID == "" || out.FetchedAt == nil {
		t.Errorf("dataset metadata = %d %q %v", out.DatasetRows, out.FetchID, out.FetchedAt)
	}
}

func TestView_Query(t *testing.T) {
	p := newTestPipeline(&fakeSource{recs: scenarioRecords()}, &testClock{})

	out, err := p.View(context.Background(), ViewInput{Query: "olt-a"})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if out.Pagination.Total != 2 || len(out.Rows) != 2 {
		t.Errorf("rows = %d (total %d), want 2", len(out.Rows), out.Pagination.Total)
	}
	if out.Summary.TotalRows != 2 || out.Summary.TotalGroups != 1 {
		t.Errorf("totals = %d/%d, want 2/1", out.Summary.TotalRows, out.Summary.TotalGroups)
	}
	if out.DatasetRows != 3 {
		t.Errorf("DatasetRows = %d, want 3", out.DatasetRows)
	}
}

func TestView_EmptyDataset(t *testing.T) {
	p := newTestPipeline(&fakeSource{}, &testClock{})

	out, err := p.View(context.Background(), ViewInput{Query: "x"})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if out.Warning != WarnNoData {
		t.Errorf("Warning = %q, want %q", out.Warning, WarnNoData)
	}
	if out.Summary.TotalRows != 0 || out.Summary.TotalGroups != 0 || len(out.Chart) != 0 {
		t.Errorf("summary = %+v, want empty", out.Summary)
	}
	if out.Rows == nil || out.Columns == nil {
		t.Error("empty view should carry empty, non-nil rows and columns")
	}
}

func TestView_Pagination(t *testing.T) {
	var recs []table.Record
	for i := 0; i < 25; i++ {
		recs = append(recs, table.Record{{Name: "OLT NAME", Value: "OLT-A"}, {Name: "ONT ID", Value: float64(i)}})
	}
	p := newTestPipeline(&fakeSource{recs: recs}, &testClock{})

	out, err := p.View(context.Background(), ViewInput{Limit: 10, Offset: 20})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if len(out.Rows) != 5 || out.Pagination.HasMore {
		t.Errorf("page = %d rows, has_more %v; want 5, false", len(out.Rows), out.Pagination.HasMore)
	}
	if out.Summary.TotalRows != 25 {
		t.Errorf("summary should cover the full selection, got %d", out.Summary.TotalRows)
	}

	out, _ = p.View(context.Background(), ViewInput{Limit: 10})
	if !out.Pagination.HasMore || out.Pagination.Limit != 10 {
		t.Errorf("first page pagination = %+v", out.Pagination)
	}
}

func TestValidatePage(t *testing.T) {
	tests := []struct {
		name              string
		limit, offset     int
		wantLimit, wantOK int
	}{
		{"defaults", 0, 0, DefaultRowLimit, 1},
		{"clamped", MaxRowLimit + 1, 0, MaxRowLimit, 1},
		{"explicit", 7, 3, 7, 1},
		{"negative limit", -1, 0, 0, 0},
		{"negative offset", 10, -5, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit, _, err := validatePage(tt.limit, tt.offset)
			if tt.wantOK == 0 {
				if !errors.Is(err, errors.ErrInvalidRequest) {
					t.Errorf("err = %v, want INVALID_REQUEST", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", limit, tt.wantLimit)
			}
		})
	}
}

func TestRecords_CanonicalTable(t *testing.T) {
	p := newTestPipeline(&fakeSource{recs: scenarioRecords()}, &testClock{})

	out, err := p.Records(context.Background(), RecordsInput{})
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	if len(out.Columns) != 2 || out.Columns[0] != "OLT NAME" || out.Columns[1] != "ONT ID" {
		t.Errorf("Columns = %v", out.Columns)
	}
	for i, want := range []string{"123", "456", "789"} {
		if out.Rows[i][1] != want {
			t.Errorf("row %d ONT ID = %#v, want %q", i, out.Rows[i][1], want)
		}
	}
}

func TestRecords_InvalidPage(t *testing.T) {
	p := newTestPipeline(&fakeSource{recs: scenarioRecords()}, &testClock{})
	if _, err := p.Records(context.Background(), RecordsInput{Offset: -1}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("err = %v, want INVALID_REQUEST", err)
	}
}

func TestSummary_OrderedByCount(t *testing.T) {
	recs := append(scenarioRecords(),
		table.Record{{Name: "OLT NAME", Value: "OLT-B"}},
		table.Record{{Name: "OLT NAME", Value: "OLT-B"}},
	)
	p := newTestPipeline(&fakeSource{recs: recs}, &testClock{})

	out, err := p.Summary(context.Background(), SummaryInput{})
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if out.Groups[0].Key != "OLT-B" || out.Groups[0].Count != 3 {
		t.Errorf("Groups[0] = %+v, want OLT-B:3", out.Groups[0])
	}
	if out.TotalRows != 5 || out.TotalGroups != 2 {
		t.Errorf("totals = %d/%d, want 5/2", out.TotalRows, out.TotalGroups)
	}
}

func TestPipeline_ColdFailure(t *testing.T) {
	src := &fakeSource{}
	src.fail(errors.NewRemoteAccess(errors.ReasonAuth, stderrors.New("denied")))
	p := newTestPipeline(src, &testClock{})

	out, err := p.Summary(context.Background(), SummaryInput{})
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if out.Warning != WarnNoData {
		t.Errorf("Warning = %q, want %q", out.Warning, WarnNoData)
	}
	if out.TotalRows != 0 || out.FetchedAt != nil {
		t.Errorf("out = %+v, want empty summary", out)
	}
}

func TestPipeline_WarmFailureServesStale(t *testing.T) {
	src := &fakeSource{recs: scenarioRecords()}
	clock := &testClock{}
	p := newTestPipeline(src, clock)

	first, _ := p.Records(context.Background(), RecordsInput{})

	src.fail(errors.NewRemoteAccess(errors.ReasonTransport, stderrors.New("timeout")))
	clock.Advance(601 * time.Second)

	out, err := p.Records(context.Background(), RecordsInput{Query: "OLT-B"})
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	if out.Warning != WarnStale {
		t.Errorf("Warning = %q, want %q", out.Warning, WarnStale)
	}
	if out.FetchID != first.FetchID || len(out.Rows) != 1 {
		t.Errorf("expected stale rows from fetch %s, got %s with %d rows", first.FetchID, out.FetchID, len(out.Rows))
	}

	src.heal()
	out, _ = p.Records(context.Background(), RecordsInput{})
	if out.Warning != "" || out.FetchID == first.FetchID {
		t.Errorf("expected fresh data after recovery, got %+v", out)
	}
}

func TestPipeline_MemoizesWithinTTL(t *testing.T) {
	src := &fakeSource{recs: scenarioRecords()}
	clock := &testClock{}
	p := newTestPipeline(src, clock)

	for i := 0; i < 5; i++ {
		if _, err := p.View(context.Background(), ViewInput{Query: "OLT"}); err != nil {
			t.Fatalf("View failed: %v", err)
		}
		clock.Advance(100 * time.Second)
	}
	if src.calls.Load() != 1 {
		t.Errorf("fetches = %d, want 1", src.calls.Load())
	}

	clock.Advance(100 * time.Second)
	_, _ = p.Summary(context.Background(), SummaryInput{})
	if src.calls.Load() != 2 {
		t.Errorf("fetches = %d, want 2", src.calls.Load())
	}
}

func TestPipeline_CanceledRequest(t *testing.T) {
	release := make(chan struct{})
	src := source.Func(func(ctx context.Context) ([]table.Record, error) {
		<-release
		return scenarioRecords(), nil
	})
	p := newTestPipeline(src, &testClock{})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := p.View(ctx, ViewInput{})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if out.Warning != WarnCanceled {
		t.Errorf("Warning = %q, want %q", out.Warning, WarnCanceled)
	}
}

func TestStatus(t *testing.T) {
	src := &fakeSource{recs: scenarioRecords()}
	p := newTestPipeline(src, &testClock{})

	out, err := p.Status(context.Background(), StatusInput{})
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if out.Rows != 0 || src.calls.Load() != 0 {
		t.Error("Status without refresh must not fetch")
	}

	out, _ = p.Status(context.Background(), StatusInput{Refresh: true})
	if out.Rows != 3 || !out.Fresh || out.Refreshes != 1 {
		t.Errorf("Status = %+v", out)
	}

	out, _ = p.Status(context.Background(), StatusInput{Refresh: true})
	if out.Refreshes != 2 {
		t.Errorf("Refreshes = %d, want 2", out.Refreshes)
	}
}
