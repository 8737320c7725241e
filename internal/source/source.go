// Package source reads raw rows from the place the dashboard data lives.
package source

import (
	"context"
	"fmt"

	"github.com/hpungsan/oltdash/internal/config"
	"github.com/hpungsan/oltdash/internal/table"
)

// RowSource returns the current full row set of a dataset.
//
// An empty dataset is not an error: Fetch returns no records and a nil error.
// Failures are *errors.DashError values with code ErrRemoteAccess.
type RowSource interface {
	Fetch(ctx context.Context) ([]table.Record, error)
}

// Func adapts a function to RowSource.
type Func func(ctx context.Context) ([]table.Record, error)

// Fetch calls f.
func (f Func) Fetch(ctx context.Context) ([]table.Record, error) {
	return f(ctx)
}

// New builds the row source selected by cfg.Source.
func New(ctx context.Context, cfg *config.Config) (RowSource, error) {
	switch cfg.Source {
	case config.SourceSheets:
		creds, err := cfg.Credentials()
		if err != nil {
			return nil, err
		}
		return NewSheets(ctx, SheetsConfig{
			SpreadsheetName: cfg.SpreadsheetName,
			SpreadsheetID:   cfg.SpreadsheetID,
			Worksheet:       cfg.Worksheet,
			Credentials:     creds,
			RatePerMinute:   cfg.FetchRatePerMinute,
		})
	case config.SourceSQLite:
		return NewSQLite(cfg.SQLitePath, cfg.SQLiteTable), nil
	case config.SourceCSV:
		return NewCSV(cfg.CSVPath), nil
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}

// RecordsFromValues turns a grid whose first row is the header into records.
//
// A grid with no rows or only a header yields no records. Short rows are
// padded with "", blank header cells are dropped, and trailing rows with no
// non-blank cell are skipped.
func RecordsFromValues(values [][]any) []table.Record {
	if len(values) < 2 {
		return nil
	}

	header := make([]string, len(values[0]))
	for i, h := range values[0] {
		header[i] = table.Text(h)
	}

	last := len(values) - 1
	for last > 0 && blankRow(values[last]) {
		last--
	}

	records := make([]table.Record, 0, last)
	for _, row := range values[1 : last+1] {
		rec := make(table.Record, 0, len(header))
		for i, name := range header {
			if name == "" {
				continue
			}
			var v any = ""
			if i < len(row) && row[i] != nil {
				v = row[i]
			}
			rec = append(rec, table.Field{Name: name, Value: v})
		}
		records = append(records, rec)
	}
	return records
}

func blankRow(row []any) bool {
	for _, v := range row {
		if table.Text(v) != "" {
			return false
		}
	}
	return true
}
