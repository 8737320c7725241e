package table

import (
	"strings"

	"golang.org/x/text/cases"
)

// Filter returns the rows whose OLT NAME contains query, ignoring case.
//
// An empty query returns t itself. Otherwise the result is a new table with
// the same columns and the matching rows in their original order. Cells are
// matched on the same text Aggregate groups by, so a numeric OLT NAME is
// searchable. Rows with a missing or nil OLT NAME never match. query is
// matched as a literal substring.
func Filter(t *Table, query string) *Table {
	if query == "" {
		return t
	}
	if t == nil {
		return Empty()
	}

	out := &Table{Columns: t.Columns, Rows: [][]any{}}
	idx := t.Index(OLTColumn)
	if idx < 0 {
		return out
	}

	fold := cases.Fold()
	needle := fold.String(query)
	for _, row := range t.Rows {
		if idx >= len(row) {
			continue
		}
		if row[idx] == nil {
			continue
		}
		if strings.Contains(fold.String(Text(row[idx])), needle) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}
