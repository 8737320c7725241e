// Package table holds the canonical tabular model and the pure functions
// the dashboard derives its views from: Normalize, Filter and Aggregate.
package table

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Columns the pipeline interprets. Every other column is opaque pass-through data.
const (
	OLTColumn   = "OLT NAME"
	ONTIDColumn = "ONT ID"
)

// Field is one named cell of a Record.
type Field struct {
	Name  string
	Value any
}

// Record is one source row as an ordered list of fields.
// Values are string, float64, int64, bool or nil.
type Record []Field

// Table is an ordered set of rows sharing one column list.
// Each row is aligned to Columns. A Table is never mutated once built.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Empty returns an empty table with no columns.
func Empty() *Table {
	return &Table{Columns: []string{}, Rows: [][]any{}}
}

// Len returns the number of rows. A nil table has zero rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index returns the position of col in Columns, or -1.
func (t *Table) Index(col string) int {
	if t == nil {
		return -1
	}
	for i, c := range t.Columns {
		if c == col {
			return i
		}
	}
	return -1
}

// Slice returns a table holding rows [offset, offset+limit).
// limit <= 0 means all remaining rows.
func (t *Table) Slice(offset, limit int) *Table {
	if t == nil {
		return Empty()
	}
	n := len(t.Rows)
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	end := n
	if limit > 0 && offset+limit < n {
		end = offset + limit
	}
	return &Table{Columns: t.Columns, Rows: t.Rows[offset:end:end]}
}

// Text renders a cell value as display text.
// Whole floats drop the decimal point so numeric-looking IDs read as "123".
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return Text(float64(x))
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
