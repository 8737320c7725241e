package table

import (
	"cmp"
	"slices"
)

// GroupCount is the number of rows for one OLT.
type GroupCount struct {
	Key   string `json:"olt"`
	Count int    `json:"clients"`
}

// Summary is the grouped count of a table plus its headline metrics.
// Groups are in order of first appearance; counts sum to TotalRows.
type Summary struct {
	Groups      []GroupCount `json:"groups"`
	TotalRows   int          `json:"total_rows"`
	TotalGroups int          `json:"total_groups"`
}

// Aggregate groups t by OLT NAME.
//
// Keys are the cell text compared exactly. Rows without an OLT NAME count
// under the "" key so every row lands in exactly one group. An empty table
// yields no groups and zero totals.
func Aggregate(t *Table) Summary {
	s := Summary{Groups: []GroupCount{}}
	if t.Len() == 0 {
		return s
	}

	idx := t.Index(OLTColumn)
	pos := make(map[string]int)
	for _, row := range t.Rows {
		key := ""
		if idx >= 0 && idx < len(row) {
			key = Text(row[idx])
		}
		if i, ok := pos[key]; ok {
			s.Groups[i].Count++
			continue
		}
		pos[key] = len(s.Groups)
		s.Groups = append(s.Groups, GroupCount{Key: key, Count: 1})
	}

	s.TotalRows = len(t.Rows)
	s.TotalGroups = len(s.Groups)
	return s
}

// ByCount returns the groups ordered by count, largest first.
// Ties keep first-appearance order.
func (s Summary) ByCount() []GroupCount {
	out := slices.Clone(s.Groups)
	slices.SortStableFunc(out, func(a, b GroupCount) int {
		return cmp.Compare(b.Count, a.Count)
	})
	return out
}
