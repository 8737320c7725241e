package table

// Normalize builds the canonical table from raw source records.
//
// No records yields an empty table, not an error. Row order is kept, the
// column set is the union of field names in first-seen order, and cells a
// record lacks are nil. ONT ID is coerced to text so numeric-looking IDs
// compare as strings.
func Normalize(records []Record) *Table {
	if len(records) == 0 {
		return Empty()
	}

	columns := make([]string, 0)
	seen := make(map[string]int)
	for _, rec := range records {
		for _, f := range rec {
			if _, ok := seen[f.Name]; !ok {
				seen[f.Name] = len(columns)
				columns = append(columns, f.Name)
			}
		}
	}

	ontIdx, hasONT := seen[ONTIDColumn]

	rows := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(columns))
		set := make([]bool, len(columns))
		for _, f := range rec {
			// First occurrence wins if a record repeats a name.
			idx := seen[f.Name]
			if !set[idx] {
				row[idx] = f.Value
				set[idx] = true
			}
		}
		if hasONT {
			row[ontIdx] = Text(row[ontIdx])
		}
		rows[i] = row
	}

	return &Table{Columns: columns, Rows: rows}
}
