package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/hpungsan/oltdash/internal/table"
	_ "modernc.org/sqlite"
)

// tableNameRegex limits table names to plain identifiers (spaces allowed, as
// spreadsheet exports often produce them).
var tableNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_ ]*$`)

// Open opens the SQLite file at path read-only.
// The file must exist; Open never creates it.
func Open(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	dsn := "file:" + path + "?mode=ro&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// ReadRecords returns every row of tableName as records keyed by column name,
// in rowid order. An empty table yields no records and no error.
func ReadRecords(ctx context.Context, db *sql.DB, tableName string) ([]table.Record, error) {
	if !tableNameRegex.MatchString(tableName) {
		return nil, fmt.Errorf("invalid table name %q", tableName)
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM "%s" ORDER BY rowid`, tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", tableName, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var records []table.Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		rec := make(table.Record, len(cols))
		for i, c := range cols {
			rec[i] = table.Field{Name: c, Value: cellValue(vals[i])}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return records, nil
}

// cellValue narrows driver values to the scalar kinds records carry.
func cellValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case int:
		return int64(x)
	default:
		return x
	}
}
