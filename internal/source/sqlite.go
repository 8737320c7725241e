package source

import (
	"context"
	stderrors "errors"
	"os"

	"github.com/hpungsan/oltdash/internal/db"
	"github.com/hpungsan/oltdash/internal/errors"
	"github.com/hpungsan/oltdash/internal/table"
)

// SQLite reads rows from a table in a local SQLite file, opened read-only on
// every fetch so external updates to the file are picked up.
type SQLite struct {
	path  string
	table string
}

// NewSQLite returns a source for tableName in the SQLite file at path.
func NewSQLite(path, tableName string) *SQLite {
	return &SQLite{path: path, table: tableName}
}

// Fetch reads every row of the table.
func (s *SQLite) Fetch(ctx context.Context) ([]table.Record, error) {
	database, err := db.Open(s.path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, errors.NewRemoteAccess(errors.ReasonNotFound, err)
		}
		return nil, errors.NewRemoteAccess(errors.ReasonTransport, err)
	}
	defer database.Close()

	recs, err := db.ReadRecords(ctx, database, s.table)
	if err != nil {
		return nil, errors.NewRemoteAccess(errors.ReasonTransport, err)
	}
	return recs, nil
}
