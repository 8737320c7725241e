package source

import (
	"bytes"
	"context"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/hpungsan/oltdash/internal/errors"
	"github.com/hpungsan/oltdash/internal/table"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSV reads rows from a CSV export whose first line is the header.
// Cells are kept as text.
type CSV struct {
	path string
}

// NewCSV returns a source for the CSV file at path.
func NewCSV(path string) *CSV {
	return &CSV{path: path}
}

// Fetch reads the whole file.
func (c *CSV) Fetch(ctx context.Context) ([]table.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewRemoteAccess(errors.ReasonTransport, err)
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, errors.NewRemoteAccess(errors.ReasonNotFound, err)
		}
		return nil, errors.NewRemoteAccess(errors.ReasonTransport, err)
	}

	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.FieldsPerRecord = -1
	lines, err := r.ReadAll()
	if err != nil {
		return nil, errors.NewRemoteAccess(errors.ReasonTransport, fmt.Errorf("parse %s: %w", c.path, err))
	}

	values := make([][]any, len(lines))
	for i, line := range lines {
		row := make([]any, len(line))
		for j, cell := range line {
			row[j] = cell
		}
		values[i] = row
	}
	return RecordsFromValues(values), nil
}
