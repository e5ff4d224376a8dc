package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/verte-zerg/gradelens/internal/model"
)

// CSV reads a header row followed by data rows.
type CSV struct {
	r io.Reader
}

// NewCSV returns a CSV source over r.
func NewCSV(r io.Reader) CSV {
	return CSV{r: r}
}

// Records trims every key and value. Short rows are padded with empty cells
// and extra cells are dropped.
func (c CSV) Records(ctx context.Context) ([]model.RawRecord, error) {
	reader := csv.NewReader(c.r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var header []string
	var rows [][]string
	line := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line+1, err)
		}
		line++
		if header == nil {
			if len(record) > 0 {
				record[0] = strings.TrimPrefix(record[0], "\ufeff")
			}
			header = trimAll(record)
			if err := validateHeader(header); err != nil {
				return nil, err
			}
			continue
		}
		rows = append(rows, trimAll(record))
	}
	return recordsFromRows(header, rows), nil
}
