package source

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/verte-zerg/gradelens/internal/model"
)

// XLSX reads one worksheet of a workbook.
type XLSX struct {
	r     io.Reader
	sheet string
}

// NewXLSX returns an XLSX source. An empty sheet selects the first one.
func NewXLSX(r io.Reader, sheet string) XLSX {
	return XLSX{r: r, sheet: sheet}
}

// Records uses the first non-empty row as the header.
func (x XLSX) Records(ctx context.Context) ([]model.RawRecord, error) {
	f, err := excelize.OpenReader(x.r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() {
		_ = f.Close() // best-effort cleanup of temp files
	}()

	sheet := x.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return []model.RawRecord{}, nil
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var header []string
	var data [][]string
	for _, row := range rows {
		cells := trimAll(row)
		if header == nil {
			if isBlank(cells) {
				continue
			}
			header = trimTrailingBlank(cells)
			if err := validateHeader(header); err != nil {
				return nil, err
			}
			continue
		}
		if isBlank(cells) {
			continue
		}
		data = append(data, cells)
	}
	return recordsFromRows(header, data), nil
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}

func trimTrailingBlank(cells []string) []string {
	end := len(cells)
	for end > 0 && cells[end-1] == "" {
		end--
	}
	return cells[:end]
}
