// Package source reads uploaded score sheets into raw records.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/verte-zerg/gradelens/internal/model"
)

var (
	// ErrUnsupportedType is returned when no reader handles a payload.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrInvalidHeader is returned for empty or repeated column names.
	ErrInvalidHeader = errors.New("invalid header")
)

// Kind names a payload format.
type Kind string

const (
	KindCSV  Kind = "csv"
	KindText Kind = "text"
	KindPDF  Kind = "pdf"
	KindXLSX Kind = "xlsx"
)

// Source yields the raw records of one batch.
type Source interface {
	Records(ctx context.Context) ([]model.RawRecord, error)
}

// Detect picks a kind from the file extension, then from the content type.
func Detect(filename, contentType string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return KindCSV, nil
	case ".pdf":
		return KindPDF, nil
	case ".xlsx":
		return KindXLSX, nil
	case ".txt", ".tsv":
		return KindText, nil
	}
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "csv"):
		return KindCSV, nil
	case strings.Contains(ct, "pdf"):
		return KindPDF, nil
	case strings.Contains(ct, "spreadsheet"), strings.Contains(ct, "excel"):
		return KindXLSX, nil
	case strings.HasPrefix(ct, "text/"):
		return KindText, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedType, filename)
}

// Options tune how a payload is read.
type Options struct {
	// Sheet selects the XLSX worksheet. Empty means the first sheet.
	Sheet string
}

// Open builds the source for a payload of the given kind. PDF and XLSX need
// random access, so their payload is buffered.
func Open(kind Kind, r io.Reader, opts Options) (Source, error) {
	switch kind {
	case KindCSV:
		return NewCSV(r), nil
	case KindText:
		return NewText(r), nil
	case KindPDF:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read pdf: %w", err)
		}
		return NewPDF(bytes.NewReader(data), int64(len(data))), nil
	case KindXLSX:
		return NewXLSX(r, opts.Sheet), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, kind)
}

// validateHeader rejects empty and repeated column names.
func validateHeader(header []string) error {
	if len(header) == 0 {
		return fmt.Errorf("%w: no columns", ErrInvalidHeader)
	}
	seen := make(map[string]struct{}, len(header))
	for i, h := range header {
		if h == "" {
			return fmt.Errorf("%w: column %d is empty", ErrInvalidHeader, i+1)
		}
		if _, dup := seen[h]; dup {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidHeader, h)
		}
		seen[h] = struct{}{}
	}
	return nil
}

func trimAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

func recordsFromRows(header []string, rows [][]string) []model.RawRecord {
	records := make([]model.RawRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, model.NewRawRecord(header, row))
	}
	return records
}
