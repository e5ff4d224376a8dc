package source

import (
	"context"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"

	"github.com/verte-zerg/gradelens/internal/model"
)

// PDF extracts a document's plain text and reads it as a text table.
type PDF struct {
	r    io.ReaderAt
	size int64
}

// NewPDF returns a PDF source over a document of size bytes.
func NewPDF(r io.ReaderAt, size int64) PDF {
	return PDF{r: r, size: size}
}

func (p PDF) Records(ctx context.Context) ([]model.RawRecord, error) {
	doc, err := pdf.NewReader(p.r, p.size)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	text, err := doc.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}
	lines, err := readLines(ctx, text)
	if err != nil {
		return nil, err
	}
	return ParseTextTable(lines)
}
