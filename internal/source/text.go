package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/verte-zerg/gradelens/internal/model"
)

var cellSeparator = regexp.MustCompile(`\s{2,}|\t`)

// Text reads loosely aligned tables, such as text extracted from a PDF.
type Text struct {
	r io.Reader
}

// NewText returns a Text source over r.
func NewText(r io.Reader) Text {
	return Text{r: r}
}

// Records splits lines on runs of two or more spaces or tabs. When fewer than
// two rows split that way, every line is read as comma separated instead.
func (t Text) Records(ctx context.Context) ([]model.RawRecord, error) {
	lines, err := readLines(ctx, t.r)
	if err != nil {
		return nil, err
	}
	return ParseTextTable(lines)
}

// ParseTextTable turns trimmed, non-empty lines into records. The first row
// is the header.
func ParseTextTable(lines []string) ([]model.RawRecord, error) {
	var rows [][]string
	for _, line := range lines {
		parts := splitCells(cellSeparator.Split(line, -1))
		if len(parts) < 2 {
			continue
		}
		rows = append(rows, parts)
	}
	if len(rows) < 2 {
		return parseCommaLines(lines)
	}
	if err := validateHeader(rows[0]); err != nil {
		return nil, err
	}
	return recordsFromRows(rows[0], rows[1:]), nil
}

func parseCommaLines(lines []string) ([]model.RawRecord, error) {
	if len(lines) < 2 {
		return []model.RawRecord{}, nil
	}
	header := trimAll(strings.Split(lines[0], ","))
	if err := validateHeader(header); err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(lines)-1)
	for _, line := range lines[1:] {
		rows = append(rows, trimAll(strings.Split(line, ",")))
	}
	return recordsFromRows(header, rows), nil
}

func splitCells(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func readLines(ctx context.Context, r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var lines []string
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read text: %w", err)
	}
	return lines, nil
}
