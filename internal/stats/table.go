package stats

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/gradelens/internal/model"
)

// maxCellWidth caps free-text columns; names lifted out of PDF lines can
// run to a whole sentence.
const maxCellWidth = 32

// textTable lays out report rows in aligned columns measured in terminal cells.
type textTable struct {
	headers []string
	rows    [][]string
	right   map[int]bool
	capped  map[int]bool
}

func newTable(headers ...string) *textTable {
	return &textTable{headers: headers, right: map[int]bool{}, capped: map[int]bool{}}
}

// alignRight marks numeric columns.
func (t *textTable) alignRight(cols ...int) *textTable {
	for _, c := range cols {
		t.right[c] = true
	}
	return t
}

// capWidth truncates the given columns to maxCellWidth.
func (t *textTable) capWidth(cols ...int) *textTable {
	for _, c := range cols {
		t.capped[c] = true
	}
	return t
}

func (t *textTable) addRow(cells ...string) {
	row := make([]string, len(cells))
	for i, cell := range cells {
		if t.capped[i] {
			cell = runewidth.Truncate(cell, maxCellWidth, "...")
		}
		row[i] = cell
	}
	t.rows = append(t.rows, row)
}

// lines renders the header and rows with trailing blanks trimmed.
func (t *textTable) lines() []string {
	colCount := len(t.headers)
	for _, row := range t.rows {
		colCount = max(colCount, len(row))
	}
	if colCount == 0 {
		return nil
	}
	widths := make([]int, colCount)
	measure := func(row []string) {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}
	measure(t.headers)
	for _, row := range t.rows {
		measure(row)
	}

	out := make([]string, 0, len(t.rows)+1)
	if len(t.headers) > 0 {
		out = append(out, t.formatRow(t.headers, widths))
	}
	for _, row := range t.rows {
		out = append(out, t.formatRow(row, widths))
	}
	return out
}

func (t *textTable) formatRow(row []string, widths []int) string {
	var b strings.Builder
	for i, width := range widths {
		cell := ""
		if i < len(row) {
			cell = row[i]
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		pad := strings.Repeat(" ", max(0, width-runewidth.StringWidth(cell)))
		if t.right[i] {
			b.WriteString(pad + cell)
		} else {
			b.WriteString(cell + pad)
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// write prints the table followed by a blank line.
func (t *textTable) write(w io.Writer) error {
	return writeLines(w, append(t.lines(), ""))
}

// scoreCell renders a score with two decimals; missing and overflowed
// values read as "-".
func scoreCell(s model.Score) string {
	v, ok := s.Value()
	if !ok || math.IsInf(v, 0) || math.IsNaN(v) {
		return "-"
	}
	return s.Format(2)
}

// totalCell prints whole totals without decimals.
func totalCell(v float64) string {
	switch {
	case math.IsInf(v, 0) || math.IsNaN(v):
		return "-"
	case v == math.Trunc(v) && math.Abs(v) < 1e15:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

func writeLines(w io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
