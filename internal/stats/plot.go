package stats

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// Series represents a named data series for plotting.
type Series struct {
	Name   string
	Values []float64
}

type lineStyle struct {
	name   string
	period int
	on     int
}

type ansiColor struct {
	name string
	code string
}

const (
	defaultPlotHeight   = 10
	minPlotWidth        = 10
	axisSeparator       = " │ "
	colorReset          = "\x1b[0m"
	terminalWidthBackup = 80
	axisLabelWidth      = 6
)

var lineStyles = []lineStyle{
	{name: "solid", period: 1, on: 1},
	{name: "dashed", period: 6, on: 3},
	{name: "dotted", period: 4, on: 1},
	{name: "dashdot", period: 8, on: 3},
}

var colorPalette = []ansiColor{
	{name: "cyan", code: "\x1b[36m"},
	{name: "magenta", code: "\x1b[35m"},
	{name: "yellow", code: "\x1b[33m"},
	{name: "green", code: "\x1b[32m"},
	{name: "blue", code: "\x1b[34m"},
}

// PlotScores renders series on one shared value scale. Labels name the x
// positions (subjects) and are listed under the plot.
func PlotScores(w io.Writer, title string, labels []string, series []Series, width, height int, forceColor bool) error {
	series = filterSeries(series)
	if len(series) == 0 {
		return nil
	}
	if height <= 0 {
		height = defaultPlotHeight
	}
	if width <= 0 {
		width = PlotWidthFor(terminalWidth())
	}
	if width < minPlotWidth {
		width = minPlotWidth
	}

	scaled := make([]Series, 0, len(series))
	for _, s := range series {
		scaled = append(scaled, Series{Name: s.Name, Values: resampleSeries(s.Values, width)})
	}
	minVal, maxVal := sharedRange(series)
	if math.Abs(maxVal-minVal) < 1e-9 {
		minVal--
		maxVal++
	}

	seriesCells := make([][][]uint8, len(scaled))
	for si, s := range scaled {
		seriesCells[si] = makeCells(height, width)
		style := lineStyles[si%len(lineStyles)]
		prevX, prevY := -1, -1
		for x, v := range s.Values {
			px := x * 2
			py := valueToRow(v, minVal, maxVal, height*4)
			if prevX >= 0 {
				drawLine(prevX, prevY, px, py, func(dx, dy int) {
					if style.shouldPlot(dx) {
						setBrailleDot(seriesCells[si], dx, dy)
					}
				})
			} else if style.shouldPlot(px) {
				setBrailleDot(seriesCells[si], px, py)
			}
			prevX, prevY = px, py
		}
	}

	useColor := shouldUseColor(w, forceColor)
	axisLabels := makeAxisLabels(height, minVal, maxVal)

	if title != "" {
		if _, err := fmt.Fprintln(w, title); err != nil {
			return err
		}
	}
	for y := 0; y < height; y++ {
		var row strings.Builder
		row.WriteString(fmt.Sprintf("%*s%s", axisLabelWidth, axisLabels[y], axisSeparator))
		for x := 0; x < width; x++ {
			mask, colorIdx := composeCell(seriesCells, x, y)
			ch := brailleFromMask(mask)
			if useColor && colorIdx >= 0 {
				row.WriteString(colorPalette[colorIdx%len(colorPalette)].code)
				row.WriteRune(ch)
				row.WriteString(colorReset)
			} else {
				row.WriteRune(ch)
			}
		}
		if _, err := fmt.Fprintln(w, row.String()); err != nil {
			return err
		}
	}
	if len(labels) > 0 {
		if _, err := fmt.Fprintf(w, "Subjects: %s\n", strings.Join(labels, ", ")); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w, renderLegend(scaled, useColor)); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// PlotWidthFor computes a plot width that fits within the total available width.
func PlotWidthFor(totalWidth int) int {
	if totalWidth <= 0 {
		return minPlotWidth
	}
	plotWidth := totalWidth - axisLabelWidth - runewidth.StringWidth(axisSeparator)
	if plotWidth < minPlotWidth {
		plotWidth = minPlotWidth
	}
	return plotWidth
}

func filterSeries(series []Series) []Series {
	out := make([]Series, 0, len(series))
	for _, s := range series {
		if len(s.Values) == 0 {
			continue
		}
		out = append(out, s)
	}
	return out
}

func sharedRange(series []Series) (float64, float64) {
	minVal := math.Inf(1)
	maxVal := math.Inf(-1)
	for _, s := range series {
		for _, v := range s.Values {
			minVal = math.Min(minVal, v)
			maxVal = math.Max(maxVal, v)
		}
	}
	if math.IsInf(minVal, 1) {
		return 0, 0
	}
	return minVal, maxVal
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}

func shouldUseColor(w io.Writer, force bool) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if force {
		return true
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}

func makeAxisLabels(height int, minVal, maxVal float64) []string {
	labels := make([]string, height)
	if height <= 0 {
		return labels
	}
	labels[0] = formatAxisValue(maxVal)
	if height > 2 {
		labels[height/2] = formatAxisValue((minVal + maxVal) / 2)
	}
	if height > 1 {
		labels[height-1] = formatAxisValue(minVal)
	}
	return labels
}

func formatAxisValue(v float64) string {
	if math.Abs(v) >= 1000 {
		return fmt.Sprintf("%.0e", v)
	}
	return fmt.Sprintf("%.1f", v)
}

func makeCells(height, width int) [][]uint8 {
	cells := make([][]uint8, height)
	for y := range cells {
		cells[y] = make([]uint8, width)
	}
	return cells
}

func composeCell(seriesCells [][][]uint8, x, y int) (uint8, int) {
	var mask uint8
	colorIdx := -1
	for i, cells := range seriesCells {
		if y < 0 || y >= len(cells) || x < 0 || x >= len(cells[y]) {
			continue
		}
		if cells[y][x] == 0 {
			continue
		}
		if colorIdx == -1 {
			colorIdx = i
		}
		mask |= cells[y][x]
	}
	return mask, colorIdx
}

func (ls lineStyle) shouldPlot(x int) bool {
	if ls.period <= 1 {
		return true
	}
	if x < 0 {
		x = -x
	}
	return x%ls.period < ls.on
}

// resampleSeries stretches or squeezes values to width columns. Subjects are
// few, so stretching with linear interpolation is the common path.
func resampleSeries(values []float64, width int) []float64 {
	if len(values) == 0 || width <= 0 {
		return nil
	}
	out := make([]float64, width)
	if len(values) == 1 || width == 1 {
		for i := range out {
			out[i] = values[0]
		}
		return out
	}
	for i := 0; i < width; i++ {
		pos := float64(i) * float64(len(values)-1) / float64(width-1)
		idx := int(math.Floor(pos))
		if idx >= len(values)-1 {
			out[i] = values[len(values)-1]
			continue
		}
		frac := pos - float64(idx)
		out[i] = values[idx]*(1-frac) + values[idx+1]*frac
	}
	return out
}

func valueToRow(v, minVal, maxVal float64, height int) int {
	if height <= 1 {
		return 0
	}
	pos := (v - minVal) / (maxVal - minVal)
	row := int(math.Round((1 - pos) * float64(height-1)))
	if row < 0 {
		row = 0
	}
	if row >= height {
		row = height - 1
	}
	return row
}

func renderLegend(series []Series, useColor bool) string {
	parts := make([]string, 0, len(series))
	marker := brailleFromMask(0x01)
	for i, s := range series {
		label := fmt.Sprintf("%c %s (%s)", marker, s.Name, lineStyles[i%len(lineStyles)].name)
		if useColor {
			label = colorPalette[i%len(colorPalette)].code + label + colorReset
		}
		parts = append(parts, label)
	}
	return "Legend: " + strings.Join(parts, "  ")
}

// drawLine walks a Bresenham line between two dot coordinates.
func drawLine(x0, y0, x1, y1 int, plot func(x, y int)) {
	dx := absInt(x1 - x0)
	dy := -absInt(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		plot(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func setBrailleDot(cells [][]uint8, x, y int) {
	if y < 0 || x < 0 {
		return
	}
	cellY, cellX := y/4, x/2
	if cellY >= len(cells) || cellX >= len(cells[cellY]) {
		return
	}
	cells[cellY][cellX] |= brailleDotMask(x%2, y%4)
}

// brailleDotMask maps a dot inside a 2x4 cell to its Unicode braille bit.
func brailleDotMask(x, y int) uint8 {
	left := [4]uint8{0x01, 0x02, 0x04, 0x40}
	right := [4]uint8{0x08, 0x10, 0x20, 0x80}
	if y < 0 || y > 3 {
		return 0
	}
	if x == 0 {
		return left[y]
	}
	return right[y]
}

func brailleFromMask(mask uint8) rune {
	return rune(0x2800 + int(mask))
}
