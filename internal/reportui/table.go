package reportui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/gradelens/internal/model"
)

const (
	subjectColumnMin = 6
	subjectColumnMax = 12
)

func buildStudentTable(cols []table.Column, rows []table.Row, width, height int) table.Model {
	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithHeight(maxInt(1, height-1)),
	)
	t.SetWidth(width)
	t.SetStyles(studentTableStyles())
	return t
}

// studentTableData lists students in rank order with their per-subject
// scores. filter keeps names containing it, case-insensitively.
func studentTableData(report model.ClassReport, filter string) ([]table.Column, []table.Row) {
	nameWidth := len("Student")
	for _, t := range report.RawTotals {
		nameWidth = maxInt(nameWidth, lipgloss.Width(t.Name))
	}
	columns := []table.Column{
		{Title: "Rank", Width: 4},
		{Title: "Student", Width: minInt(nameWidth, 24)},
		{Title: "Total", Width: 7},
		{Title: "Avg", Width: 7},
	}
	for _, subject := range report.SubjectKeys {
		w := minInt(maxInt(lipgloss.Width(subject), subjectColumnMin), subjectColumnMax)
		columns = append(columns, table.Column{Title: subject, Width: w})
	}

	// Names may repeat; hand out records in input order per name.
	byName := make(map[string][]model.StudentRecord, len(report.Students))
	for _, s := range report.Students {
		byName[s.Name] = append(byName[s.Name], s)
	}

	needle := strings.ToLower(strings.TrimSpace(filter))
	rows := make([]table.Row, 0, len(report.RawTotals))
	for i, t := range report.RawTotals {
		var scores map[string]model.Score
		if queue := byName[t.Name]; len(queue) > 0 {
			scores = queue[0].Scores
			byName[t.Name] = queue[1:]
		}
		if needle != "" && !strings.Contains(strings.ToLower(t.Name), needle) {
			continue
		}
		row := table.Row{
			fmt.Sprintf("%d", i+1),
			t.Name,
			fmt.Sprintf("%.2f", t.Total),
			t.Average.Format(2),
		}
		for _, subject := range report.SubjectKeys {
			score, ok := scores[subject]
			if !ok {
				score = model.Missing()
			}
			row = append(row, score.Format(1))
		}
		rows = append(rows, row)
	}
	return columns, rows
}

func (m *Model) applyStudentTable(width, height int, force bool) {
	cols, rows := studentTableData(m.report, m.nameFilter)
	viewportHeight := maxInt(1, height-1)
	if !force &&
		m.studentLayout.width == width &&
		m.studentLayout.height == viewportHeight &&
		m.studentLayout.rowCount == len(rows) &&
		m.studentLayout.colCount == len(cols) {
		return
	}
	// Columns must shrink before rows so stale rows never outgrow them.
	m.studentTable.SetRows(nil)
	m.studentTable.SetColumns(cols)
	m.studentTable.SetRows(rows)
	m.studentTable.GotoTop()
	m.studentLayout.rowCount = len(rows)
	m.studentLayout.colCount = len(cols)
	m.studentLayout.width = 0
	m.setStudentTableSize(width, height)
}

func (m *Model) refreshStudents() {
	width := m.width
	if width <= 0 {
		width = 80
	}
	_, bodyHeight, _ := m.layoutHeights()
	m.applyStudentTable(width, bodyHeight, true)
}

func (m *Model) setStudentTableSize(width, height int) {
	viewportHeight := maxInt(1, height-1)
	if m.studentLayout.width == width && m.studentLayout.height == viewportHeight {
		return
	}
	m.studentLayout.width = width
	m.studentLayout.height = viewportHeight
	m.studentTable.SetWidth(width)
	m.studentTable.SetHeight(viewportHeight)
	viewportHeight = m.adjustStudentTableHeight(height)
	if m.studentLayout.height != viewportHeight {
		m.studentLayout.height = viewportHeight
		m.studentTable.SetHeight(viewportHeight)
	}
}

func studentTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

// adjustStudentTableHeight converges the table height so its rendered view
// fills bodyHeight exactly.
func (m *Model) adjustStudentTableHeight(bodyHeight int) int {
	target := maxInt(1, bodyHeight)
	height := m.studentTable.Height()
	for range 2 {
		viewHeight := lipgloss.Height(m.studentTable.View())
		if viewHeight == target {
			return height
		}
		height += target - viewHeight
		if height < 1 {
			height = 1
		}
		m.studentTable.SetHeight(height)
	}
	return height
}

func padLines(s string, width int) string {
	if width <= 0 || s == "" {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	return strings.Join(lines, "\n")
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func truncateLine(s string, width int) string {
	if width <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}
