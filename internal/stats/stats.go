// Package stats analyzes student score batches and renders class reports.
package stats

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/verte-zerg/gradelens/internal/model"
)

const sparkChars = " .:-=+*#%@"

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal, maxVal := values[0], values[0]
	for _, v := range values[1:] {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		b.WriteByte(sparkChars[clampInt(idx, 0, len(sparkChars)-1)])
	}
	return b.String()
}

// ClassAverage is the mean of the students' own averages. Students without
// any score are left out.
func ClassAverage(report model.ClassReport) model.Score {
	var sum float64
	n := 0
	for _, t := range report.RawTotals {
		if v, ok := t.Average.Value(); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return model.Missing()
	}
	return model.Numeric(sum / float64(n))
}

// RenderSummary prints headline numbers for a report.
func RenderSummary(w io.Writer, report model.ClassReport) error {
	lines := []string{
		"Summary",
		fmt.Sprintf("Students: %d", len(report.Students)),
		fmt.Sprintf("Subjects: %d", len(report.SubjectKeys)),
		fmt.Sprintf("Class Avg: %s", ClassAverage(report).Format(2)),
	}
	if len(report.RawTotals) > 0 {
		best := report.RawTotals[0]
		lines = append(lines, fmt.Sprintf("Best Total: %s (%s)", totalCell(best.Total), best.Name))
	}
	lines = append(lines, fmt.Sprintf("Weak Subjects: %s", weakLine(report.WeakSubjects)), "")
	return writeLines(w, lines)
}

// RenderLeaderboard prints the top and bottom performer tables.
func RenderLeaderboard(w io.Writer, report model.ClassReport) error {
	top := make([]int, len(report.TopPerformers))
	for i := range top {
		top[i] = i + 1
	}
	if err := renderTotals(w, "Top Performers", report.TopPerformers, top); err != nil {
		return err
	}
	bottom := make([]int, len(report.BottomPerformers))
	for i := range bottom {
		bottom[i] = len(report.RawTotals) - i
	}
	return renderTotals(w, "Bottom Performers", report.BottomPerformers, bottom)
}

// RenderRanking prints every student in rank order.
func RenderRanking(w io.Writer, report model.ClassReport) error {
	ranks := make([]int, len(report.RawTotals))
	for i := range ranks {
		ranks[i] = i + 1
	}
	return renderTotals(w, "Ranking", report.RawTotals, ranks)
}

func renderTotals(w io.Writer, title string, totals []model.StudentTotal, ranks []int) error {
	if len(totals) == 0 {
		_, err := fmt.Fprintln(w, "No students found.")
		return err
	}
	if _, err := fmt.Fprintln(w, title); err != nil {
		return err
	}
	table := newTable("Rank", "Student", "Total", "Avg").alignRight(0, 2, 3).capWidth(1)
	for i, t := range totals {
		table.addRow(fmt.Sprintf("%d", ranks[i]), t.Name, totalCell(t.Total), scoreCell(t.Average))
	}
	return table.write(w)
}

// RenderSubjectTable prints per-subject trends with a sparkline of the
// subject's scores sorted ascending. Weak subjects are flagged.
func RenderSubjectTable(w io.Writer, report model.ClassReport) error {
	if len(report.SubjectKeys) == 0 {
		_, err := fmt.Fprintln(w, "No subjects found.")
		return err
	}
	if _, err := fmt.Fprintln(w, "Subjects"); err != nil {
		return err
	}
	weak := make(map[string]bool, len(report.WeakSubjects))
	for _, ws := range report.WeakSubjects {
		weak[ws.Subject] = true
	}
	table := newTable("Subject", "Mean", "Min", "Max", "SD", "Count", "Spread", "").
		alignRight(1, 2, 3, 4, 5).
		capWidth(0)
	for _, subject := range report.SubjectKeys {
		trend := report.Trends[subject]
		values := report.SubjectValues(subject)
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		flag := ""
		if weak[subject] {
			flag = "weak"
		}
		table.addRow(
			subject,
			scoreCell(trend.Mean),
			scoreCell(trend.Min),
			scoreCell(trend.Max),
			scoreCell(trend.SD),
			fmt.Sprintf("%d", len(values)),
			Sparkline(sorted),
			flag,
		)
	}
	return table.write(w)
}

// RenderSubjectChart plots subject means with their min and max.
func RenderSubjectChart(w io.Writer, report model.ClassReport, totalWidth, height int, useColor bool) error {
	var means, mins, maxs []float64
	var labels []string
	for _, subject := range report.SubjectKeys {
		trend := report.Trends[subject]
		mean, ok := trend.Mean.Value()
		if !ok {
			continue
		}
		labels = append(labels, subject)
		means = append(means, mean)
		mins = append(mins, trend.Min.Or(mean))
		maxs = append(maxs, trend.Max.Or(mean))
	}
	if len(labels) == 0 {
		return nil
	}
	width := 0
	if totalWidth > 0 {
		width = PlotWidthFor(totalWidth)
	}
	return PlotScores(w, "Subject Means", labels, []Series{
		{Name: "Mean", Values: means},
		{Name: "Min", Values: mins},
		{Name: "Max", Values: maxs},
	}, width, height, useColor)
}

// RenderReport prints the full text report.
func RenderReport(w io.Writer, report model.ClassReport, totalWidth int, useColor bool) error {
	if err := RenderSummary(w, report); err != nil {
		return err
	}
	if err := RenderLeaderboard(w, report); err != nil {
		return err
	}
	if err := RenderSubjectTable(w, report); err != nil {
		return err
	}
	return RenderSubjectChart(w, report, totalWidth, defaultPlotHeight, useColor)
}

// RenderHistory prints stored analyses, oldest first.
func RenderHistory(w io.Writer, runs []model.AnalysisSummary) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No analyses found.")
		return err
	}
	table := newTable("ID", "Created", "Source", "Kind", "Students", "Subjects", "Weak").
		alignRight(4, 5, 6).
		capWidth(2)
	for _, r := range runs {
		table.addRow(
			r.ID,
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			r.SourceName,
			r.SourceKind,
			fmt.Sprintf("%d", r.Students),
			fmt.Sprintf("%d", r.Subjects),
			fmt.Sprintf("%d", r.WeakCount),
		)
	}
	return table.write(w)
}

func weakLine(weak []model.WeakSubject) string {
	if len(weak) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(weak))
	for _, ws := range weak {
		parts = append(parts, fmt.Sprintf("%s (%.2f)", ws.Subject, ws.Average))
	}
	return strings.Join(parts, ", ")
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
