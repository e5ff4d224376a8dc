// Package insight turns class reports into short narrative insights.
package insight

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/verte-zerg/gradelens/internal/model"
)

// localTopCount is how many top performers the local summary names.
const localTopCount = 3

// PromptView is the part of a report sent to the model. Per-student rows are
// left out.
type PromptView struct {
	SubjectKeys      []string                      `json:"subjectKeys"`
	Averages         map[string]model.Score        `json:"averages"`
	TopPerformers    []model.StudentTotal          `json:"topPerformers"`
	BottomPerformers []model.StudentTotal          `json:"bottomPerformers"`
	WeakSubjects     []model.WeakSubject           `json:"weakSubjects"`
	Trends           map[string]model.SubjectTrend `json:"trends"`
}

// Trim builds the prompt view of a report.
func Trim(report model.ClassReport) PromptView {
	return PromptView{
		SubjectKeys:      report.SubjectKeys,
		Averages:         report.Averages,
		TopPerformers:    report.TopPerformers,
		BottomPerformers: report.BottomPerformers,
		WeakSubjects:     report.WeakSubjects,
		Trends:           report.Trends,
	}
}

// BuildPrompt renders the instruction followed by the indented view.
func BuildPrompt(view PromptView) (string, error) {
	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal prompt data: %w", err)
	}
	var b strings.Builder
	b.WriteString("You are an assistant that summarizes student performance.\n")
	b.WriteString("Return JSON with keys: summary, top_insights (array), recommendations (array).\n\n")
	b.WriteString("Input DATA:\n")
	b.Write(data)
	b.WriteString("\n\nProduce concise, actionable insights.")
	return b.String(), nil
}

// LocalSummary is the deterministic summary used when no model answers.
func LocalSummary(report model.ClassReport) string {
	top := report.TopPerformers
	if len(top) > localTopCount {
		top = top[:localTopCount]
	}
	names := make([]string, 0, len(top))
	for _, t := range top {
		names = append(names, fmt.Sprintf("%s (%s)", t.Name, roundHalfUp(t.Total)))
	}

	weak := "None"
	focus := "higher order thinking"
	if len(report.WeakSubjects) > 0 {
		parts := make([]string, 0, len(report.WeakSubjects))
		subjects := make([]string, 0, len(report.WeakSubjects))
		for _, w := range report.WeakSubjects {
			parts = append(parts, fmt.Sprintf("%s (%s)", w.Subject, roundHalfUp(w.Average)))
			subjects = append(subjects, w.Subject)
		}
		weak = strings.Join(parts, ", ")
		focus = strings.Join(subjects, ", ")
	}
	return fmt.Sprintf("Summary: Class top performers: %s. Weak subjects: %s. Recommendations: Focus on %s.",
		strings.Join(names, ", "), weak, focus)
}

// roundHalfUp rounds halves toward positive infinity.
func roundHalfUp(v float64) string {
	r := math.Floor(v + 0.5)
	if r == 0 {
		r = 0 // drop the sign of -0
	}
	return fmt.Sprintf("%.0f", r)
}
