package insight

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/verte-zerg/gradelens/internal/logger"
	"github.com/verte-zerg/gradelens/internal/model"
)

// Insight sources.
const (
	SourceLLM   = "llm"
	SourceLocal = "local"
)

// Insights is the narrative attached to a report. Text holds a model answer
// that was not the requested JSON.
type Insights struct {
	Source          string   `json:"source"`
	Summary         string   `json:"summary"`
	TopInsights     []string `json:"top_insights,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
	Text            string   `json:"text,omitempty"`
}

// Generator asks a model for insights and falls back to LocalSummary.
type Generator struct {
	completer Completer
	log       logger.Logger
}

// NewGenerator returns a generator. A nil completer always answers locally.
func NewGenerator(completer Completer, log logger.Logger) *Generator {
	if log == nil {
		log = logger.Nop()
	}
	return &Generator{completer: completer, log: log}
}

// Generate never fails; model errors are logged and replaced by the local
// summary.
func (g *Generator) Generate(ctx context.Context, report model.ClassReport) Insights {
	if g.completer == nil {
		return local(report)
	}
	prompt, err := BuildPrompt(Trim(report))
	if err != nil {
		g.log.Error(ctx, "build insight prompt", logger.Error(err))
		return local(report)
	}
	answer, err := g.completer.Complete(ctx, prompt)
	if err != nil {
		g.log.Warn(ctx, "insight model unavailable, using local summary", logger.Error(err))
		return local(report)
	}
	g.log.Debug(ctx, "insight model answered", logger.Int("chars", len(answer)))
	return ParseAnswer(answer)
}

func local(report model.ClassReport) Insights {
	return Insights{Source: SourceLocal, Summary: LocalSummary(report)}
}

// ParseAnswer reads the model's JSON answer, tolerating a fenced code block.
// Anything else is kept as free text.
func ParseAnswer(answer string) Insights {
	var parsed struct {
		Summary         string   `json:"summary"`
		TopInsights     []string `json:"top_insights"`
		Recommendations []string `json:"recommendations"`
	}
	body := stripFence(answer)
	if err := json.Unmarshal([]byte(body), &parsed); err != nil ||
		(parsed.Summary == "" && len(parsed.TopInsights) == 0 && len(parsed.Recommendations) == 0) {
		return Insights{Source: SourceLLM, Text: strings.TrimSpace(answer)}
	}
	return Insights{
		Source:          SourceLLM,
		Summary:         parsed.Summary,
		TopInsights:     parsed.TopInsights,
		Recommendations: parsed.Recommendations,
	}
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
