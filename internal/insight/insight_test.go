package insight

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/gradelens/internal/model"
)

func sampleReport() model.ClassReport {
	return model.ClassReport{
		Students:    []model.StudentRecord{{Name: "Alice", Scores: map[string]model.Score{"Math": model.Numeric(78)}}},
		SubjectKeys: []string{"Math", "Physics"},
		Averages:    map[string]model.Score{"Math": model.Numeric(78), "Physics": model.Numeric(34.5)},
		TopPerformers: []model.StudentTotal{
			{Name: "Alice", Total: 168, Average: model.Numeric(84)},
			{Name: "Bob", Total: 59.5, Average: model.Numeric(59.5)},
			{Name: "Cara", Total: 40.2, Average: model.Numeric(40.2)},
			{Name: "Dan", Total: 12, Average: model.Numeric(12)},
		},
		BottomPerformers: []model.StudentTotal{{Name: "Dan", Total: 12, Average: model.Numeric(12)}},
		WeakSubjects:     []model.WeakSubject{{Subject: "Physics", Average: 34.5}},
		Trends:           map[string]model.SubjectTrend{"Math": {Mean: model.Numeric(78)}},
	}
}

func TestLocalSummary(t *testing.T) {
	got := LocalSummary(sampleReport())
	assert.Equal(t, "Summary: Class top performers: Alice (168), Bob (60), Cara (40). Weak subjects: Physics (35). Recommendations: Focus on Physics.", got)
}

func TestLocalSummaryWithoutWeakSubjects(t *testing.T) {
	report := sampleReport()
	report.WeakSubjects = nil
	report.TopPerformers = report.TopPerformers[:1]
	got := LocalSummary(report)
	assert.Equal(t, "Summary: Class top performers: Alice (168). Weak subjects: None. Recommendations: Focus on higher order thinking.", got)
}

func TestRoundHalfUp(t *testing.T) {
	assert.Equal(t, "3", roundHalfUp(2.5))
	assert.Equal(t, "-2", roundHalfUp(-2.5))
	assert.Equal(t, "0", roundHalfUp(-0.4))
}

func TestTrimDropsStudentRows(t *testing.T) {
	view := Trim(sampleReport())
	data, err := json.Marshal(view)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"students"`)
	assert.Contains(t, string(data), `"weakSubjects"`)

	prompt, err := BuildPrompt(view)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(prompt, "You are an assistant that summarizes student performance."))
	assert.Contains(t, prompt, "summary, top_insights (array), recommendations (array)")
	assert.Contains(t, prompt, `  "subjectKeys": [`)
}

func TestParseAnswer(t *testing.T) {
	structured := ParseAnswer("```json\n{\"summary\":\"Solid term\",\"top_insights\":[\"Math strong\"],\"recommendations\":[\"Review physics\"]}\n```")
	assert.Equal(t, Insights{
		Source:          SourceLLM,
		Summary:         "Solid term",
		TopInsights:     []string{"Math strong"},
		Recommendations: []string{"Review physics"},
	}, structured)

	free := ParseAnswer("  The class did well overall. ")
	assert.Equal(t, Insights{Source: SourceLLM, Text: "The class did well overall."}, free)
}

func TestClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, defaultMaxTokens, req.MaxTokens)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "hello", req.Messages[1].Content)
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":" hi there "}}]}`)
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{Endpoint: srv.URL, Model: "test-model", APIKey: "key-1"})
	require.NoError(t, err)
	got, err := client.Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", got)
}

func TestClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{Endpoint: srv.URL, Model: "m", APIKey: "k"})
	require.NoError(t, err)
	_, err = client.Complete(context.Background(), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(ClientConfig{Endpoint: "http://x", Model: "m"})
	assert.ErrorIs(t, err, ErrNoAPIKey)
	_, err = NewClient(ClientConfig{Model: "m", APIKey: "k"})
	assert.Error(t, err)
	_, err = NewClient(ClientConfig{Endpoint: "http://x", APIKey: "k"})
	assert.Error(t, err)
}

type stubCompleter struct {
	answer string
	err    error
	prompt string
}

func (s *stubCompleter) Complete(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.answer, s.err
}

func TestGeneratorFallsBackToLocal(t *testing.T) {
	report := sampleReport()

	got := NewGenerator(nil, nil).Generate(context.Background(), report)
	assert.Equal(t, SourceLocal, got.Source)
	assert.Equal(t, LocalSummary(report), got.Summary)

	failing := &stubCompleter{err: errors.New("dial tcp: refused")}
	got = NewGenerator(failing, nil).Generate(context.Background(), report)
	assert.Equal(t, SourceLocal, got.Source)
	assert.NotEmpty(t, failing.prompt)
}

func TestGeneratorUsesModelAnswer(t *testing.T) {
	stub := &stubCompleter{answer: `{"summary":"Good","recommendations":["Physics drills"]}`}
	got := NewGenerator(stub, nil).Generate(context.Background(), sampleReport())
	assert.Equal(t, SourceLLM, got.Source)
	assert.Equal(t, "Good", got.Summary)
	assert.Equal(t, []string{"Physics drills"}, got.Recommendations)
	assert.Contains(t, stub.prompt, `"Physics"`)
}
