package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/verte-zerg/gradelens/internal/config"
	"github.com/verte-zerg/gradelens/internal/insight"
)

func TestDefaultConfigTemplateDecodes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if _, err := config.LoadConfig(path); err != nil {
		t.Fatalf("template should decode: %v", err)
	}

	uncommented := strings.ReplaceAll(defaultConfigTemplate(), "\n# ", "\n")
	uncommented = strings.SplitN(uncommented, "\n", 3)[2]
	if err := os.WriteFile(path, []byte(uncommented), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("uncommented template should decode: %v", err)
	}
	if cfg.Analyze.Format == nil || *cfg.Analyze.Format != defaultFormat {
		t.Fatalf("expected format %q, got %v", defaultFormat, cfg.Analyze.Format)
	}
	if cfg.Insight.Model == nil || *cfg.Insight.Model != config.DefaultInsightModel {
		t.Fatalf("expected default model, got %v", cfg.Insight.Model)
	}
}

func TestHistoryConfig(t *testing.T) {
	cfg, err := historyConfig("2026-01-15", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Last != 3 || cfg.Since == nil || cfg.Since.Format("2006-01-02") != "2026-01-15" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if _, err := historyConfig("15/01/2026", 0); err == nil {
		t.Fatalf("expected invalid --since error")
	}
	if _, err := historyConfig("", -1); err == nil {
		t.Fatalf("expected invalid --last error")
	}
}

func TestValidateFormat(t *testing.T) {
	for _, ok := range []string{"text", "json"} {
		if err := validateFormat(ok); err != nil {
			t.Fatalf("format %q: %v", ok, err)
		}
	}
	if err := validateFormat("yaml"); err == nil {
		t.Fatalf("expected error for yaml")
	}
}

func TestLoadReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.csv")
	data := "Name,Math,Physics\nAlice,90,35\nBob,70,20\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	report, kind, err := loadReport(context.Background(), path, "")
	if err != nil {
		t.Fatalf("load report: %v", err)
	}
	if kind != "csv" {
		t.Fatalf("expected csv kind, got %q", kind)
	}
	if len(report.Students) != 2 || report.RawTotals[0].Name != "Alice" {
		t.Fatalf("unexpected report: %+v", report.RawTotals)
	}
	if len(report.WeakSubjects) != 1 || report.WeakSubjects[0].Subject != "Physics" {
		t.Fatalf("expected Physics weak, got %+v", report.WeakSubjects)
	}
}

func TestLoadReportErrors(t *testing.T) {
	dir := t.TempDir()
	if _, _, err := loadReport(context.Background(), filepath.Join(dir, "scores.docx"), ""); err == nil {
		t.Fatalf("expected unsupported type error")
	}

	empty := filepath.Join(dir, "empty.csv")
	if err := os.WriteFile(empty, []byte("Name,Math\n"), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	_, _, err := loadReport(context.Background(), empty, "")
	if err == nil || !strings.Contains(err.Error(), "no student rows") {
		t.Fatalf("expected no rows error, got %v", err)
	}
}

func TestRenderInsights(t *testing.T) {
	var buf bytes.Buffer
	err := renderInsights(&buf, insight.Insights{
		Source:          insight.SourceLLM,
		Summary:         "Physics needs work.",
		TopInsights:     []string{"Alice leads"},
		Recommendations: []string{"Extra labs"},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Insights (llm)", "Physics needs work.", "  - Alice leads", "Recommendations:", "  - Extra labs"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}
