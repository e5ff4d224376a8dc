// Package model defines shared data structures.
package model

import (
	"encoding/json"
	"time"
)

// RawRecord is one input row: column name to raw cell text. Keys keeps the
// source column order.
type RawRecord struct {
	Keys  []string
	Cells map[string]string
}

// NewRawRecord pairs keys with values by position. Missing values become "".
func NewRawRecord(keys, values []string) RawRecord {
	cells := make(map[string]string, len(keys))
	for i, k := range keys {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		cells[k] = v
	}
	return RawRecord{Keys: append([]string(nil), keys...), Cells: cells}
}

// Get returns the raw cell for a column, or "" when the column is absent.
func (r RawRecord) Get(key string) string {
	return r.Cells[key]
}

// Schema splits a batch's columns into the identity column and subjects.
type Schema struct {
	IdentityColumn string
	SubjectColumns []string
}

// StudentRecord holds one row after normalization.
type StudentRecord struct {
	Name   string           `json:"name"`
	Scores map[string]Score `json:"scores"`
}

// StudentTotal is a student's ranking entry.
type StudentTotal struct {
	Name    string  `json:"name"`
	Total   float64 `json:"total"`
	Average Score   `json:"avg"`
}

// MarshalJSON encodes an overflowed total as null, like a missing score.
func (t StudentTotal) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name    string `json:"name"`
		Total   Score  `json:"total"`
		Average Score  `json:"avg"`
	}{Name: t.Name, Total: Numeric(t.Total), Average: t.Average})
}

// WeakSubject is a subject whose class mean is under the weak threshold.
type WeakSubject struct {
	Subject string  `json:"subject"`
	Average float64 `json:"average"`
}

// SubjectTrend summarizes the spread of one subject's scores.
type SubjectTrend struct {
	Mean Score `json:"mean"`
	Min  Score `json:"min"`
	Max  Score `json:"max"`
	SD   Score `json:"sd"`
}

// ClassReport is the immutable result of analyzing one batch.
type ClassReport struct {
	Students         []StudentRecord         `json:"students"`
	SubjectKeys      []string                `json:"subjectKeys"`
	Averages         map[string]Score        `json:"averages"`
	TopPerformers    []StudentTotal          `json:"topPerformers"`
	BottomPerformers []StudentTotal          `json:"bottomPerformers"`
	WeakSubjects     []WeakSubject           `json:"weakSubjects"`
	Trends           map[string]SubjectTrend `json:"trends"`
	RawTotals        []StudentTotal          `json:"rawTotals"`
}

// SubjectValues returns the numeric scores for a subject in student order.
func (r ClassReport) SubjectValues(subject string) []float64 {
	var out []float64
	for _, st := range r.Students {
		if v, ok := st.Scores[subject].Value(); ok {
			out = append(out, v)
		}
	}
	return out
}

// AnalyzeConfig defines options for the analyze command.
type AnalyzeConfig struct {
	Format   string
	Insights bool
	Save     bool
	Color    bool
	Sheet    string
}

// HistoryConfig defines filters for stored analyses.
type HistoryConfig struct {
	Since *time.Time
	Last  int
}

// AnalysisMeta describes where a stored report came from.
type AnalysisMeta struct {
	CreatedAt  time.Time
	SourceName string
	SourceKind string
}

// AnalysisSummary is one row of the analysis history.
type AnalysisSummary struct {
	ID         string
	CreatedAt  time.Time
	SourceName string
	SourceKind string
	Students   int
	Subjects   int
	WeakCount  int
}

// StoredAnalysis is a persisted report with its metadata.
type StoredAnalysis struct {
	AnalysisSummary
	Report ClassReport
}

// SubjectPoint is one subject's mean in one stored analysis.
type SubjectPoint struct {
	AnalysisID string
	CreatedAt  time.Time
	Mean       Score
}
