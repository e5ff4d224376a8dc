package stats

import (
	"errors"
	"fmt"

	"github.com/verte-zerg/gradelens/internal/model"
)

var (
	// ErrNoData is returned for an empty batch. No aggregation is performed.
	ErrNoData = errors.New("no data")
	// ErrMalformedBatch is returned when records do not share one column set.
	ErrMalformedBatch = errors.New("malformed batch")
)

// Analyze turns one batch of raw records into a class report. It is pure:
// the same batch always yields the same report.
func Analyze(records []model.RawRecord) (model.ClassReport, error) {
	if len(records) == 0 {
		return model.ClassReport{}, ErrNoData
	}
	if err := validateBatch(records); err != nil {
		return model.ClassReport{}, err
	}

	schema := InferSchema(records[0])
	students := NormalizeRecords(records, schema)
	agg := Aggregate(schema, students)

	averages := make(map[string]model.Score, len(schema.SubjectColumns))
	trends := make(map[string]model.SubjectTrend, len(schema.SubjectColumns))
	for _, subject := range schema.SubjectColumns {
		acc := agg.Subjects[subject]
		averages[subject] = acc.Mean()
		trends[subject] = acc.Trend()
	}

	ranked := RankTotals(agg.Totals)
	return model.ClassReport{
		Students:         students,
		SubjectKeys:      append([]string{}, schema.SubjectColumns...),
		Averages:         averages,
		TopPerformers:    TopPerformers(ranked, PerformerCount),
		BottomPerformers: BottomPerformers(ranked, PerformerCount),
		WeakSubjects:     SelectWeakSubjects(schema.SubjectColumns, averages),
		Trends:           trends,
		RawTotals:        ranked,
	}, nil
}

func validateBatch(records []model.RawRecord) error {
	first := records[0]
	if len(first.Keys) == 0 {
		return fmt.Errorf("%w: record 1 has no columns", ErrMalformedBatch)
	}
	columns := make(map[string]struct{}, len(first.Keys))
	for _, k := range first.Keys {
		columns[k] = struct{}{}
	}
	if len(columns) != len(first.Keys) {
		return fmt.Errorf("%w: record 1 repeats a column", ErrMalformedBatch)
	}
	for i, r := range records[1:] {
		if len(r.Keys) != len(columns) {
			return fmt.Errorf("%w: record %d has %d columns, want %d", ErrMalformedBatch, i+2, len(r.Keys), len(columns))
		}
		seen := make(map[string]struct{}, len(r.Keys))
		for _, k := range r.Keys {
			if _, ok := columns[k]; !ok {
				return fmt.Errorf("%w: record %d has unknown column %q", ErrMalformedBatch, i+2, k)
			}
			if _, dup := seen[k]; dup {
				return fmt.Errorf("%w: record %d repeats column %q", ErrMalformedBatch, i+2, k)
			}
			seen[k] = struct{}{}
		}
	}
	return nil
}
