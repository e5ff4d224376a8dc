package stats

import (
	"strconv"
	"strings"

	"github.com/verte-zerg/gradelens/internal/model"
)

// NormalizeScore keeps only ASCII digits, '.' and '-' from raw and parses the
// rest as a float. Anything that does not parse is missing, never zero.
func NormalizeScore(raw string) model.Score {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		if (ch >= '0' && ch <= '9') || ch == '.' || ch == '-' {
			b.WriteByte(ch)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return model.Missing()
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return model.Missing()
	}
	return model.Numeric(v)
}

// NormalizeRecords converts raw rows into student records for the schema.
func NormalizeRecords(records []model.RawRecord, schema model.Schema) []model.StudentRecord {
	students := make([]model.StudentRecord, 0, len(records))
	for _, r := range records {
		scores := make(map[string]model.Score, len(schema.SubjectColumns))
		for _, subject := range schema.SubjectColumns {
			scores[subject] = NormalizeScore(r.Get(subject))
		}
		students = append(students, model.StudentRecord{
			Name:   r.Get(schema.IdentityColumn),
			Scores: scores,
		})
	}
	return students
}
