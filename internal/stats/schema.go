package stats

import (
	"strings"

	"github.com/verte-zerg/gradelens/internal/model"
)

// identityHints are matched case-insensitively as substrings of column names.
var identityHints = []string{"name", "student"}

// InferSchema picks the identity column from the first record's columns.
// The first column whose name contains an identity hint wins; when none does,
// the first column is used. Every other column is a subject, in source order.
func InferSchema(first model.RawRecord) model.Schema {
	if len(first.Keys) == 0 {
		return model.Schema{}
	}
	identity, ok := matchIdentityColumn(first.Keys)
	if !ok {
		identity = first.Keys[0]
	}
	subjects := make([]string, 0, len(first.Keys)-1)
	for _, k := range first.Keys {
		if k == identity {
			continue
		}
		subjects = append(subjects, k)
	}
	return model.Schema{IdentityColumn: identity, SubjectColumns: subjects}
}

func matchIdentityColumn(keys []string) (string, bool) {
	for _, k := range keys {
		lower := strings.ToLower(k)
		for _, hint := range identityHints {
			if strings.Contains(lower, hint) {
				return k, true
			}
		}
	}
	return "", false
}
