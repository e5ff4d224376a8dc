package stats

import (
	"sort"

	"github.com/verte-zerg/gradelens/internal/model"
)

// PerformerCount is the size of the top and bottom performer lists.
const PerformerCount = 5

// RankTotals returns the totals ordered by total descending. Ties keep their
// input order so repeated runs rank identically.
func RankTotals(totals []model.StudentTotal) []model.StudentTotal {
	ranked := make([]model.StudentTotal, len(totals))
	copy(ranked, totals)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Total > ranked[j].Total
	})
	return ranked
}

// TopPerformers returns the first n entries of a ranked list.
func TopPerformers(ranked []model.StudentTotal, n int) []model.StudentTotal {
	if n <= 0 || len(ranked) == 0 {
		return []model.StudentTotal{}
	}
	if n > len(ranked) {
		n = len(ranked)
	}
	out := make([]model.StudentTotal, n)
	copy(out, ranked[:n])
	return out
}

// BottomPerformers returns the last n entries of a ranked list, worst first.
func BottomPerformers(ranked []model.StudentTotal, n int) []model.StudentTotal {
	if n <= 0 || len(ranked) == 0 {
		return []model.StudentTotal{}
	}
	if n > len(ranked) {
		n = len(ranked)
	}
	out := make([]model.StudentTotal, 0, n)
	for i := len(ranked) - 1; i >= len(ranked)-n; i-- {
		out = append(out, ranked[i])
	}
	return out
}
