package stats

import (
	"testing"

	"github.com/verte-zerg/gradelens/internal/model"
)

func totals(pairs ...any) []model.StudentTotal {
	out := make([]model.StudentTotal, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, model.StudentTotal{Name: pairs[i].(string), Total: float64(pairs[i+1].(int))})
	}
	return out
}

func names(ts []model.StudentTotal) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Name
	}
	return out
}

func TestRankTotalsOrdersByTotalDesc(t *testing.T) {
	ranked := RankTotals(totals("D", 50, "B", 70, "A", 90, "C", 70))
	got := names(ranked)
	if got[0] != "A" || got[3] != "D" {
		t.Fatalf("unexpected order: %v", got)
	}
	if got[1] != "B" || got[2] != "C" {
		t.Fatalf("expected ties in input order, got %v", got)
	}
}

func TestTopAndBottomPerformers(t *testing.T) {
	ranked := RankTotals(totals("a", 10, "b", 20, "c", 30, "d", 40, "e", 50, "f", 60, "g", 70))
	top := names(TopPerformers(ranked, PerformerCount))
	if len(top) != 5 || top[0] != "g" || top[4] != "c" {
		t.Fatalf("unexpected top: %v", top)
	}
	bottom := names(BottomPerformers(ranked, PerformerCount))
	want := []string{"a", "b", "c", "d", "e"}
	for i := range want {
		if bottom[i] != want[i] {
			t.Fatalf("unexpected bottom: %v", bottom)
		}
	}
}

func TestPerformersWithFewStudents(t *testing.T) {
	ranked := RankTotals(totals("x", 1, "y", 2))
	if got := names(TopPerformers(ranked, PerformerCount)); len(got) != 2 || got[0] != "y" {
		t.Fatalf("unexpected top: %v", got)
	}
	if got := names(BottomPerformers(ranked, PerformerCount)); len(got) != 2 || got[0] != "x" {
		t.Fatalf("unexpected bottom: %v", got)
	}
	if got := TopPerformers(nil, PerformerCount); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", got)
	}
}
