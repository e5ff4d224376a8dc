package stats

import (
	"math"

	"github.com/verte-zerg/gradelens/internal/model"
)

// Accumulator is a per-subject running aggregate. Add returns a new value and
// never writes into the receiver's Values, so one accumulator can seed several
// folds. Min and Max are meaningful only when Count > 0.
type Accumulator struct {
	Sum    float64
	Count  int
	Min    float64
	Max    float64
	Values []float64
}

// Add folds one score into the accumulator.
func (a Accumulator) Add(v float64) Accumulator {
	if a.Count == 0 {
		a.Min, a.Max = v, v
	} else {
		a.Min = math.Min(a.Min, v)
		a.Max = math.Max(a.Max, v)
	}
	a.Sum += v
	a.Count++
	a.Values = append(a.Values[:len(a.Values):len(a.Values)], v)
	return a
}

// merge combines two accumulators built over disjoint rows.
func (a Accumulator) merge(b Accumulator) Accumulator {
	if b.Count == 0 {
		return a
	}
	if a.Count == 0 {
		return b
	}
	values := make([]float64, 0, len(a.Values)+len(b.Values))
	values = append(values, a.Values...)
	values = append(values, b.Values...)
	return Accumulator{
		Sum:    a.Sum + b.Sum,
		Count:  a.Count + b.Count,
		Min:    math.Min(a.Min, b.Min),
		Max:    math.Max(a.Max, b.Max),
		Values: values,
	}
}

// Mean returns Sum/Count, or missing for an empty accumulator.
func (a Accumulator) Mean() model.Score {
	if a.Count == 0 {
		return model.Missing()
	}
	return model.Numeric(a.mean())
}

// mean is Sum/Count kept inside [Min, Max]; the division can round past
// either bound.
func (a Accumulator) mean() float64 {
	if a.Min == a.Max {
		return a.Min
	}
	m := a.Sum / float64(a.Count)
	return math.Max(a.Min, math.Min(a.Max, m))
}

// Trend returns mean, min, max and population standard deviation. A single
// value or identical values give a standard deviation of 0.
func (a Accumulator) Trend() model.SubjectTrend {
	if a.Count == 0 {
		return model.SubjectTrend{}
	}
	mean := a.mean()
	sd := 0.0
	if a.Min != a.Max {
		var sq float64
		for _, v := range a.Values {
			d := v - mean
			sq += d * d
		}
		sd = math.Sqrt(sq / float64(a.Count))
	}
	return model.SubjectTrend{
		Mean: model.Numeric(mean),
		Min:  model.Numeric(a.Min),
		Max:  model.Numeric(a.Max),
		SD:   model.Numeric(sd),
	}
}

// Aggregation is the output of one pass over the student records.
type Aggregation struct {
	Subjects map[string]Accumulator
	Totals   []model.StudentTotal
}

// Aggregate folds every numeric score into its subject accumulator and the
// student's own total in a single students x subjects pass.
func Aggregate(schema model.Schema, students []model.StudentRecord) Aggregation {
	subjects := make(map[string]Accumulator, len(schema.SubjectColumns))
	for _, subject := range schema.SubjectColumns {
		subjects[subject] = Accumulator{}
	}
	totals := make([]model.StudentTotal, 0, len(students))
	for _, st := range students {
		var total float64
		valid := 0
		for _, subject := range schema.SubjectColumns {
			v, ok := st.Scores[subject].Value()
			if !ok {
				continue
			}
			subjects[subject] = subjects[subject].Add(v)
			total += v
			valid++
		}
		avg := model.Missing()
		if valid > 0 {
			avg = model.Numeric(total / float64(valid))
		}
		totals = append(totals, model.StudentTotal{
			Name:    st.Name,
			Total:   total,
			Average: avg,
		})
	}
	return Aggregation{Subjects: subjects, Totals: totals}
}
