package stats

import "github.com/verte-zerg/gradelens/internal/model"

// WeakThreshold is the class mean under which a subject counts as weak. It is
// applied on the input's own scale.
const WeakThreshold = 40.0

// SelectWeakSubjects returns subjects whose mean is present and under
// WeakThreshold, in subject order. Subjects without any score are never weak.
func SelectWeakSubjects(subjects []string, means map[string]model.Score) []model.WeakSubject {
	weak := []model.WeakSubject{}
	for _, subject := range subjects {
		mean, ok := means[subject].Value()
		if !ok || mean >= WeakThreshold {
			continue
		}
		weak = append(weak, model.WeakSubject{Subject: subject, Average: mean})
	}
	return weak
}
