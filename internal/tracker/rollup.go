package tracker

import (
	"github.com/pavelanni/examstats/internal/model"
)

type accumulator struct {
	r        model.Rollup
	scoreSum float64
	scored   int
}

func (a *accumulator) add(s *model.ExamSession) {
	r := &a.r
	r.ExamID = s.ExamID
	if s.ExamLabel != "" {
		r.ExamLabel = s.ExamLabel
	}
	r.SessionCount++
	r.TotalQuestions += s.Totals.TotalQuestions
	r.Correct += s.Totals.Correct
	r.Incorrect += s.Totals.Incorrect
	r.Preview += s.Totals.Preview
	r.TotalTimeSeconds += s.Totals.TotalTimeSeconds
	if s.EndedAt != nil && s.EndedAt.After(r.LastAttempt) {
		r.LastAttempt = *s.EndedAt
	}
	score, ok := s.Score()
	if !ok {
		return
	}
	if a.scored == 0 || score > r.BestScore {
		r.BestScore = score
	}
	a.scoreSum += score
	a.scored++
}

func (a *accumulator) rollup() model.Rollup {
	r := a.r
	if a.scored > 0 {
		r.AverageScore = a.scoreSum / float64(a.scored)
	}
	return r
}

// BuildRollups aggregates the closed sessions by exam. Open sessions never
// contribute. Scores are fractions in [0, 1]; sessions in which nothing was
// answered count toward SessionCount but not toward the scores.
func BuildRollups(sessions []*model.ExamSession) map[string]model.Rollup {
	acc := make(map[string]*accumulator)
	for _, s := range sessions {
		if s == nil || !s.Closed {
			continue
		}
		a, ok := acc[s.ExamID]
		if !ok {
			a = &accumulator{}
			acc[s.ExamID] = a
		}
		a.add(s)
	}
	out := make(map[string]model.Rollup, len(acc))
	for id, a := range acc {
		out[id] = a.rollup()
	}
	return out
}

// buildRollup aggregates the closed sessions of one exam.
func buildRollup(sessions []*model.ExamSession, examID string) (model.Rollup, bool) {
	var a accumulator
	for _, s := range sessions {
		if s != nil && s.Closed && s.ExamID == examID {
			a.add(s)
		}
	}
	return a.rollup(), a.r.SessionCount > 0
}
