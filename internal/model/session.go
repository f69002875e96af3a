package model

import "time"

// NewExamSession returns an open session with no questions.
func NewExamSession(id, examID, examLabel string, startedAt time.Time) *ExamSession {
	return &ExamSession{
		ID:        id,
		ExamID:    examID,
		ExamLabel: examLabel,
		StartedAt: startedAt,
	}
}

// Question returns the aggregate for questionID, if the session has one.
func (s *ExamSession) Question(questionID string) (*QuestionAttempt, bool) {
	for _, q := range s.Questions {
		if q.QuestionID == questionID {
			return q, true
		}
	}
	return nil, false
}

// Touch returns the aggregate for questionID, creating it on first use.
func (s *ExamSession) Touch(questionID string) *QuestionAttempt {
	if q, ok := s.Question(questionID); ok {
		return q
	}
	q := NewQuestionAttempt(questionID)
	s.Questions = append(s.Questions, q)
	return q
}

// Tally computes totals from the first action of every aggregate.
func (s *ExamSession) Tally() SessionTotals {
	var t SessionTotals
	for _, q := range s.Questions {
		t.TotalTimeSeconds += q.TimeSpentSeconds
		switch q.FirstAction {
		case FirstActionCorrect:
			t.Correct++
		case FirstActionIncorrect:
			t.Incorrect++
		case FirstActionPreview:
			t.Preview++
		default:
			continue
		}
		t.TotalQuestions++
	}
	return t
}

// Close freezes the session totals. It reports false if the session was
// already closed.
func (s *ExamSession) Close(at time.Time) bool {
	if s.Closed {
		return false
	}
	s.EndedAt = &at
	s.Totals = s.Tally()
	s.Closed = true
	return true
}

// LastActivity is the latest time recorded in the session: its end, its
// last attempt, or its start.
func (s *ExamSession) LastActivity() time.Time {
	if s.EndedAt != nil {
		return *s.EndedAt
	}
	last := s.StartedAt
	for _, q := range s.Questions {
		for _, a := range q.Attempts {
			if a.At.After(last) {
				last = a.At
			}
		}
	}
	return last
}

// Score is correct over total questions. ok is false for a session in which
// nothing was answered.
func (s *ExamSession) Score() (score float64, ok bool) {
	if s.Totals.TotalQuestions == 0 {
		return 0, false
	}
	return float64(s.Totals.Correct) / float64(s.Totals.TotalQuestions), true
}

// Clone returns a deep copy.
func (s *ExamSession) Clone() *ExamSession {
	if s == nil {
		return nil
	}
	c := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	if s.Questions != nil {
		c.Questions = make([]*QuestionAttempt, len(s.Questions))
		for i, q := range s.Questions {
			c.Questions[i] = q.Clone()
		}
	}
	c.Extra = cloneExtra(s.Extra)
	return &c
}
