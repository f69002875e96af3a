package model

import "time"

// NewQuestionAttempt returns an aggregate with no interactions.
func NewQuestionAttempt(questionID string) *QuestionAttempt {
	return &QuestionAttempt{QuestionID: questionID, FirstAction: FirstActionUnset}
}

// RecordAttempt appends an attempt and scores it against the answer key.
//
// The key is frozen by the first attempt, even when that attempt carried
// no key; later calls score against the frozen key and ignore the argument.
// A key stored before any attempt is kept. The first action is classified
// only if it is still unset. An attempt scored without any known key is
// never correct.
func (q *QuestionAttempt) RecordAttempt(answers, key AnswerSet, previewed bool, at time.Time) Attempt {
	if len(q.Attempts) == 0 && q.CorrectAnswerKey == nil {
		q.CorrectAnswerKey = NewAnswerSet(key...)
	}
	answers = NewAnswerSet(answers...)
	a := Attempt{
		Answers:   answers,
		Correct:   len(q.CorrectAnswerKey) > 0 && answers.Equal(q.CorrectAnswerKey),
		Previewed: previewed,
		At:        at,
	}
	q.Attempts = append(q.Attempts, a)

	if !q.FirstAction.IsSet() {
		if a.Correct {
			q.FirstAction = FirstActionCorrect
		} else {
			q.FirstAction = FirstActionIncorrect
		}
	}
	return a
}

// RecordPreviewInteraction counts a preview activation or view.
func (q *QuestionAttempt) RecordPreviewInteraction() {
	q.PreviewInteractionCount++
	if !q.FirstAction.IsSet() {
		q.FirstAction = FirstActionPreview
	}
}

// RecordReset counts an explicit clear of the current selection.
// Resets are analytics only and never change the first action.
func (q *QuestionAttempt) RecordReset() {
	q.ResetCount++
}

// RecordTime attributes wall-clock seconds to the question.
func (q *QuestionAttempt) RecordTime(seconds int64) {
	if seconds > 0 {
		q.TimeSpentSeconds += seconds
	}
}

// TotalHighlightInteractions is kept for consumers of the older
// highlight-based counters.
func (q *QuestionAttempt) TotalHighlightInteractions() int {
	return q.PreviewInteractionCount
}

// Answered reports whether the question counts toward statistics.
func (q *QuestionAttempt) Answered() bool {
	return q.FirstAction.IsSet()
}

// Clone returns a deep copy.
func (q *QuestionAttempt) Clone() *QuestionAttempt {
	if q == nil {
		return nil
	}
	c := *q
	c.CorrectAnswerKey = cloneAnswers(q.CorrectAnswerKey)
	if q.Attempts != nil {
		c.Attempts = make([]Attempt, len(q.Attempts))
		for i, a := range q.Attempts {
			a.Answers = cloneAnswers(a.Answers)
			a.Extra = cloneExtra(a.Extra)
			c.Attempts[i] = a
		}
	}
	c.Extra = cloneExtra(q.Extra)
	return &c
}

func cloneAnswers(a AnswerSet) AnswerSet {
	if a == nil {
		return nil
	}
	return append(AnswerSet(nil), a...)
}

// cloneExtra copies the top level of preserved unknown fields. Values are
// treated as immutable once decoded.
func cloneExtra(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
