package model

import (
	"slices"
	"strings"
	"time"
)

// FirstAction classifies the first interaction a user had with a question.
type FirstAction string

const (
	// FirstActionUnset means the question has not been interacted with yet.
	FirstActionUnset FirstAction = "unset"
	// FirstActionCorrect means the first attempt matched the answer key.
	FirstActionCorrect FirstAction = "correct"
	// FirstActionIncorrect means the first attempt did not match the answer key.
	FirstActionIncorrect FirstAction = "incorrect"
	// FirstActionPreview means the answer was previewed before any attempt.
	FirstActionPreview FirstAction = "preview"
)

var validFirstActions = map[FirstAction]bool{
	FirstActionUnset:     true,
	FirstActionCorrect:   true,
	FirstActionIncorrect: true,
	FirstActionPreview:   true,
}

// IsSet reports whether the classification has been frozen.
func (k FirstAction) IsSet() bool {
	return k != FirstActionUnset && k != ""
}

// ParseFirstAction maps a stored value to a FirstAction.
// Empty input is treated as unset.
func ParseFirstAction(s string) (FirstAction, bool) {
	if s == "" {
		return FirstActionUnset, true
	}
	k := FirstAction(strings.ToLower(s))
	return k, validFirstActions[k]
}

// AnswerSet is a sorted set of answer-option identifiers.
// The empty set is always represented as nil.
type AnswerSet []string

// NewAnswerSet builds a normalized set: trimmed, deduplicated, sorted.
func NewAnswerSet(ids ...string) AnswerSet {
	var set AnswerSet
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(set, id) {
			continue
		}
		set = append(set, id)
	}
	slices.Sort(set)
	return set
}

// Equal reports set equality.
func (a AnswerSet) Equal(b AnswerSet) bool {
	return slices.Equal(NewAnswerSet(a...), NewAnswerSet(b...))
}

func (a AnswerSet) String() string {
	return strings.Join(a, ",")
}

// Attempt is one validation of a question. Attempts are never edited.
type Attempt struct {
	Answers   AnswerSet      `json:"answers" yaml:"answers"`
	Correct   bool           `json:"correct" yaml:"correct"`
	Previewed bool           `json:"previewed" yaml:"previewed"`
	At        time.Time      `json:"at" yaml:"at"`
	Extra     map[string]any `json:"-" yaml:"-"`
}

// QuestionAttempt holds every interaction with one question inside one session.
type QuestionAttempt struct {
	QuestionID              string         `json:"questionId" yaml:"questionId" validate:"required"`
	CorrectAnswerKey        AnswerSet      `json:"correctAnswerKey" yaml:"correctAnswerKey"`
	Attempts                []Attempt      `json:"attempts" yaml:"attempts"`
	FirstAction             FirstAction    `json:"firstActionKind" yaml:"firstActionKind" validate:"oneof=unset correct incorrect preview"`
	ResetCount              int            `json:"resetCount" yaml:"resetCount" validate:"min=0"`
	PreviewInteractionCount int            `json:"previewInteractionCount" yaml:"previewInteractionCount" validate:"min=0"`
	TimeSpentSeconds        int64          `json:"timeSpentSeconds" yaml:"timeSpentSeconds" validate:"min=0"`
	Extra                   map[string]any `json:"-" yaml:"-"`
}

// SessionTotals are the counters frozen when a session closes.
type SessionTotals struct {
	TotalQuestions   int   `json:"totalQuestions" yaml:"totalQuestions" validate:"min=0"`
	Correct          int   `json:"correct" yaml:"correct" validate:"min=0"`
	Incorrect        int   `json:"incorrect" yaml:"incorrect" validate:"min=0"`
	Preview          int   `json:"preview" yaml:"preview" validate:"min=0"`
	TotalTimeSeconds int64 `json:"totalTimeSeconds" yaml:"totalTimeSeconds" validate:"min=0"`
}

// ExamSession is one continuous study run over a single exam.
type ExamSession struct {
	ID        string             `json:"sessionId" yaml:"sessionId" validate:"required"`
	ExamID    string             `json:"examId" yaml:"examId" validate:"required"`
	ExamLabel string             `json:"examLabel" yaml:"examLabel"`
	StartedAt time.Time          `json:"startedAt" yaml:"startedAt"`
	EndedAt   *time.Time         `json:"endedAt,omitempty" yaml:"endedAt,omitempty"`
	Questions []*QuestionAttempt `json:"questionAttempts" yaml:"questionAttempts" validate:"dive,required"`
	Closed    bool               `json:"closed" yaml:"closed"`
	Totals    SessionTotals      `json:"totals" yaml:"totals"`
	Extra     map[string]any     `json:"-" yaml:"-"`
}

// Rollup aggregates closed sessions of one exam.
type Rollup struct {
	ExamID           string    `json:"examId"`
	ExamLabel        string    `json:"examLabel"`
	TotalQuestions   int       `json:"totalQuestions"`
	Correct          int       `json:"correct"`
	Incorrect        int       `json:"incorrect"`
	Preview          int       `json:"preview"`
	TotalTimeSeconds int64     `json:"totalTimeSeconds"`
	SessionCount     int       `json:"sessionCount"`
	BestScore        float64   `json:"bestScore"`
	AverageScore     float64   `json:"averageScore"`
	LastAttempt      time.Time `json:"lastAttempt"`
}

// Now returns the current time at millisecond precision, matching what
// survives a round trip through storage.
func Now() time.Time {
	return time.UnixMilli(time.Now().UnixMilli())
}
