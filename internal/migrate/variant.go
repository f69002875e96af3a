// Package migrate normalizes stored history of any known shape into the
// current compact shape before it is decoded.
//
// Three field-name families are recognized: the current compact aliases,
// the verbose names written by older releases and by snapshot exports, and
// a prior compact alias set. Shapes are told apart structurally; stored
// history predates any version tag.
package migrate

import (
	"github.com/pavelanni/examstats/internal/codec"
)

// Variant is the detected shape of a record.
type Variant int

const (
	Current Variant = iota
	Legacy
	Unrecognized
)

func (v Variant) String() string {
	switch v {
	case Current:
		return "current"
	case Legacy:
		return "legacy"
	default:
		return "unrecognized"
	}
}

// rule maps older names onto one current alias. When sum is set every
// present name contributes; otherwise the first present name wins.
type rule struct {
	to   codec.Field
	from []string
	conv func(any) (any, bool)
	sum  bool
}

var documentRules = []rule{
	{to: codec.DocSessions, from: []string{"sessions"}},
	{to: codec.DocOpen, from: []string{"openSession", "currentSession"}},
}

// Derived aggregate statistics written by old releases. Rollups are always
// recomputed from sessions, so these are dropped.
var derivedDocumentFields = []string{"totalStats", "rollups"}

var sessionRules = []rule{
	{to: codec.SessionID, from: []string{"sessionId", "id"}, conv: toString},
	{to: codec.SessionExam, from: []string{"examId", "examCode", "ec"}, conv: toString},
	{to: codec.SessionLabel, from: []string{"examLabel", "examName", "en"}, conv: toString},
	{to: codec.SessionStarted, from: []string{"startedAt", "startTime", "st"}, conv: toMillis},
	{to: codec.SessionEnded, from: []string{"endedAt", "endTime", "et"}, conv: toMillis},
	{to: codec.SessionQuestions, from: []string{"questionAttempts", "questions", "qs"}},
	{to: codec.SessionClosed, from: []string{"closed"}},
	{to: codec.SessionTotalQuestions, from: []string{"totalQuestions"}, conv: toInt},
	{to: codec.SessionCorrect, from: []string{"correct", "correctAnswers"}, conv: toInt},
	{to: codec.SessionIncorrect, from: []string{"incorrect", "incorrectAnswers"}, conv: toInt},
	{to: codec.SessionPreview, from: []string{"preview", "previewAnswers"}, conv: toInt},
	{to: codec.SessionTime, from: []string{"totalTimeSeconds", "totalTime"}, conv: toInt},
}

var questionRules = []rule{
	{to: codec.QuestionID, from: []string{"questionId", "questionNumber"}, conv: toString},
	{to: codec.QuestionKey, from: []string{"correctAnswerKey", "correctAnswers", "ca"}, conv: toAnswers},
	{to: codec.QuestionAttempts, from: []string{"attempts", "userAnswers"}},
	{to: codec.QuestionFirstAction, from: []string{"firstActionKind", "firstActionType", "fat"}, conv: toFirstAction},
	{to: codec.QuestionResets, from: []string{"resetCount"}, conv: toInt},
	{to: codec.QuestionPreviews, from: []string{"previewInteractionCount"}, conv: toInt},
	{to: codec.QuestionPreviews, from: []string{"highlightButtonClicks", "highlightViewCount"}, conv: toInt, sum: true},
	{to: codec.QuestionPreviews, from: []string{"hb", "hv"}, conv: toInt, sum: true},
	{to: codec.QuestionTime, from: []string{"timeSpentSeconds", "timeSpent"}, conv: toInt},
}

// priorNames are the names only the prior compact family uses. Verbose
// records may carry them as unknown fields.
var priorNames = map[string]bool{
	"ec": true, "en": true, "st": true, "et": true, "qs": true,
	"ca": true, "fat": true, "hb": true, "hv": true,
}

func inFamily(name string, f family) bool {
	return f != familyVerbose || !priorNames[name]
}

// legacyCorrectFlag is the per-question correctness flag of the oldest
// shape. It only feeds the first-action derivation.
const legacyCorrectFlag = "isCorrect"

var attemptRules = []rule{
	{to: codec.AttemptAnswers, from: []string{"answers", "selectedAnswers"}, conv: toAnswers},
	{to: codec.AttemptCorrect, from: []string{"correct", "isCorrect"}},
	{to: codec.AttemptPreviewed, from: []string{"previewed", "wasHighlightEnabled"}},
	{to: codec.AttemptAt, from: []string{"at", "timestamp"}, conv: toMillis},
}

// family is the field-name set a record was written with.
type family int

const (
	familyNone family = iota
	familyCurrent
	familyVerbose
	familyPrior
)

// Identity names of the verbose family. A record carrying both an id and an
// exam under verbose names, and not both under current aliases, is verbose.
var (
	verboseSessionIDs   = []string{"sessionId", "id"}
	verboseSessionExams = []string{"examId", "examCode"}
	verboseQuestionIDs  = []string{"questionId", "questionNumber"}
)

// triggered reports whether any rule applies: an older name is present
// while the current alias is absent.
func triggered(m map[string]any, rules []rule) bool {
	for _, r := range rules {
		if _, ok := m[r.to.Alias]; ok {
			continue
		}
		for _, name := range r.from {
			if _, ok := m[name]; ok {
				return true
			}
		}
	}
	return false
}

func sessionFamily(m map[string]any) family {
	switch {
	case hasAll(m, codec.SessionID.Alias, codec.SessionExam.Alias):
		return familyCurrent
	case hasAny(m, verboseSessionIDs...) && hasAny(m, verboseSessionExams...):
		return familyVerbose
	case triggered(m, sessionRules):
		return familyPrior
	}
	return familyNone
}

func questionFamily(m map[string]any) family {
	switch {
	case hasAll(m, codec.QuestionID.Alias, codec.QuestionFirstAction.Alias):
		return familyCurrent
	case hasAny(m, verboseQuestionIDs...):
		return familyVerbose
	case triggered(m, questionRules):
		return familyPrior
	case has(m, legacyCorrectFlag):
		return familyPrior
	}
	return familyNone
}

func (f family) variant() Variant {
	switch f {
	case familyCurrent:
		return Current
	case familyVerbose, familyPrior:
		return Legacy
	}
	return Unrecognized
}

// DetectSession classifies a stored session record.
func DetectSession(v any) Variant {
	m, ok := codec.Map(v)
	if !ok {
		return Unrecognized
	}
	return sessionFamily(m).variant()
}

// DetectQuestion classifies a stored question record.
func DetectQuestion(v any) Variant {
	m, ok := codec.Map(v)
	if !ok {
		return Unrecognized
	}
	return questionFamily(m).variant()
}

func has(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

func hasAll(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		if !has(m, k) {
			return false
		}
	}
	return true
}
