// Package codec maps the session history to and from its stored text.
//
// Storage runs two independent layers. Layer 1 renames every structural
// field to a short alias and stores timestamps as epoch milliseconds; it is a
// strict 1:1 transform. Layer 2 rewrites frequent literals of the serialized
// JSON to single control-byte tokens that valid JSON output never contains.
package codec

import "strings"

// Names selects which column of the field dictionary a transform uses.
type Names int

const (
	// Compact is the storage form.
	Compact Names = iota
	// Verbose is the human-readable export form.
	Verbose
)

// Field is one entry of the static field dictionary.
type Field struct {
	Alias   string
	Verbose string
}

// Name returns the field name for the given form.
func (f Field) Name(n Names) string {
	if n == Verbose {
		return f.Verbose
	}
	return f.Alias
}

// Document level.
var (
	DocSessions = Field{"s", "sessions"}
	DocOpen     = Field{"o", "openSession"}
)

// Session level.
var (
	SessionID             = Field{"i", "sessionId"}
	SessionExam           = Field{"e", "examId"}
	SessionLabel          = Field{"n", "examLabel"}
	SessionStarted        = Field{"s", "startedAt"}
	SessionEnded          = Field{"d", "endedAt"}
	SessionQuestions      = Field{"q", "questionAttempts"}
	SessionClosed         = Field{"c", "closed"}
	SessionTotalQuestions = Field{"tq", "totalQuestions"}
	SessionCorrect        = Field{"ca", "correct"}
	SessionIncorrect      = Field{"ia", "incorrect"}
	SessionPreview        = Field{"pa", "preview"}
	SessionTime           = Field{"tt", "totalTimeSeconds"}
)

// Question level.
var (
	QuestionID          = Field{"qn", "questionId"}
	QuestionKey         = Field{"ck", "correctAnswerKey"}
	QuestionAttempts    = Field{"ua", "attempts"}
	QuestionFirstAction = Field{"fa", "firstActionKind"}
	QuestionResets      = Field{"rc", "resetCount"}
	QuestionPreviews    = Field{"pc", "previewInteractionCount"}
	QuestionTime        = Field{"ts", "timeSpentSeconds"}
)

// Attempt level.
var (
	AttemptAnswers   = Field{"a", "answers"}
	AttemptCorrect   = Field{"ic", "correct"}
	AttemptPreviewed = Field{"hl", "previewed"}
	AttemptAt        = Field{"t", "at"}
)

var (
	DocumentFields = []Field{DocSessions, DocOpen}
	SessionFields  = []Field{
		SessionID, SessionExam, SessionLabel, SessionStarted, SessionEnded,
		SessionQuestions, SessionClosed, SessionTotalQuestions, SessionCorrect,
		SessionIncorrect, SessionPreview, SessionTime,
	}
	QuestionFields = []Field{
		QuestionID, QuestionKey, QuestionAttempts, QuestionFirstAction,
		QuestionResets, QuestionPreviews, QuestionTime,
	}
	AttemptFields = []Field{AttemptAnswers, AttemptCorrect, AttemptPreviewed, AttemptAt}
)

// escapePrefix marks an unknown field whose name would otherwise collide
// with a dictionary name. It is added on encode and removed on decode.
const escapePrefix = "~"

// EscapeKey returns the stored name of an unknown field called k.
func EscapeKey(k string) string {
	return escapePrefix + k
}

func escapeExtra(k string, knownKeys map[string]bool) string {
	if knownKeys[k] || strings.HasPrefix(k, escapePrefix) {
		return EscapeKey(k)
	}
	return k
}

func unescapeExtra(k string) string {
	return strings.TrimPrefix(k, escapePrefix)
}

func known(fields []Field, n Names) map[string]bool {
	m := make(map[string]bool, len(fields))
	for _, f := range fields {
		m[f.Name(n)] = true
	}
	return m
}
