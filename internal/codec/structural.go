package codec

import (
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/examstats/internal/model"
)

var (
	errMissing = errors.New("missing required field")
	errType    = errors.New("unexpected value type")
)

func fieldErr(name string, err error) error {
	return fmt.Errorf("field %q: %w", name, err)
}

// EncodeSnapshot renames the snapshot into a generic document.
func EncodeSnapshot(s model.Snapshot, n Names) map[string]any {
	sessions := make([]map[string]any, 0, len(s.Sessions))
	for _, sess := range s.Sessions {
		sessions = append(sessions, EncodeSession(sess, n))
	}
	doc := map[string]any{DocSessions.Name(n): sessions}
	if s.Open != nil {
		doc[DocOpen.Name(n)] = EncodeSession(s.Open, n)
	}
	return doc
}

// EncodeSession renames one session. Zero counters, empty collections and
// zero timestamps are omitted; booleans are always written.
func EncodeSession(s *model.ExamSession, n Names) map[string]any {
	m := withExtra(s.Extra, known(SessionFields, n))
	m[SessionID.Name(n)] = s.ID
	m[SessionExam.Name(n)] = s.ExamID
	m[SessionClosed.Name(n)] = s.Closed
	putString(m, SessionLabel.Name(n), s.ExamLabel)
	putTime(m, SessionStarted.Name(n), s.StartedAt)
	if s.EndedAt != nil {
		putTime(m, SessionEnded.Name(n), *s.EndedAt)
	}
	if len(s.Questions) > 0 {
		qs := make([]map[string]any, len(s.Questions))
		for i, q := range s.Questions {
			qs[i] = EncodeQuestion(q, n)
		}
		m[SessionQuestions.Name(n)] = qs
	}
	putInt(m, SessionTotalQuestions.Name(n), int64(s.Totals.TotalQuestions))
	putInt(m, SessionCorrect.Name(n), int64(s.Totals.Correct))
	putInt(m, SessionIncorrect.Name(n), int64(s.Totals.Incorrect))
	putInt(m, SessionPreview.Name(n), int64(s.Totals.Preview))
	putInt(m, SessionTime.Name(n), s.Totals.TotalTimeSeconds)
	return m
}

// EncodeQuestion renames one question aggregate.
func EncodeQuestion(q *model.QuestionAttempt, n Names) map[string]any {
	m := withExtra(q.Extra, known(QuestionFields, n))
	m[QuestionID.Name(n)] = q.QuestionID
	m[QuestionFirstAction.Name(n)] = string(q.FirstAction)
	if q.CorrectAnswerKey != nil {
		m[QuestionKey.Name(n)] = []string(q.CorrectAnswerKey)
	}
	if len(q.Attempts) > 0 {
		as := make([]map[string]any, len(q.Attempts))
		for i, a := range q.Attempts {
			as[i] = EncodeAttempt(a, n)
		}
		m[QuestionAttempts.Name(n)] = as
	}
	putInt(m, QuestionResets.Name(n), int64(q.ResetCount))
	putInt(m, QuestionPreviews.Name(n), int64(q.PreviewInteractionCount))
	putInt(m, QuestionTime.Name(n), q.TimeSpentSeconds)
	return m
}

// EncodeAttempt renames one attempt record.
func EncodeAttempt(a model.Attempt, n Names) map[string]any {
	m := withExtra(a.Extra, known(AttemptFields, n))
	m[AttemptCorrect.Name(n)] = a.Correct
	m[AttemptPreviewed.Name(n)] = a.Previewed
	if a.Answers != nil {
		m[AttemptAnswers.Name(n)] = []string(a.Answers)
	}
	putTime(m, AttemptAt.Name(n), a.At)
	return m
}

// DecodeSnapshot is the strict inverse of EncodeSnapshot. Any malformed
// record fails the whole document; the tolerant path lives in migrate.
func DecodeSnapshot(doc map[string]any, n Names) (model.Snapshot, error) {
	var s model.Snapshot
	if v, ok := doc[DocSessions.Name(n)]; ok {
		items, ok := Slice(v)
		if !ok {
			return s, &DecodeError{Stage: StageDocument, Err: fieldErr(DocSessions.Name(n), errType)}
		}
		for i, it := range items {
			m, ok := Map(it)
			if !ok {
				return s, &DecodeError{Stage: StageRecord, Err: fmt.Errorf("session %d: %w", i, errType)}
			}
			sess, err := DecodeSession(m, n)
			if err != nil {
				return s, &DecodeError{Stage: StageRecord, Err: fmt.Errorf("session %d: %w", i, err)}
			}
			s.Sessions = append(s.Sessions, sess)
		}
	}
	if v, ok := doc[DocOpen.Name(n)]; ok && v != nil {
		m, ok := Map(v)
		if !ok {
			return s, &DecodeError{Stage: StageRecord, Err: fieldErr(DocOpen.Name(n), errType)}
		}
		open, err := DecodeSession(m, n)
		if err != nil {
			return s, &DecodeError{Stage: StageRecord, Err: fmt.Errorf("open session: %w", err)}
		}
		s.Open = open
	}
	return s, nil
}

// DecodeSession is the inverse of EncodeSession. Keys outside the
// dictionary are kept in Extra.
func DecodeSession(m map[string]any, n Names) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	var err error
	if s.ID, err = requireString(m, SessionID.Name(n)); err != nil {
		return nil, err
	}
	if s.ExamID, err = requireString(m, SessionExam.Name(n)); err != nil {
		return nil, err
	}
	if s.ExamLabel, err = optString(m, SessionLabel.Name(n)); err != nil {
		return nil, err
	}
	if s.StartedAt, err = optTime(m, SessionStarted.Name(n)); err != nil {
		return nil, err
	}
	if v, ok := m[SessionEnded.Name(n)]; ok && v != nil {
		t, ok := Millis(v)
		if !ok {
			return nil, fieldErr(SessionEnded.Name(n), errType)
		}
		s.EndedAt = &t
	}
	if s.Closed, err = optBool(m, SessionClosed.Name(n)); err != nil {
		return nil, err
	}
	if v, ok := m[SessionQuestions.Name(n)]; ok && v != nil {
		items, ok := Slice(v)
		if !ok {
			return nil, fieldErr(SessionQuestions.Name(n), errType)
		}
		for i, it := range items {
			qm, ok := Map(it)
			if !ok {
				return nil, fmt.Errorf("question %d: %w", i, errType)
			}
			q, err := DecodeQuestion(qm, n)
			if err != nil {
				return nil, fmt.Errorf("question %d: %w", i, err)
			}
			s.Questions = append(s.Questions, q)
		}
	}
	var tq, ca, ia, pa int64
	for _, f := range []struct {
		name string
		dst  *int64
	}{
		{SessionTotalQuestions.Name(n), &tq},
		{SessionCorrect.Name(n), &ca},
		{SessionIncorrect.Name(n), &ia},
		{SessionPreview.Name(n), &pa},
		{SessionTime.Name(n), &s.Totals.TotalTimeSeconds},
	} {
		if *f.dst, err = optInt(m, f.name); err != nil {
			return nil, err
		}
	}
	s.Totals.TotalQuestions = int(tq)
	s.Totals.Correct = int(ca)
	s.Totals.Incorrect = int(ia)
	s.Totals.Preview = int(pa)
	s.Extra = extra(m, known(SessionFields, n))
	return s, nil
}

// DecodeQuestion is the inverse of EncodeQuestion.
func DecodeQuestion(m map[string]any, n Names) (*model.QuestionAttempt, error) {
	q := &model.QuestionAttempt{}
	var err error
	if q.QuestionID, err = requireString(m, QuestionID.Name(n)); err != nil {
		return nil, err
	}
	kind, err := requireString(m, QuestionFirstAction.Name(n))
	if err != nil {
		return nil, err
	}
	fa, ok := model.ParseFirstAction(kind)
	if !ok {
		return nil, fieldErr(QuestionFirstAction.Name(n), fmt.Errorf("unknown kind %q", kind))
	}
	q.FirstAction = fa
	if v, ok := m[QuestionKey.Name(n)]; ok && v != nil {
		key, ok := Strings(v)
		if !ok {
			return nil, fieldErr(QuestionKey.Name(n), errType)
		}
		q.CorrectAnswerKey = model.NewAnswerSet(key...)
	}
	if v, ok := m[QuestionAttempts.Name(n)]; ok && v != nil {
		items, ok := Slice(v)
		if !ok {
			return nil, fieldErr(QuestionAttempts.Name(n), errType)
		}
		for i, it := range items {
			am, ok := Map(it)
			if !ok {
				return nil, fmt.Errorf("attempt %d: %w", i, errType)
			}
			a, err := DecodeAttempt(am, n)
			if err != nil {
				return nil, fmt.Errorf("attempt %d: %w", i, err)
			}
			q.Attempts = append(q.Attempts, a)
		}
	}
	resets, err := optInt(m, QuestionResets.Name(n))
	if err != nil {
		return nil, err
	}
	previews, err := optInt(m, QuestionPreviews.Name(n))
	if err != nil {
		return nil, err
	}
	if q.TimeSpentSeconds, err = optInt(m, QuestionTime.Name(n)); err != nil {
		return nil, err
	}
	q.ResetCount = int(resets)
	q.PreviewInteractionCount = int(previews)
	q.Extra = extra(m, known(QuestionFields, n))
	return q, nil
}

// DecodeAttempt is the inverse of EncodeAttempt.
func DecodeAttempt(m map[string]any, n Names) (model.Attempt, error) {
	var a model.Attempt
	var err error
	if v, ok := m[AttemptAnswers.Name(n)]; ok && v != nil {
		answers, ok := Strings(v)
		if !ok {
			return a, fieldErr(AttemptAnswers.Name(n), errType)
		}
		a.Answers = model.NewAnswerSet(answers...)
	}
	if a.Correct, err = optBool(m, AttemptCorrect.Name(n)); err != nil {
		return a, err
	}
	if a.Previewed, err = optBool(m, AttemptPreviewed.Name(n)); err != nil {
		return a, err
	}
	if a.At, err = optTime(m, AttemptAt.Name(n)); err != nil {
		return a, err
	}
	a.Extra = extra(m, known(AttemptFields, n))
	return a, nil
}

// withExtra starts an encoded record from its unknown fields. Names that
// collide with the dictionary are escaped.
func withExtra(x map[string]any, knownKeys map[string]bool) map[string]any {
	m := make(map[string]any, len(knownKeys)+len(x))
	for k, v := range x {
		m[escapeExtra(k, knownKeys)] = v
	}
	return m
}

func extra(m map[string]any, knownKeys map[string]bool) map[string]any {
	var x map[string]any
	for k, v := range m {
		if knownKeys[k] {
			continue
		}
		if x == nil {
			x = make(map[string]any)
		}
		x[unescapeExtra(k)] = v
	}
	return x
}

func putString(m map[string]any, name, v string) {
	if v != "" {
		m[name] = v
	}
}

func putInt(m map[string]any, name string, v int64) {
	if v != 0 {
		m[name] = v
	}
}

func putTime(m map[string]any, name string, t time.Time) {
	if !t.IsZero() {
		m[name] = t.UnixMilli()
	}
}

func requireString(m map[string]any, name string) (string, error) {
	v, ok := m[name]
	if !ok || v == nil {
		return "", fieldErr(name, errMissing)
	}
	s, ok := String(v)
	if !ok || s == "" {
		return "", fieldErr(name, errType)
	}
	return s, nil
}

func optString(m map[string]any, name string) (string, error) {
	v, ok := m[name]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := String(v)
	if !ok {
		return "", fieldErr(name, errType)
	}
	return s, nil
}

func optInt(m map[string]any, name string) (int64, error) {
	v, ok := m[name]
	if !ok || v == nil {
		return 0, nil
	}
	n, ok := Int64(v)
	if !ok {
		return 0, fieldErr(name, errType)
	}
	return n, nil
}

func optBool(m map[string]any, name string) (bool, error) {
	v, ok := m[name]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := Bool(v)
	if !ok {
		return false, fieldErr(name, errType)
	}
	return b, nil
}

func optTime(m map[string]any, name string) (time.Time, error) {
	v, ok := m[name]
	if !ok || v == nil {
		return time.Time{}, nil
	}
	t, ok := Millis(v)
	if !ok {
		return time.Time{}, fieldErr(name, errType)
	}
	return t, nil
}
