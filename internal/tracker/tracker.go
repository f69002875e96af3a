// Package tracker owns the in-memory history of study sessions: the single
// open session, the closed sessions, and per-exam rollups.
//
// A Tracker is safe for concurrent use. At most one session is open at a
// time; starting a session always closes the previous one first.
package tracker

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/examstats/internal/migrate"
	"github.com/pavelanni/examstats/internal/model"
)

var (
	// ErrNoOpenSession is returned by recording operations when no session
	// has been started.
	ErrNoOpenSession = errors.New("no open session")
	// ErrEmptyExamID is returned when a session is started without an exam.
	ErrEmptyExamID = errors.New("exam id is required")
	// ErrEmptyQuestionID is returned when a question id is blank.
	ErrEmptyQuestionID = errors.New("question id is required")
)

// Tracker is the session store.
type Tracker struct {
	mu      sync.Mutex
	snap    model.Snapshot
	rollups map[string]model.Rollup
	now     func() time.Time
	newID   func() string
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithIDs replaces the session id generator.
func WithIDs(newID func() string) Option {
	return func(t *Tracker) { t.newID = newID }
}

// New returns a tracker holding snap. The tracker takes ownership of snap.
func New(snap model.Snapshot, opts ...Option) *Tracker {
	t := &Tracker{now: model.Now, newID: newSessionID}
	for _, o := range opts {
		o(t)
	}
	t.restore(snap)
	return t
}

// newSessionID returns a time-ordered UUID.
func newSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Restore replaces the whole history, including the open session.
func (t *Tracker) Restore(snap model.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.restore(snap)
}

func (t *Tracker) restore(snap model.Snapshot) {
	t.snap = snap
	t.rollups = BuildRollups(snap.Sessions)
}

// StartSession closes any open session and opens a new one for examID.
func (t *Tracker) StartSession(examID, examLabel string) (*model.ExamSession, error) {
	examID = strings.TrimSpace(examID)
	if examID == "" {
		return nil, ErrEmptyExamID
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev := t.endOpen(); prev != nil {
		slog.Info("closed previous session", "session", prev.ID, "exam", prev.ExamID)
	}
	s := model.NewExamSession(t.newID(), examID, examLabel, t.now())
	t.snap.Open = s
	slog.Debug("session started", "session", s.ID, "exam", examID)
	return s.Clone(), nil
}

// EndOpenSession closes the open session and moves it to history. It
// reports false if no session was open.
func (t *Tracker) EndOpenSession() (*model.ExamSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.endOpen()
	if s == nil {
		return nil, false
	}
	return s.Clone(), true
}

func (t *Tracker) endOpen() *model.ExamSession {
	s := t.snap.Open
	if s == nil {
		return nil
	}
	s.Close(t.now())
	t.snap.Sessions = append(t.snap.Sessions, s)
	t.snap.Open = nil
	if r, ok := buildRollup(t.snap.Sessions, s.ExamID); ok {
		t.rollups[s.ExamID] = r
	}
	return s
}

// OpenSession returns a copy of the open session.
func (t *Tracker) OpenSession() (*model.ExamSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap.Open == nil {
		return nil, false
	}
	return t.snap.Open.Clone(), true
}

// touch returns the aggregate for questionID in the open session.
// The caller holds t.mu.
func (t *Tracker) touch(questionID string) (*model.QuestionAttempt, error) {
	questionID = strings.TrimSpace(questionID)
	if questionID == "" {
		return nil, ErrEmptyQuestionID
	}
	if t.snap.Open == nil {
		return nil, ErrNoOpenSession
	}
	return t.snap.Open.Touch(questionID), nil
}

// RecordAttempt scores answers for questionID in the open session and
// returns the updated aggregate.
func (t *Tracker) RecordAttempt(questionID string, answers, correctAnswerKey []string, previewed bool) (*model.QuestionAttempt, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	q, err := t.touch(questionID)
	if err != nil {
		return nil, err
	}
	q.RecordAttempt(model.NewAnswerSet(answers...), model.NewAnswerSet(correctAnswerKey...), previewed, t.now())
	return q.Clone(), nil
}

// RecordReset counts a cleared selection.
func (t *Tracker) RecordReset(questionID string) (*model.QuestionAttempt, error) {
	return t.update(questionID, (*model.QuestionAttempt).RecordReset)
}

// RecordPreviewInteraction counts a preview of the answer.
func (t *Tracker) RecordPreviewInteraction(questionID string) (*model.QuestionAttempt, error) {
	return t.update(questionID, (*model.QuestionAttempt).RecordPreviewInteraction)
}

// RecordTime attributes seconds to questionID. Non-positive values are
// ignored.
func (t *Tracker) RecordTime(questionID string, seconds int64) (*model.QuestionAttempt, error) {
	return t.update(questionID, func(q *model.QuestionAttempt) { q.RecordTime(seconds) })
}

func (t *Tracker) update(questionID string, fn func(*model.QuestionAttempt)) (*model.QuestionAttempt, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	q, err := t.touch(questionID)
	if err != nil {
		return nil, err
	}
	fn(q)
	return q.Clone(), nil
}

// IsQuestionAnswered reports whether the open session for examID has a
// classified first action for questionID. Closed sessions are not
// consulted.
func (t *Tracker) IsQuestionAnswered(examID, questionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	open := t.snap.Open
	if open == nil || open.ExamID != examID {
		return false
	}
	q, ok := open.Question(questionID)
	return ok && q.Answered()
}

// RecomputeAllRollups rebuilds every rollup from the closed sessions.
func (t *Tracker) RecomputeAllRollups() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollups = BuildRollups(t.snap.Sessions)
}

// RollupFor returns the rollup for examID.
func (t *Tracker) RollupFor(examID string) (model.Rollup, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.rollups[examID]
	return r, ok
}

// AllRollups returns every rollup ordered by exam id.
func (t *Tracker) AllRollups() []model.Rollup {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Rollup, 0, len(t.rollups))
	for _, r := range t.rollups {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b model.Rollup) int { return strings.Compare(a.ExamID, b.ExamID) })
	return out
}

// ExportSnapshot returns a deep copy of the whole history.
func (t *Tracker) ExportSnapshot() model.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap.Clone()
}

// ImportSnapshot replaces the history with an exported snapshot, normalized
// through the same migration path as stored history. Records that could
// not be recovered are returned; the rest is loaded.
func (t *Tracker) ImportSnapshot(data []byte) ([]*migrate.DropError, error) {
	res, err := migrate.Import(data)
	if err != nil {
		return nil, fmt.Errorf("import snapshot: %w", err)
	}
	t.Restore(res.Snapshot)
	slog.Info("snapshot imported", "sessions", len(res.Snapshot.Sessions), "dropped", len(res.Dropped))
	return res.Dropped, nil
}
