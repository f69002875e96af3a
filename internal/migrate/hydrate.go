package migrate

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/examstats/internal/codec"
	"github.com/pavelanni/examstats/internal/model"
)

// OpenIndex is the DropError index of the stored open session.
const OpenIndex = -1

var validate = validator.New(validator.WithRequiredStructEnabled())

var (
	errUnrecognized = errors.New("unrecognized record shape")
	errDuplicate    = errors.New("duplicate question id")
)

// DropError describes a stored session that could not be recovered. The
// rest of the history is loaded without it.
type DropError struct {
	Index     int
	SessionID string
	Reason    error
}

func (e *DropError) Error() string {
	where := fmt.Sprintf("session %d", e.Index)
	if e.Index == OpenIndex {
		where = "open session"
	}
	if e.SessionID != "" {
		where += fmt.Sprintf(" (%s)", e.SessionID)
	}
	return fmt.Sprintf("drop %s: %v", where, e.Reason)
}

func (e *DropError) Unwrap() error {
	return e.Reason
}

// Result is hydrated history plus what was changed or lost on the way.
type Result struct {
	Snapshot model.Snapshot
	Dropped  []*DropError
	Migrated int
}

// Load reads history in storage form.
func Load(text string) (Result, error) {
	doc, err := codec.ParseDocument(text)
	if err != nil {
		return Result{}, err
	}
	return Hydrate(doc)
}

// Import reads an exported snapshot. Both verbose and compact names are
// accepted.
func Import(data []byte) (Result, error) {
	doc, err := codec.ParseJSON(data)
	if err != nil {
		return Result{}, err
	}
	return Hydrate(doc)
}

// Hydrate migrates doc and decodes it session by session. A corrupt session
// becomes a DropError; an error is returned only when the document itself
// is unusable.
func Hydrate(doc map[string]any) (Result, error) {
	var res Result
	n, err := Migrate(doc)
	if err != nil {
		return res, err
	}
	res.Migrated = n
	if n > 0 {
		slog.Info("migrated legacy records", "count", n)
	}

	if v, ok := doc[codec.DocSessions.Alias]; ok && v != nil {
		items, _ := codec.Slice(v)
		for i, it := range items {
			sess, derr := hydrateSession(i, it)
			if derr != nil {
				res.drop(derr)
				continue
			}
			if !sess.Closed {
				// History only holds closed sessions; older releases left
				// abandoned ones without an end time.
				sess.Close(sess.LastActivity())
				res.Migrated++
				slog.Info("closed unfinished history session", "session", sess.ID, "exam", sess.ExamID)
			}
			res.Snapshot.Sessions = append(res.Snapshot.Sessions, sess)
		}
	}
	if v, ok := doc[codec.DocOpen.Alias]; ok && v != nil {
		sess, derr := hydrateSession(OpenIndex, v)
		switch {
		case derr != nil:
			res.drop(derr)
		case sess.Closed:
			res.Snapshot.Sessions = append(res.Snapshot.Sessions, sess)
		default:
			res.Snapshot.Open = sess
		}
	}
	return res, nil
}

func (r *Result) drop(e *DropError) {
	slog.Warn("dropped stored session", "index", e.Index, "session", e.SessionID, "error", e.Reason)
	r.Dropped = append(r.Dropped, e)
}

func hydrateSession(index int, v any) (*model.ExamSession, *DropError) {
	m, ok := codec.Map(v)
	if !ok {
		return nil, &DropError{Index: index, Reason: errUnrecognized}
	}
	id, _ := codec.String(m[codec.SessionID.Alias])
	if !hasAll(m, codec.SessionID.Alias, codec.SessionExam.Alias) {
		return nil, &DropError{Index: index, SessionID: id, Reason: errUnrecognized}
	}
	sess, err := codec.DecodeSession(m, codec.Compact)
	if err != nil {
		return nil, &DropError{Index: index, SessionID: id, Reason: err}
	}
	seen := make(map[string]bool, len(sess.Questions))
	for _, q := range sess.Questions {
		if seen[q.QuestionID] {
			return nil, &DropError{Index: index, SessionID: id, Reason: fmt.Errorf("%w %q", errDuplicate, q.QuestionID)}
		}
		seen[q.QuestionID] = true
	}
	if err := validate.Struct(sess); err != nil {
		return nil, &DropError{Index: index, SessionID: id, Reason: err}
	}
	return sess, nil
}
