package tracker

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/pavelanni/examstats/internal/codec"
	"github.com/pavelanni/examstats/internal/migrate"
	"github.com/pavelanni/examstats/internal/model"
)

// newTestTracker returns an empty tracker with a stepping clock and
// sequential session ids.
func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	var tick int64
	var seq int
	return New(model.Snapshot{},
		WithClock(func() time.Time {
			tick++
			return time.UnixMilli(1_700_000_000_000 + tick*1000)
		}),
		WithIDs(func() string {
			seq++
			return fmt.Sprintf("s-%d", seq)
		}),
	)
}

func TestFirstAttemptFreezesClassification(t *testing.T) {
	tr := newTestTracker(t)
	if _, err := tr.StartSession("X1", "Exam X1"); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	q, err := tr.RecordAttempt("1", []string{"A"}, []string{"A"}, false)
	if err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
	if q.FirstAction != model.FirstActionCorrect {
		t.Fatalf("expected correct, got %s", q.FirstAction)
	}
	q, err = tr.RecordAttempt("1", []string{"B"}, []string{"A"}, false)
	if err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
	if q.FirstAction != model.FirstActionCorrect {
		t.Errorf("first action changed to %s", q.FirstAction)
	}
	if len(q.Attempts) != 2 || q.Attempts[1].Correct {
		t.Errorf("expected second attempt recorded as wrong, got %+v", q.Attempts)
	}
}

func TestPreviewBeforeAttempt(t *testing.T) {
	tr := newTestTracker(t)
	tr.StartSession("X1", "")
	if _, err := tr.RecordPreviewInteraction("2"); err != nil {
		t.Fatalf("RecordPreviewInteraction: %v", err)
	}
	q, err := tr.RecordAttempt("2", []string{"A"}, []string{"A"}, true)
	if err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
	if q.FirstAction != model.FirstActionPreview {
		t.Errorf("expected preview, got %s", q.FirstAction)
	}
	if q.TotalHighlightInteractions() != 1 {
		t.Errorf("expected 1 preview interaction, got %d", q.TotalHighlightInteractions())
	}
}

func TestResetKeepsFirstAction(t *testing.T) {
	tr := newTestTracker(t)
	tr.StartSession("X1", "")
	tr.RecordAttempt("1", []string{"B"}, []string{"A"}, false)
	q, err := tr.RecordReset("1")
	if err != nil {
		t.Fatalf("RecordReset: %v", err)
	}
	if q.ResetCount != 1 || q.FirstAction != model.FirstActionIncorrect || len(q.Attempts) != 1 {
		t.Errorf("unexpected aggregate after reset: %+v", q)
	}
}

func TestCloseTalliesFirstActions(t *testing.T) {
	tr := newTestTracker(t)
	tr.StartSession("X1", "")
	tr.RecordAttempt("1", []string{"A"}, []string{"A"}, false)
	tr.RecordReset("2")
	tr.RecordTime("2", 40)
	tr.RecordTime("1", -5)

	s, ok := tr.EndOpenSession()
	if !ok {
		t.Fatal("expected an open session to end")
	}
	want := model.SessionTotals{TotalQuestions: 1, Correct: 1, TotalTimeSeconds: 40}
	if s.Totals != want {
		t.Errorf("expected totals %+v, got %+v", want, s.Totals)
	}
	if !s.Closed || s.EndedAt == nil {
		t.Error("expected session closed with an end time")
	}
}

func TestRecordingWithoutSession(t *testing.T) {
	tr := newTestTracker(t)
	ops := map[string]func() error{
		"attempt": func() error { _, err := tr.RecordAttempt("1", nil, nil, false); return err },
		"reset":   func() error { _, err := tr.RecordReset("1"); return err },
		"preview": func() error { _, err := tr.RecordPreviewInteraction("1"); return err },
		"time":    func() error { _, err := tr.RecordTime("1", 3); return err },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			if err := op(); !errors.Is(err, ErrNoOpenSession) {
				t.Errorf("expected ErrNoOpenSession, got %v", err)
			}
		})
	}
	if _, ok := tr.EndOpenSession(); ok {
		t.Error("ending without an open session should report false")
	}
}

func TestInvalidIDs(t *testing.T) {
	tr := newTestTracker(t)
	if _, err := tr.StartSession("  ", "x"); !errors.Is(err, ErrEmptyExamID) {
		t.Errorf("expected ErrEmptyExamID, got %v", err)
	}
	tr.StartSession("X1", "")
	if _, err := tr.RecordReset(""); !errors.Is(err, ErrEmptyQuestionID) {
		t.Errorf("expected ErrEmptyQuestionID, got %v", err)
	}
}

func TestStartSessionClosesPrevious(t *testing.T) {
	tr := newTestTracker(t)
	for _, exam := range []string{"X1", "X2", "X1", "X3"} {
		if _, err := tr.StartSession(exam, ""); err != nil {
			t.Fatalf("StartSession(%s): %v", exam, err)
		}
		tr.RecordAttempt("1", []string{"A"}, []string{"A"}, false)
	}
	snap := tr.ExportSnapshot()
	if snap.Open == nil || snap.Open.ExamID != "X3" {
		t.Fatalf("expected X3 open, got %+v", snap.Open)
	}
	if len(snap.Sessions) != 3 {
		t.Fatalf("expected 3 closed sessions, got %d", len(snap.Sessions))
	}
	for _, s := range snap.Sessions {
		if !s.Closed {
			t.Errorf("session %s left open", s.ID)
		}
	}
	if r, ok := tr.RollupFor("X1"); !ok || r.SessionCount != 2 {
		t.Errorf("expected 2 X1 sessions in rollup, got %+v", r)
	}
}

func TestEmptySessionStillRecorded(t *testing.T) {
	tr := newTestTracker(t)
	tr.StartSession("X1", "")
	s, ok := tr.EndOpenSession()
	if !ok {
		t.Fatal("expected session to end")
	}
	if s.Totals != (model.SessionTotals{}) {
		t.Errorf("expected zero totals, got %+v", s.Totals)
	}
	r, ok := tr.RollupFor("X1")
	if !ok || r.SessionCount != 1 {
		t.Fatalf("expected rollup with one session, got %+v", r)
	}
	if r.AverageScore != 0 || r.BestScore != 0 {
		t.Errorf("unanswered session should not affect scores: %+v", r)
	}
}

func TestIsQuestionAnsweredScopedToOpenSession(t *testing.T) {
	tr := newTestTracker(t)
	tr.StartSession("X1", "")
	tr.RecordAttempt("1", []string{"A"}, []string{"A"}, false)
	tr.RecordReset("2")

	if !tr.IsQuestionAnswered("X1", "1") {
		t.Error("expected question 1 answered")
	}
	if tr.IsQuestionAnswered("X1", "2") {
		t.Error("reset alone should not count as answered")
	}
	if tr.IsQuestionAnswered("X2", "1") {
		t.Error("other exam should not see the open session")
	}

	tr.StartSession("X1", "")
	if tr.IsQuestionAnswered("X1", "1") {
		t.Error("a new session should start with a fresh completion view")
	}
}

func TestRollups(t *testing.T) {
	tr := newTestTracker(t)

	tr.StartSession("X1", "Old label")
	tr.RecordAttempt("1", []string{"A"}, []string{"A"}, false)
	tr.RecordAttempt("2", []string{"A"}, []string{"B"}, false)
	tr.RecordTime("1", 10)
	tr.EndOpenSession()

	tr.StartSession("X1", "New label")
	tr.RecordAttempt("1", []string{"A"}, []string{"A"}, false)
	tr.RecordPreviewInteraction("2")
	tr.RecordAttempt("3", []string{"C"}, []string{"C"}, false)
	tr.RecordAttempt("4", []string{"D"}, []string{"D"}, false)
	last, _ := tr.EndOpenSession()

	tr.StartSession("X2", "")
	tr.RecordAttempt("1", []string{"A"}, []string{"A"}, false)

	r, ok := tr.RollupFor("X1")
	if !ok {
		t.Fatal("expected X1 rollup")
	}
	want := model.Rollup{
		ExamID:           "X1",
		ExamLabel:        "New label",
		TotalQuestions:   6,
		Correct:          4,
		Incorrect:        1,
		Preview:          1,
		TotalTimeSeconds: 10,
		SessionCount:     2,
		BestScore:        0.75,
		AverageScore:     (0.5 + 0.75) / 2,
		LastAttempt:      *last.EndedAt,
	}
	if r != want {
		t.Errorf("rollup mismatch\n got: %+v\nwant: %+v", r, want)
	}
	if _, ok := tr.RollupFor("X2"); ok {
		t.Error("open session should not produce a rollup")
	}
	if all := tr.AllRollups(); len(all) != 1 || all[0].ExamID != "X1" {
		t.Errorf("unexpected rollups %+v", all)
	}
}

func TestRollupsReproducibleAfterStorageCycle(t *testing.T) {
	tr := newTestTracker(t)
	for i, exam := range []string{"B", "A", "B", "C", "A"} {
		tr.StartSession(exam, "label "+exam)
		for q := 0; q <= i; q++ {
			qid := fmt.Sprint(q)
			if q%3 == 0 {
				tr.RecordPreviewInteraction(qid)
			}
			tr.RecordAttempt(qid, []string{"A"}, []string{"A", "B"}[q%2:q%2+1], false)
			tr.RecordTime(qid, int64(q*7))
		}
	}
	tr.EndOpenSession()
	before := tr.AllRollups()

	text, err := codec.Encode(tr.ExportSnapshot())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	res, err := migrate.Load(text)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	reloaded := New(res.Snapshot)
	reloaded.RecomputeAllRollups()
	after := reloaded.AllRollups()

	if !reflect.DeepEqual(before, after) {
		t.Errorf("rollups drifted\nbefore: %+v\n after: %+v", before, after)
	}
	fresh := BuildRollups(res.Snapshot.Sessions)
	for _, r := range after {
		if !reflect.DeepEqual(fresh[r.ExamID], r) {
			t.Errorf("rollup for %s not reproducible from sessions", r.ExamID)
		}
	}
}

func TestImportSnapshotReplacesState(t *testing.T) {
	tr := newTestTracker(t)
	tr.StartSession("OLD", "")

	dropped, err := tr.ImportSnapshot([]byte(`{"sessions":[
		{"sessionId":"a","examId":"X1","closed":true,"endedAt":1700000000000,"totalQuestions":2,"correct":1,"incorrect":1},
		{"sessionId":"b"}
	]}`))
	if err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}
	if len(dropped) != 1 || dropped[0].Index != 1 {
		t.Errorf("expected second record dropped, got %v", dropped)
	}
	if _, ok := tr.OpenSession(); ok {
		t.Error("import should replace the open session too")
	}
	r, ok := tr.RollupFor("X1")
	if !ok || r.AverageScore != 0.5 {
		t.Errorf("expected rollup from imported session, got %+v", r)
	}
}

func TestImportedUnfinishedSessionCountsInRollup(t *testing.T) {
	tr := newTestTracker(t)
	_, err := tr.ImportSnapshot([]byte(`{"sessions":[{"id":"old1","examCode":"X1",
		"startTime":1700000000000,"endTime":null,
		"questions":[{"questionNumber":1,"isCorrect":true}]}]}`))
	if err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}
	r, ok := tr.RollupFor("X1")
	if !ok {
		t.Fatal("expected a rollup for the imported session")
	}
	if r.SessionCount != 1 || r.Correct != 1 || r.AverageScore != 1 {
		t.Errorf("unexpected rollup %+v", r)
	}
	if !r.LastAttempt.Equal(time.UnixMilli(1_700_000_000_000)) {
		t.Errorf("expected last attempt at session start, got %v", r.LastAttempt)
	}
}

func TestImportSnapshotRejectsGarbage(t *testing.T) {
	tr := newTestTracker(t)
	tr.StartSession("KEEP", "")
	if _, err := tr.ImportSnapshot([]byte("not json")); err == nil {
		t.Fatal("expected an error")
	}
	if s, ok := tr.OpenSession(); !ok || s.ExamID != "KEEP" {
		t.Error("failed import must leave state untouched")
	}
}

func TestExportIsACopy(t *testing.T) {
	tr := newTestTracker(t)
	tr.StartSession("X1", "")
	tr.RecordAttempt("1", []string{"A"}, []string{"A"}, false)
	snap := tr.ExportSnapshot()
	snap.Open.Questions[0].FirstAction = model.FirstActionPreview
	if !tr.IsQuestionAnswered("X1", "1") {
		t.Fatal("expected answered")
	}
	again := tr.ExportSnapshot()
	if again.Open.Questions[0].FirstAction != model.FirstActionCorrect {
		t.Error("mutating an export changed tracker state")
	}
}
