package gateway

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/pavelanni/examstats/internal/codec"
	"github.com/pavelanni/examstats/internal/model"
	"github.com/pavelanni/examstats/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// failingKV fails every operation with err.
type failingKV struct{ err error }

func (f failingKV) Get(context.Context, string) (string, bool, error) { return "", false, f.err }
func (f failingKV) Set(context.Context, string, string) error         { return f.err }

func sampleSnapshot() model.Snapshot {
	s := model.NewExamSession("s-1", "AZ-900", "Azure", time.UnixMilli(1_700_000_000_000))
	s.Touch("1").RecordAttempt(model.AnswerSet{"A"}, model.AnswerSet{"A"}, false, time.UnixMilli(1_700_000_001_000))
	s.Close(time.UnixMilli(1_700_000_002_000))
	open := model.NewExamSession("s-2", "AZ-900", "Azure", time.UnixMilli(1_700_000_003_000))
	open.Touch("5").RecordPreviewInteraction()
	return model.Snapshot{Sessions: []*model.ExamSession{s}, Open: open}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	g := New(newTestStore(t))
	snap := sampleSnapshot()

	n, err := g.Save(ctx, snap)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	res := g.Load(ctx)
	if res.Recovered != nil {
		t.Fatalf("unexpected recovery: %v", res.Recovered)
	}
	if res.Size != n {
		t.Errorf("expected size %d, got %d", n, res.Size)
	}
	if !reflect.DeepEqual(res.Snapshot, snap) {
		t.Errorf("round trip mismatch\n got: %#v\nwant: %#v", res.Snapshot, snap)
	}
}

func TestLoadMissingKey(t *testing.T) {
	res := New(newTestStore(t)).Load(context.Background())
	if res.Recovered != nil || !res.Snapshot.Empty() {
		t.Errorf("expected empty snapshot, got %+v", res)
	}
}

func TestLoadUnreadableFallsBackAndBacksUp(t *testing.T) {
	ctx := context.Background()
	kv := newTestStore(t)
	g := New(kv, WithKey("h"))
	g.now = func() time.Time { return time.UnixMilli(42) }
	if err := kv.Set(ctx, "h", "{{{ not history"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	res := g.Load(ctx)
	var de *codec.DecodeError
	if !errors.As(res.Recovered, &de) {
		t.Fatalf("expected DecodeError, got %v", res.Recovered)
	}
	if !res.Snapshot.Empty() {
		t.Error("expected empty snapshot")
	}
	if res.BackupKey != "h:corrupt:42" {
		t.Errorf("unexpected backup key %q", res.BackupKey)
	}
	v, ok, _ := kv.Get(ctx, res.BackupKey)
	if !ok || v != "{{{ not history" {
		t.Errorf("backup not written, got %q", v)
	}
}

func TestLoadKeepsGoodSessions(t *testing.T) {
	ctx := context.Background()
	kv := newTestStore(t)
	g := New(kv)
	g.now = func() time.Time { return time.UnixMilli(7) }
	stored := `{"s":[{"i":"a","e":"E","c":true},{"i":"b"}]}`
	kv.Set(ctx, g.Key(), stored)

	res := g.Load(ctx)
	if res.Recovered != nil {
		t.Fatalf("unexpected recovery: %v", res.Recovered)
	}
	if len(res.Snapshot.Sessions) != 1 || len(res.Dropped) != 1 {
		t.Errorf("expected 1 kept and 1 dropped, got %d and %d", len(res.Snapshot.Sessions), len(res.Dropped))
	}

	// The dropped record survives the next save in the backup.
	if res.BackupKey != DefaultKey+":dropped:7" {
		t.Fatalf("unexpected backup key %q", res.BackupKey)
	}
	if _, err := g.Save(ctx, res.Snapshot); err != nil {
		t.Fatalf("Save: %v", err)
	}
	v, ok, _ := kv.Get(ctx, res.BackupKey)
	if !ok || v != stored {
		t.Errorf("expected original text in backup, got %q", v)
	}
}

func TestLoadCleanHistoryMakesNoBackup(t *testing.T) {
	ctx := context.Background()
	g := New(newTestStore(t))
	if _, err := g.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if res := g.Load(ctx); res.BackupKey != "" {
		t.Errorf("expected no backup, got %q", res.BackupKey)
	}
}

func TestLoadStorageFailure(t *testing.T) {
	boom := errors.New("disk on fire")
	res := New(failingKV{boom}).Load(context.Background())
	var se *StorageError
	if !errors.As(res.Recovered, &se) || !errors.Is(res.Recovered, boom) {
		t.Fatalf("expected StorageError wrapping cause, got %v", res.Recovered)
	}
	if se.Op != "load" || se.Key != DefaultKey {
		t.Errorf("unexpected error fields %+v", se)
	}
	if !res.Snapshot.Empty() {
		t.Error("expected empty snapshot")
	}
}

func TestSaveStorageFailure(t *testing.T) {
	boom := errors.New("read-only")
	_, err := New(failingKV{boom}).Save(context.Background(), sampleSnapshot())
	var se *StorageError
	if !errors.As(err, &se) || !errors.Is(err, boom) {
		t.Fatalf("expected StorageError wrapping cause, got %v", err)
	}
}

func TestSaveQuota(t *testing.T) {
	ctx := context.Background()
	kv := newTestStore(t)
	g := New(kv, WithQuota(1<<20))
	if _, err := g.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	before, _, _ := kv.Get(ctx, g.Key())

	big := sampleSnapshot()
	big.Open.ExamLabel = strings.Repeat("x", 2<<20)
	_, err := g.Save(ctx, big)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	var se *StorageError
	if !errors.As(err, &se) {
		t.Errorf("expected StorageError, got %T", err)
	}
	after, _, _ := kv.Get(ctx, g.Key())
	if after != before {
		t.Error("rejected save changed the stored value")
	}

	if _, err := New(kv, WithQuota(0)).Save(ctx, big); err != nil {
		t.Errorf("quota 0 should disable the check: %v", err)
	}
}
