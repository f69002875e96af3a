package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type kv interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

func testKV(t *testing.T, s kv, prefix string) {
	t.Helper()
	ctx := context.Background()
	key := prefix + "history"

	// Missing key is not an error.
	v, ok, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get missing: %v", err)
	}
	if ok || v != "" {
		t.Fatalf("expected missing key, got %q", v)
	}

	if err := s.Set(ctx, key, "first"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err = s.Get(ctx, key)
	if err != nil || !ok || v != "first" {
		t.Fatalf("Get = %q, %v, %v", v, ok, err)
	}

	// Overwrite, including bytes the codec emits.
	binary := "{\x01\x05A\x07\x17}"
	if err := s.Set(ctx, key, binary); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	v, _, err = s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != binary {
		t.Errorf("expected %q, got %q", binary, v)
	}

	// Empty value is present, not missing.
	if err := s.Set(ctx, prefix+"empty", ""); err != nil {
		t.Fatalf("Set empty: %v", err)
	}
	if _, ok, _ := s.Get(ctx, prefix+"empty"); !ok {
		t.Error("empty value should be present")
	}
}

func TestSQLiteKV(t *testing.T) {
	testKV(t, newTestStore(t), "")
}

func TestSQLitePersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "examstats.db")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Set(context.Background(), "k", strings.Repeat("x", 1<<16)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	s.Close()

	s, err = New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	v, ok, err := s.Get(context.Background(), "k")
	if err != nil || !ok || len(v) != 1<<16 {
		t.Fatalf("expected stored value after reopen, got len=%d ok=%v err=%v", len(v), ok, err)
	}
}

func TestSQLiteCanceledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Set(ctx, "k", "v"); err == nil {
		t.Error("expected error on canceled context")
	}
}

// TestRedisKV runs against a real server when EXAMSTATS_TEST_REDIS_URL is
// set, e.g. redis://localhost:6379/15.
func TestRedisKV(t *testing.T) {
	url := os.Getenv("EXAMSTATS_TEST_REDIS_URL")
	if url == "" {
		t.Skip("EXAMSTATS_TEST_REDIS_URL not set")
	}
	r, err := NewRedis(context.Background(), url)
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	testKV(t, r, "examstats-test:"+uuid.NewString()+":")
}

func TestNewRedisBadURL(t *testing.T) {
	if _, err := NewRedis(context.Background(), "http://not-redis"); err == nil {
		t.Error("expected error for non-redis url")
	}
}
