// Package gateway moves history between a Tracker snapshot and the host
// key/value store.
//
// Load never fails: unreadable history is set aside under a backup key and
// replaced by an empty snapshot. History that loses sessions on load is
// backed up the same way before the next save can overwrite it. Save failures are returned as
// *StorageError so callers can tell the user their progress was not kept.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/examstats/internal/codec"
	"github.com/pavelanni/examstats/internal/migrate"
	"github.com/pavelanni/examstats/internal/model"
)

const (
	// DefaultKey is the host key that holds encoded history.
	DefaultKey = "examstats:history"
	// DefaultQuota matches the usual per-origin browser storage limit.
	DefaultQuota = 5 << 20
)

// ErrQuotaExceeded is wrapped by a StorageError when encoded history is
// larger than the configured quota.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// StorageError reports a failed read or write of the host store.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// KV is a host key/value store. Get reports ok=false for a missing key.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Gateway loads and saves history under one key.
type Gateway struct {
	kv    KV
	key   string
	quota int
	now   func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithKey sets the history key.
func WithKey(key string) Option {
	return func(g *Gateway) {
		if key != "" {
			g.key = key
		}
	}
}

// WithQuota sets the maximum encoded size in bytes. Zero or less disables
// the check.
func WithQuota(n int) Option {
	return func(g *Gateway) { g.quota = n }
}

func New(kv KV, opts ...Option) *Gateway {
	g := &Gateway{kv: kv, key: DefaultKey, quota: DefaultQuota, now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Key returns the history key.
func (g *Gateway) Key() string {
	return g.key
}

// LoadResult is history read from the host store.
type LoadResult struct {
	Snapshot model.Snapshot
	// Dropped lists sessions that could not be recovered.
	Dropped []*migrate.DropError
	// Migrated counts sessions rewritten from an older shape.
	Migrated int
	// Size is the length of the stored text in bytes.
	Size int
	// Recovered is set when stored history was unusable and an empty
	// snapshot was substituted.
	Recovered error
	// BackupKey names where the stored text was copied because it was
	// unusable or had sessions dropped, if anywhere.
	BackupKey string
}

// Load reads and hydrates history. A missing key yields an empty snapshot.
// Any failure to read or decode falls back to an empty snapshot with
// Recovered set.
func (g *Gateway) Load(ctx context.Context) *LoadResult {
	res := &LoadResult{}
	text, ok, err := g.kv.Get(ctx, g.key)
	if err != nil {
		res.Recovered = &StorageError{Op: "load", Key: g.key, Err: err}
		slog.Error("history load failed, starting empty", "key", g.key, "error", err)
		return res
	}
	if !ok {
		slog.Debug("no stored history", "key", g.key)
		return res
	}
	res.Size = len(text)

	h, err := migrate.Load(text)
	if err != nil {
		res.Recovered = err
		res.BackupKey = g.backup(ctx, "corrupt", text)
		slog.Error("stored history unreadable, starting empty", "key", g.key, "backup", res.BackupKey, "error", err)
		return res
	}
	res.Snapshot = h.Snapshot
	res.Dropped = h.Dropped
	res.Migrated = h.Migrated
	if len(h.Dropped) > 0 {
		res.BackupKey = g.backup(ctx, "dropped", text)
		slog.Warn("stored history had unrecoverable sessions", "key", g.key,
			"dropped", len(h.Dropped), "backup", res.BackupKey)
	}
	slog.Debug("history loaded", "key", g.key, "bytes", res.Size,
		"sessions", len(h.Snapshot.Sessions), "dropped", len(h.Dropped))
	return res
}

// backup copies stored text aside so the next save does not destroy it.
// It returns the backup key, or "" if the copy failed.
func (g *Gateway) backup(ctx context.Context, reason, text string) string {
	key := fmt.Sprintf("%s:%s:%d", g.key, reason, g.now().UnixMilli())
	if err := g.kv.Set(ctx, key, text); err != nil {
		slog.Error("backup of unreadable history failed", "key", key, "error", err)
		return ""
	}
	return key
}

// Save encodes snap and writes it. It returns the encoded size.
func (g *Gateway) Save(ctx context.Context, snap model.Snapshot) (int, error) {
	text, err := codec.Encode(snap)
	if err != nil {
		return 0, g.fail("save", err)
	}
	if g.quota > 0 && len(text) > g.quota {
		return len(text), g.fail("save", fmt.Errorf("%w: %d bytes, limit %d", ErrQuotaExceeded, len(text), g.quota))
	}
	if err := g.kv.Set(ctx, g.key, text); err != nil {
		return len(text), g.fail("save", err)
	}
	slog.Debug("history saved", "key", g.key, "bytes", len(text))
	return len(text), nil
}

func (g *Gateway) fail(op string, err error) error {
	slog.Error("history "+op+" failed", "key", g.key, "error", err)
	return &StorageError{Op: op, Key: g.key, Err: err}
}
