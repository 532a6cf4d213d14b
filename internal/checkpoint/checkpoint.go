// Package checkpoint persists engine snapshots to SQLite and restores them.
//
// Checkpoints are written from the published snapshot, which is read without
// the engine's write lock, so serialization and disk I/O never block commands.
package checkpoint

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/roach88/bookshelf/internal/engine"
	"github.com/roach88/bookshelf/internal/store"
)

var (
	ErrCorruptedCheckpoint = errors.New("checkpoint is corrupted")
	ErrIncompatibleVersion = errors.New("checkpoint schema version is incompatible")
)

// schemaVersion is bumped when the encoded snapshot layout changes.
const schemaVersion = 1

// Store is the checkpoint persistence used by Restore and Checkpointer.
type Store interface {
	SaveCheckpoint(ctx context.Context, version int64, state []byte, now time.Time) error
	LatestCheckpoint(ctx context.Context) (store.Checkpoint, bool, error)
}

type envelope struct {
	SchemaVer int              `json:"schema_ver"`
	State     *engine.Snapshot `json:"state"`
}

// Encode serializes a snapshot.
func Encode(s *engine.Snapshot) ([]byte, error) {
	data, err := json.Marshal(envelope{SchemaVer: schemaVersion, State: s})
	if err != nil {
		return nil, errors.Wrap(err, "encode snapshot")
	}
	return data, nil
}

// Decode parses a snapshot written by Encode.
func Decode(data []byte) (*engine.Snapshot, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrapf(ErrCorruptedCheckpoint, "%v", err)
	}
	if env.SchemaVer != schemaVersion {
		return nil, errors.Wrapf(ErrIncompatibleVersion, "got %d, want %d", env.SchemaVer, schemaVersion)
	}
	if env.State == nil {
		return nil, errors.Wrap(ErrCorruptedCheckpoint, "no state")
	}
	return env.State, nil
}

// Restore loads the latest checkpoint into e, which must still be empty.
// It reports false if no checkpoint has been saved yet.
func Restore(ctx context.Context, e *engine.Engine, st Store) (bool, error) {
	cp, found, err := st.LatestCheckpoint(ctx)
	if err != nil {
		return false, errors.Wrap(err, "restore")
	}
	if !found {
		slog.Info("no checkpoint found, starting empty")
		return false, nil
	}

	snap, err := Decode(cp.State)
	if err != nil {
		return false, errors.Wrapf(err, "restore checkpoint %d", cp.ID)
	}
	if _, err := engine.Submit(e, engine.LoadState{State: snap}); err != nil {
		return false, errors.Wrapf(err, "restore checkpoint %d", cp.ID)
	}

	slog.Info("state restored",
		"checkpoint_id", cp.ID,
		"saved_version", cp.Version,
		"saved_at", cp.CreatedAt,
		"users", len(snap.Users),
		"books", len(snap.Books),
	)
	return true, nil
}

// Checkpointer saves the engine's snapshot whenever its version changed.
type Checkpointer struct {
	engine *engine.Engine
	store  Store
	now    func() time.Time

	mu    sync.Mutex
	saved int64
}

// Option configures a Checkpointer.
type Option func(*Checkpointer)

// WithClock sets the clock used for checkpoint timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Checkpointer) {
		c.now = now
	}
}

// New creates a Checkpointer. The engine's current version counts as saved,
// so a freshly restored state is not written back unchanged.
func New(e *engine.Engine, st Store, opts ...Option) *Checkpointer {
	c := &Checkpointer{
		engine: e,
		store:  st,
		now:    time.Now,
		saved:  e.Version(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Flush saves the current snapshot if it changed since the last save.
// It reports whether a checkpoint was written.
func (c *Checkpointer) Flush(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := engine.ReadSnapshot(c.engine)
	if snap.Version == c.saved {
		return false, nil
	}

	data, err := Encode(snap)
	if err != nil {
		return false, err
	}
	if err := c.store.SaveCheckpoint(ctx, snap.Version, data, c.now()); err != nil {
		return false, errors.Wrapf(err, "save checkpoint at version %d", snap.Version)
	}

	slog.Debug("checkpoint saved", "version", snap.Version, "bytes", len(data))
	c.saved = snap.Version
	return true, nil
}

// Run flushes every interval until ctx is cancelled. Errors are logged and
// the next tick tries again. Callers flush once more after Run returns.
func (c *Checkpointer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Flush(ctx); err != nil && ctx.Err() == nil {
				slog.Error("checkpoint failed", "error", err)
			}
		}
	}
}
