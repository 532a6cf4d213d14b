package engine

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// Engine is the single-writer state store.
//
// The engine owns exactly one live Snapshot reference. Mutating commands are
// serialized behind one mutex: load the current snapshot, run the pure
// transition, publish the result on success. The read command never takes the
// mutex and observes whichever snapshot was most recently published.
//
// Thread-safety model:
//   - Submit(): safe from any goroutine; mutating commands run one at a time
//     and the Read command never blocks
//
// INVARIANTS:
//   - A published Snapshot is never modified
//   - A failed or panicking command publishes nothing and never leaves the lock held
//   - Versions of successive published snapshots strictly increase
//   - Commands perform no I/O, so the critical section never waits on the network or disk
type Engine struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
	clock   *Clock
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithSnapshot starts the engine from s instead of an empty snapshot.
// The version clock resumes at s.Version.
func WithSnapshot(s *Snapshot) EngineOption {
	return func(e *Engine) {
		if s == nil {
			return
		}
		e.current.Store(s.normalize())
		e.clock.advanceTo(s.Version)
	}
}

// New creates an Engine holding an empty snapshot.
func New(opts ...EngineOption) *Engine {
	e := &Engine{clock: NewClock()}
	e.current.Store(EmptySnapshot())

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Version returns the version of the current snapshot.
func (e *Engine) Version() int64 {
	return ReadSnapshot(e).Version
}

// Result is the outcome of a successful command: the snapshot the command
// observed or produced, and the command's value.
type Result[T any] struct {
	Snapshot *Snapshot
	Value    T
}

// Submit runs cmd against the engine.
//
// Read-only commands run against the current snapshot without locking.
// Mutating commands run under the write lock; on success the new snapshot is
// published before Submit returns, on error nothing is published.
//
// Business rule violations are returned as errors marked with one of the
// Err* categories (see IsBusinessError). A panic inside a command is
// recovered and returned as an error marked ErrCommandPanicked.
func Submit[T any](e *Engine, cmd Command[T]) (Result[T], error) {
	if !cmd.mutates() {
		return read(e, cmd)
	}
	return write(e, cmd)
}

func read[T any](e *Engine, cmd Command[T]) (res Result[T], err error) {
	snap := e.current.Load()
	defer recoverCommand(cmd, &err)

	_, value, err := cmd.apply(snap)
	if err != nil {
		return Result[T]{Snapshot: snap}, err
	}
	return Result[T]{Snapshot: snap, Value: value}, nil
}

func write[T any](e *Engine, cmd Command[T]) (res Result[T], err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.current.Load()
	res.Snapshot = cur
	defer recoverCommand(cmd, &err)

	next, value, err := cmd.apply(cur)
	if err != nil {
		slog.Debug("command rejected", "command", cmd.name(), "error", err)
		return Result[T]{Snapshot: cur}, err
	}

	// A command that changed nothing returns the snapshot it was given.
	// A restored snapshot may carry a version ahead of the clock.
	if next != cur {
		e.clock.advanceTo(next.Version)
		next.Version = e.clock.Next()
		e.current.Store(next)
	}

	return Result[T]{Snapshot: next, Value: value}, nil
}

func recoverCommand[T any](cmd Command[T], errp *error) {
	if r := recover(); r != nil {
		slog.Error("command panicked", "command", cmd.name(), "panic", r)
		*errp = errors.Mark(
			errors.Newf("command %s panicked: %v", cmd.name(), r),
			ErrCommandPanicked,
		)
	}
}
