// Package store provides SQLite-backed durable storage for bookshelf.
//
// The store holds three tables:
//   - send_queue: one row per accepted send request, driven through
//     PENDING -> PROCESSING -> COMPLETED | FAILED by the delivery worker
//   - send_events: append-only trace of every queue transition
//   - state_checkpoints: serialized engine snapshots for restart
//
// # Transitions
//
// Every status change is a conditional UPDATE that names the status it
// expects to leave, and the matching send_events row is written in the same
// transaction. Claiming an item is
//
//	UPDATE send_queue SET status = 'PROCESSING' WHERE id = ? AND status = 'PENDING'
//
// and only the caller that affected one row owns the item. A conditional
// update that matches nothing returns a *TransitionError; terminal items are
// never revisited.
//
// # Time
//
// Timestamps are stored as INTEGER unix milliseconds in UTC.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
