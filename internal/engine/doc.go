// Package engine holds bookshelf's application state and the commands that change it.
//
// ARCHITECTURE:
//
// Single-Writer State Store:
// All state lives in one immutable Snapshot owned by the Engine. Mutating
// commands are serialized behind a single mutex:
//  1. Lock
//  2. Load the current snapshot
//  3. Run the command's pure transition
//  4. Publish the new snapshot (success) or discard it (error)
//  5. Unlock
//
// The Read command skips the lock entirely and returns whichever snapshot
// was most recently published, so readers never wait on writers and writers
// never wait on readers.
//
// Commands:
// The command set is closed. Each command is a struct whose apply method maps
// a snapshot to a new snapshot and a value, or to a business error. Commands
// never perform I/O; anything durable (queue rows, checkpoints) is written by
// the caller after Submit returns, driven by the command's value.
//
// Copy-on-write:
// A command never mutates the snapshot it receives. It copies the Snapshot
// struct and replaces the maps it changes, so unchanged maps are shared
// between versions.
//
// Errors:
// Business rule violations are expected outcomes, marked with ErrNotFound,
// ErrDuplicate, ErrQuotaExceeded, ErrForbidden, ErrInvalid or ErrAlreadyLoaded.
// A panic inside a command is recovered, reported as ErrCommandPanicked, and
// never leaves the write lock held.
package engine
