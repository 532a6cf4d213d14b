package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is the delivery state of a queue item.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// EventType labels a send_events row.
type EventType string

const (
	EventQueued     EventType = "QUEUED"
	EventProcessing EventType = "PROCESSING"
	EventRetry      EventType = "RETRY"
	EventCompleted  EventType = "COMPLETED"
	EventFailed     EventType = "FAILED"
)

// NewItem describes a queue item to insert. ID is the engine's send id.
type NewItem struct {
	ID        int64
	UserID    int64
	DeviceID  int64
	BookID    int64
	Format    string
	CreatedAt time.Time
}

// QueueItem is a row of send_queue.
type QueueItem struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	DeviceID  int64     `json:"device_id"`
	BookID    int64     `json:"book_id"`
	Format    string    `json:"format"`
	Status    Status    `json:"status"`
	Attempts  int       `json:"attempts"`
	NextRunAt time.Time `json:"next_run_at"`
	LastError string    `json:"last_error,omitempty"` // empty when NULL
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Event is a row of send_events. Details is the raw JSON payload.
type Event struct {
	ID        int64           `json:"id"`
	QueueID   int64           `json:"queue_id"`
	Type      EventType       `json:"type"`
	Details   json.RawMessage `json:"details"`
	CreatedAt time.Time       `json:"created_at"`
}

// Checkpoint is a serialized engine snapshot.
type Checkpoint struct {
	ID        int64
	Version   int64
	State     []byte
	CreatedAt time.Time
}

// ErrNotFound is returned when a queue item does not exist.
var ErrNotFound = errors.New("not found")

// TransitionError is returned when a conditional status update matched no
// row: the item is not in the state the caller expected.
type TransitionError struct {
	QueueID int64
	From    Status
	To      Status
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("queue item %d: cannot transition %s -> %s", e.QueueID, e.From, e.To)
}

// IsTransitionConflict returns true if err is a TransitionError.
// Uses errors.As to handle wrapped errors.
func IsTransitionConflict(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}
