package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Enqueue inserts a PENDING queue item and its QUEUED event in one transaction.
// The item is due immediately (next_run_at = CreatedAt).
//
// Inserting an id that already exists is an error.
func (s *Store) Enqueue(ctx context.Context, item NewItem, details any) error {
	detailsJSON, err := marshalDetails(details)
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("enqueue: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	created := toMillis(item.CreatedAt)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO send_queue
		(id, user_id, device_id, book_id, format, status, attempts, next_run_at, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, NULL, ?, ?)
	`,
		item.ID,
		item.UserID,
		item.DeviceID,
		item.BookID,
		item.Format,
		StatusPending,
		created,
		created,
		created,
	)
	if err != nil {
		return fmt.Errorf("enqueue: insert item %d: %w", item.ID, err)
	}

	if err := insertEvent(ctx, tx, item.ID, EventQueued, detailsJSON, item.CreatedAt); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("enqueue: commit: %w", err)
	}
	return nil
}

// Claim moves a PENDING item to PROCESSING and records a PROCESSING event.
//
// The update is conditional on the item still being PENDING, so among any
// number of concurrent callers exactly one gets claimed=true. A false result
// with a nil error means another worker got there first.
func (s *Store) Claim(ctx context.Context, id int64, now time.Time, details any) (claimed bool, err error) {
	detailsJSON, err := marshalDetails(details)
	if err != nil {
		return false, fmt.Errorf("claim: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("claim: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		UPDATE send_queue
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, StatusProcessing, toMillis(now), id, StatusPending)
	if err != nil {
		return false, fmt.Errorf("claim item %d: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim item %d: rows affected: %w", id, err)
	}
	if rows == 0 {
		return false, nil
	}

	if err := insertEvent(ctx, tx, id, EventProcessing, detailsJSON, now); err != nil {
		return false, fmt.Errorf("claim: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("claim: commit: %w", err)
	}
	return true, nil
}

// Complete moves a PROCESSING item to COMPLETED and records a COMPLETED event.
// attempts is the item's attempt count including the successful one.
func (s *Store) Complete(ctx context.Context, id int64, attempts int, now time.Time, details any) error {
	return s.transition(ctx, id, now, transition{
		to:       StatusCompleted,
		attempts: attempts,
		event:    EventCompleted,
		details:  details,
	})
}

// Retry moves a PROCESSING item back to PENDING with a new attempt count and
// next run time, and records a RETRY event.
func (s *Store) Retry(ctx context.Context, id int64, attempts int, nextRunAt time.Time, reason string, now time.Time, details any) error {
	return s.transition(ctx, id, now, transition{
		to:        StatusPending,
		attempts:  attempts,
		nextRunAt: &nextRunAt,
		lastError: reason,
		event:     EventRetry,
		details:   details,
	})
}

// Fail moves a PROCESSING item to FAILED and records a FAILED event.
func (s *Store) Fail(ctx context.Context, id int64, attempts int, reason string, now time.Time, details any) error {
	return s.transition(ctx, id, now, transition{
		to:        StatusFailed,
		attempts:  attempts,
		lastError: reason,
		event:     EventFailed,
		details:   details,
	})
}

type transition struct {
	to        Status
	attempts  int
	nextRunAt *time.Time // nil keeps the current value
	lastError string     // "" stores NULL
	event     EventType
	details   any
}

// transition applies a conditional update out of PROCESSING. The attempt
// count may only grow.
func (s *Store) transition(ctx context.Context, id int64, now time.Time, t transition) error {
	detailsJSON, err := marshalDetails(t.details)
	if err != nil {
		return fmt.Errorf("transition item %d: %w", id, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("transition item %d: begin tx: %w", id, err)
	}
	defer tx.Rollback() // No-op if committed

	var nextRunAt sql.NullInt64
	if t.nextRunAt != nil {
		nextRunAt = sql.NullInt64{Int64: toMillis(*t.nextRunAt), Valid: true}
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE send_queue
		SET status = ?,
		    attempts = ?,
		    next_run_at = COALESCE(?, next_run_at),
		    last_error = ?,
		    updated_at = ?
		WHERE id = ? AND status = ? AND attempts <= ?
	`,
		t.to,
		t.attempts,
		nextRunAt,
		nullString(t.lastError),
		toMillis(now),
		id,
		StatusProcessing,
		t.attempts,
	)
	if err != nil {
		return fmt.Errorf("transition item %d: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition item %d: rows affected: %w", id, err)
	}
	if rows == 0 {
		return &TransitionError{QueueID: id, From: StatusProcessing, To: t.to}
	}

	if err := insertEvent(ctx, tx, id, t.event, detailsJSON, now); err != nil {
		return fmt.Errorf("transition item %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("transition item %d: commit: %w", id, err)
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, queueID int64, typ EventType, details string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO send_events (queue_id, event_type, details, created_at)
		VALUES (?, ?, ?, ?)
	`, queueID, typ, details, toMillis(at))
	if err != nil {
		return fmt.Errorf("insert %s event: %w", typ, err)
	}
	return nil
}
