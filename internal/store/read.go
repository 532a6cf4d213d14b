package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const queueColumns = `id, user_id, device_id, book_id, format, status, attempts, next_run_at, last_error, created_at, updated_at`

// Item returns one queue item, or ErrNotFound.
func (s *Store) Item(ctx context.Context, id int64) (QueueItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM send_queue WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return QueueItem{}, fmt.Errorf("queue item %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return QueueItem{}, fmt.Errorf("read item %d: %w", id, err)
	}
	return item, nil
}

// Due returns up to limit PENDING items whose next run time is at or before
// now, earliest first.
//
// Returns an empty slice (not nil) if nothing is due.
func (s *Store) Due(ctx context.Context, now time.Time, limit int) ([]QueueItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+queueColumns+`
		FROM send_queue
		WHERE status = ? AND next_run_at <= ?
		ORDER BY next_run_at ASC, id ASC
		LIMIT ?
	`, StatusPending, toMillis(now), limit)
	if err != nil {
		return nil, fmt.Errorf("query due items: %w", err)
	}
	return collectItems(rows)
}

// ItemsAfter returns every queue item with an id greater than afterID,
// lowest id first.
func (s *Store) ItemsAfter(ctx context.Context, afterID int64) ([]QueueItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+queueColumns+`
		FROM send_queue
		WHERE id > ?
		ORDER BY id ASC
	`, afterID)
	if err != nil {
		return nil, fmt.Errorf("query items after %d: %w", afterID, err)
	}
	return collectItems(rows)
}

// History returns a user's queue items newest first.
//
// Returns an empty slice (not nil) if the page is empty.
func (s *Store) History(ctx context.Context, userID int64, limit, offset int) ([]QueueItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+queueColumns+`
		FROM send_queue
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return collectItems(rows)
}

// CountByUser returns the number of queue items a user has ever created.
func (s *Store) CountByUser(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM send_queue WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}

// CountByStatus returns the number of queue items in each status.
// Every status is present in the result, possibly with a zero count.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	counts := map[Status]int{
		StatusPending:    0,
		StatusProcessing: 0,
		StatusCompleted:  0,
		StatusFailed:     0,
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM send_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var st Status
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[st] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}

// Events returns the event trace of one queue item in insertion order.
//
// Returns an empty slice (not nil) if the item has no events.
func (s *Store) Events(ctx context.Context, queueID int64) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, queue_id, event_type, details, created_at
		FROM send_events
		WHERE queue_id = ?
		ORDER BY id ASC
	`, queueID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var ev Event
		var details string
		var created int64
		if err := rows.Scan(&ev.ID, &ev.QueueID, &ev.Type, &details, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Details = []byte(details)
		ev.CreatedAt = fromMillis(created)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(r rowScanner) (QueueItem, error) {
	var item QueueItem
	var lastError sql.NullString
	var nextRun, created, updated int64
	err := r.Scan(
		&item.ID,
		&item.UserID,
		&item.DeviceID,
		&item.BookID,
		&item.Format,
		&item.Status,
		&item.Attempts,
		&nextRun,
		&lastError,
		&created,
		&updated,
	)
	if err != nil {
		return QueueItem{}, err
	}
	item.NextRunAt = fromMillis(nextRun)
	item.LastError = lastError.String
	item.CreatedAt = fromMillis(created)
	item.UpdatedAt = fromMillis(updated)
	return item, nil
}

func collectItems(rows *sql.Rows) ([]QueueItem, error) {
	defer rows.Close()

	items := []QueueItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue items: %w", err)
	}
	return items, nil
}
