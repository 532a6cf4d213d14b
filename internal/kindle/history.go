package kindle

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/roach88/bookshelf/internal/engine"
	"github.com/roach88/bookshelf/internal/store"
)

// History paging bounds.
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// HistoryEntry is one send as shown to its owner.
type HistoryEntry struct {
	ID         int64        `json:"id"`
	BookID     int64        `json:"book_id"`
	BookTitle  string       `json:"book_title"`
	DeviceID   int64        `json:"device_id"`
	DeviceName string       `json:"device_name"`
	Format     string       `json:"format"`
	Status     store.Status `json:"status"`
	Attempts   int          `json:"attempts"`
	LastError  string       `json:"last_error,omitempty"`
	NextRunAt  time.Time    `json:"next_run_at"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// HistoryPage is one page of a user's sends, newest first.
type HistoryPage struct {
	Items   []HistoryEntry `json:"items"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
	HasMore bool           `json:"has_more"`
}

// History returns a page of the user's sends.
//
// limit is clamped to [1, MaxHistoryLimit] and a negative offset is treated
// as zero. Device names and book titles come from the current snapshot; a
// device or book that no longer exists is shown with an empty name.
func (s *Service) History(ctx context.Context, userID engine.UserID, limit, offset int) (HistoryPage, error) {
	limit = min(max(limit, 1), MaxHistoryLimit)
	offset = max(offset, 0)

	// One extra row tells whether another page exists.
	items, err := s.queue.History(ctx, int64(userID), limit+1, offset)
	if err != nil {
		return HistoryPage{}, errors.Wrap(err, "send history")
	}
	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	total, err := s.queue.CountByUser(ctx, int64(userID))
	if err != nil {
		return HistoryPage{}, errors.Wrap(err, "send history")
	}

	snap := engine.ReadSnapshot(s.engine)
	entries := make([]HistoryEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, describe(snap, item))
	}

	return HistoryPage{
		Items:   entries,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: hasMore,
	}, nil
}

// Events returns the event trace of one of the user's sends.
// Another user's send is reported as not found.
func (s *Service) Events(ctx context.Context, userID engine.UserID, queueID int64) ([]store.Event, error) {
	item, err := s.queue.Item(ctx, queueID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && item.UserID != int64(userID)) {
		return nil, errors.Mark(errors.Newf("send %d not found", queueID), engine.ErrNotFound)
	}
	if err != nil {
		return nil, errors.Wrap(err, "send events")
	}

	events, err := s.queue.Events(ctx, queueID)
	if err != nil {
		return nil, errors.Wrap(err, "send events")
	}
	return events, nil
}

func describe(snap *engine.Snapshot, item store.QueueItem) HistoryEntry {
	e := HistoryEntry{
		ID:        item.ID,
		BookID:    item.BookID,
		DeviceID:  item.DeviceID,
		Format:    item.Format,
		Status:    item.Status,
		Attempts:  item.Attempts,
		LastError: item.LastError,
		NextRunAt: item.NextRunAt,
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
	if b, ok := snap.Books[engine.BookID(item.BookID)]; ok {
		e.BookTitle = b.Title
	}
	if d, ok := snap.UserDevice(engine.UserID(item.UserID), engine.DeviceID(item.DeviceID)); ok {
		e.DeviceName = d.Name
	}
	return e
}
