// Package kindle connects the command engine to the durable send queue.
//
// An enqueue is two steps: the EnqueueSend command validates the request and
// assigns the send id under the engine's write lock, then the queue item and
// its QUEUED event are inserted outside the lock. If the insert fails the
// send request is discarded again so the quota is not consumed.
package kindle

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/roach88/bookshelf/internal/delivery"
	"github.com/roach88/bookshelf/internal/engine"
	"github.com/roach88/bookshelf/internal/store"
)

// Queue is the subset of the store the service writes to and reads from.
type Queue interface {
	Enqueue(ctx context.Context, item store.NewItem, details any) error
	Item(ctx context.Context, id int64) (store.QueueItem, error)
	History(ctx context.Context, userID int64, limit, offset int) ([]store.QueueItem, error)
	CountByUser(ctx context.Context, userID int64) (int, error)
	Events(ctx context.Context, queueID int64) ([]store.Event, error)
}

// Service enqueues sends and answers history queries.
type Service struct {
	engine *engine.Engine
	queue  Queue
	quota  engine.DailyQuota
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the wall clock used for request timestamps and quota days.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithDailyLimit sets the per-user daily send limit. Zero keeps the default.
func WithDailyLimit(n int) Option {
	return func(s *Service) {
		s.quota = engine.DailyQuota{Limit: n}
	}
}

// NewService creates a Service.
func NewService(e *engine.Engine, q Queue, opts ...Option) *Service {
	s := &Service{
		engine: e,
		queue:  q,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Enqueue validates a send request and writes it to the queue.
//
// Business violations (device not owned, unknown book, unsupported format,
// quota exhausted) are returned as engine errors and write nothing.
func (s *Service) Enqueue(ctx context.Context, userID engine.UserID, deviceID engine.DeviceID, bookID engine.BookID, format string) (store.QueueItem, error) {
	f, err := engine.ParseFormat(format)
	if err != nil {
		return store.QueueItem{}, err
	}

	res, err := engine.Submit(s.engine, engine.EnqueueSend{
		UserID:      userID,
		DeviceID:    deviceID,
		BookID:      bookID,
		Format:      f,
		RequestedAt: s.now().UTC(),
		Quota:       s.quota,
	})
	if err != nil {
		return store.QueueItem{}, err
	}
	req := res.Value

	item := store.NewItem{
		ID:        int64(req.ID),
		UserID:    int64(req.UserID),
		DeviceID:  int64(req.DeviceID),
		BookID:    int64(req.BookID),
		Format:    string(req.Format),
		CreatedAt: req.CreatedAt,
	}
	details := delivery.QueuedDetails{
		BookID:   item.BookID,
		DeviceID: item.DeviceID,
		Format:   item.Format,
	}
	if err := s.queue.Enqueue(ctx, item, details); err != nil {
		if _, derr := engine.Submit(s.engine, engine.DiscardSend{SendID: req.ID}); derr != nil {
			slog.Error("discard send after failed enqueue", "send_id", req.ID, "error", derr)
		}
		return store.QueueItem{}, errors.Wrapf(err, "enqueue send %d", req.ID)
	}

	slog.Info("send enqueued",
		"queue_id", item.ID,
		"user_id", item.UserID,
		"device_id", item.DeviceID,
		"book_id", item.BookID,
		"format", item.Format,
	)

	return s.queue.Item(ctx, item.ID)
}

// QuotaRemaining returns how many more sends the user may enqueue today.
func (s *Service) QuotaRemaining(userID engine.UserID) int {
	snap := engine.ReadSnapshot(s.engine)
	used := snap.SendsSince(userID, engine.StartOfDay(s.now()))
	return max(s.quota.Effective()-used, 0)
}
