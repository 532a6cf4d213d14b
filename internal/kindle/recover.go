package kindle

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/roach88/bookshelf/internal/engine"
	"github.com/roach88/bookshelf/internal/store"
)

// QueueScanner lists queue items newer than a given id.
type QueueScanner interface {
	ItemsAfter(ctx context.Context, afterID int64) ([]store.QueueItem, error)
}

// Recover brings a restored engine up to date with the durable queue.
//
// Queue items are written right after EnqueueSend, but the snapshot only
// reaches disk at the next checkpoint. Items newer than the snapshot's send
// sequence are added back as send requests, so ids are not reused and the
// daily quota counts them. It returns how many requests were recovered.
func Recover(ctx context.Context, e *engine.Engine, q QueueScanner) (int, error) {
	snap := engine.ReadSnapshot(e)
	items, err := q.ItemsAfter(ctx, int64(snap.Sequences.Send))
	if err != nil {
		return 0, errors.Wrap(err, "recover sends")
	}
	if len(items) == 0 {
		return 0, nil
	}

	sends := make([]engine.SendRequest, 0, len(items))
	for _, item := range items {
		sends = append(sends, engine.SendRequest{
			ID:        engine.SendID(item.ID),
			UserID:    engine.UserID(item.UserID),
			DeviceID:  engine.DeviceID(item.DeviceID),
			BookID:    engine.BookID(item.BookID),
			Format:    engine.Format(item.Format),
			CreatedAt: item.CreatedAt,
		})
	}

	res, err := engine.Submit(e, engine.RecoverSends{Sends: sends})
	if err != nil {
		return 0, errors.Wrap(err, "recover sends")
	}

	slog.Warn("recovered sends missing from checkpoint",
		"count", res.Value,
		"send_sequence", res.Snapshot.Sequences.Send,
	)
	return res.Value, nil
}
