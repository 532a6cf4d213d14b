package delivery

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// DryRunGateway logs deliveries instead of sending them.
type DryRunGateway struct{}

// Send logs msg and returns a synthetic message id.
func (DryRunGateway) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := "dry-run-" + uuid.Must(uuid.NewV7()).String()
	slog.Info("dry-run delivery",
		"to", msg.To,
		"subject", Subject(msg.Title),
		"attachment", msg.File.Name,
		"message_id", id,
	)
	return id, nil
}
