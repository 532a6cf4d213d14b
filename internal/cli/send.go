package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/bookshelf/internal/engine"
	"github.com/roach88/bookshelf/internal/kindle"
	"github.com/roach88/bookshelf/internal/store"
)

// SendOptions holds flags for the send command.
type SendOptions struct {
	*RootOptions
	Database   string
	UserID     int64
	DeviceID   int64
	BookID     int64
	BookFormat string
}

// SendResult is the JSON payload of a successful send.
type SendResult struct {
	Item           store.QueueItem `json:"item"`
	QuotaRemaining int             `json:"quota_remaining"`
}

// NewSendCommand creates the send command.
func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Queue a book for delivery to a Kindle device",
		Long: `Queue a book for delivery to one of the user's Kindle devices.

The request is checked against the checkpointed library state (device
ownership, book existence, approved user, daily quota) and written to the
delivery queue. The next worker cycle picks it up.

send works on the database directly; do not run it while 'bookshelf run'
is serving the same database, as the running process would not see the
quota change.

Example:
  bookshelf send --db ./bookshelf.db --user 1 --device 1 --book 42
  bookshelf send --db ./bookshelf.db --user 1 --device 1 --book 42 --book-format mobi`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().Int64Var(&opts.UserID, "user", 0, "requesting user id (required)")
	cmd.Flags().Int64Var(&opts.DeviceID, "device", 0, "target device id (required)")
	cmd.Flags().Int64Var(&opts.BookID, "book", 0, "book id (required)")
	cmd.Flags().StringVar(&opts.BookFormat, "book-format", string(engine.FormatEPUB), "book format (epub|mobi)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("device")
	_ = cmd.MarkFlagRequired("book")

	return cmd
}

func runSend(opts *SendOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sess, err := openSession(ctx, opts.RootOptions, opts.Database, formatter)
	if err != nil {
		return err
	}
	defer sess.close()

	svc := kindle.NewService(sess.engine, sess.store, kindle.WithDailyLimit(sess.cfg.Quota.DailyLimit))

	userID := engine.UserID(opts.UserID)
	item, err := svc.Enqueue(ctx, userID, engine.DeviceID(opts.DeviceID), engine.BookID(opts.BookID), opts.BookFormat)
	if err != nil {
		return outputRequestError(formatter, "send rejected", err)
	}

	// The item is queued either way; a missed checkpoint is recovered from
	// the queue on the next start.
	if _, err := sess.checkpointer.Flush(ctx); err != nil {
		slog.Warn("checkpoint not written after send", "queue_id", item.ID, "error", err)
	}

	result := SendResult{Item: item, QuotaRemaining: svc.QuotaRemaining(userID)}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "Queued send %d: book %d as %s to device %d\n",
		item.ID, item.BookID, item.Format, item.DeviceID)
	fmt.Fprintf(formatter.Writer, "%d send(s) left today\n", result.QuotaRemaining)
	return nil
}
