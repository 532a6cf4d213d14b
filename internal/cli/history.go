package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/bookshelf/internal/engine"
	"github.com/roach88/bookshelf/internal/kindle"
	"github.com/roach88/bookshelf/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	UserID   int64
	Limit    int
	Offset   int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show a user's Kindle send history",
		Long: `Show a page of a user's sends, newest first.

--limit is clamped to 1..100.

Example:
  bookshelf history --db ./bookshelf.db --user 1
  bookshelf history --db ./bookshelf.db --user 1 --limit 50 --offset 50 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().Int64Var(&opts.UserID, "user", 0, "user id (required)")
	cmd.Flags().IntVar(&opts.Limit, "limit", kindle.DefaultHistoryLimit, "page size")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "number of sends to skip")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
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

	svc := kindle.NewService(sess.engine, sess.store)
	page, err := svc.History(ctx, engine.UserID(opts.UserID), opts.Limit, opts.Offset)
	if err != nil {
		return outputRequestError(formatter, "history failed", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(page)
	}
	outputHistoryText(formatter.Writer, page)
	return nil
}

func outputHistoryText(w io.Writer, page kindle.HistoryPage) {
	if len(page.Items) == 0 {
		fmt.Fprintln(w, "No sends.")
		return
	}

	fmt.Fprintf(w, "Sends %d-%d of %d\n\n", page.Offset+1, page.Offset+len(page.Items), page.Total)
	for _, e := range page.Items {
		fmt.Fprintf(w, "  [%d] %s  %s -> %s (%s)\n",
			e.ID, e.Status, displayName(e.BookTitle, "book", e.BookID), displayName(e.DeviceName, "device", e.DeviceID), e.Format)
		fmt.Fprintf(w, "       queued %s, %d attempt(s)\n", e.CreatedAt.Format(time.RFC3339), e.Attempts)
		if e.Status == store.StatusPending && e.Attempts > 0 {
			fmt.Fprintf(w, "       next attempt %s\n", e.NextRunAt.Format(time.RFC3339))
		}
		if e.LastError != "" {
			fmt.Fprintf(w, "       last error: %s\n", e.LastError)
		}
	}
	if page.HasMore {
		fmt.Fprintf(w, "\nMore sends: --offset %d\n", page.Offset+len(page.Items))
	}
}

// displayName falls back to "<kind> <id>" for deleted books and devices.
func displayName(name, kind string, id int64) string {
	if name != "" {
		return fmt.Sprintf("%q", name)
	}
	return fmt.Sprintf("%s %d", kind, id)
}

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	Database string
	UserID   int64
	QueueID  int64
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the delivery events of one send",
		Long: `Show the ordered event trace (QUEUED, PROCESSING, RETRY, COMPLETED, FAILED)
of one of the user's sends.

Example:
  bookshelf events --db ./bookshelf.db --user 1 --queue 12`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().Int64Var(&opts.UserID, "user", 0, "user id (required)")
	cmd.Flags().Int64Var(&opts.QueueID, "queue", 0, "send (queue item) id (required)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("queue")

	return cmd
}

func runEvents(opts *EventsOptions, cmd *cobra.Command) error {
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

	svc := kindle.NewService(sess.engine, sess.store)
	events, err := svc.Events(ctx, engine.UserID(opts.UserID), opts.QueueID)
	if err != nil {
		return outputRequestError(formatter, "events failed", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(events)
	}

	fmt.Fprintf(formatter.Writer, "Events for send %d:\n", opts.QueueID)
	for _, ev := range events {
		fmt.Fprintf(formatter.Writer, "  %s  %-10s  %s\n", ev.CreatedAt.UTC().Format(time.RFC3339), ev.Type, ev.Details)
	}
	return nil
}
