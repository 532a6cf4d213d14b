package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/bookshelf/internal/catalog"
	"github.com/roach88/bookshelf/internal/checkpoint"
	"github.com/roach88/bookshelf/internal/config"
	"github.com/roach88/bookshelf/internal/delivery"
	"github.com/roach88/bookshelf/internal/kindle"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Catalog  string
	Once     bool

	// Gateway overrides the configured delivery gateway (for testing).
	// If nil, SES is used when a sender is configured, else the dry-run gateway.
	Gateway delivery.Gateway
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the delivery worker",
		Long: `Start bookshelf: restore library state from the latest checkpoint, start the
periodic checkpointer and the Kindle delivery worker, and serve Prometheus
metrics. SIGINT or SIGTERM stops the worker after its current cycle and
writes a final checkpoint.

Example:
  bookshelf run --db ./bookshelf.db
  bookshelf run --config ./bookshelf.yaml --catalog ./catalog.yaml
  bookshelf run --db ./bookshelf.db --once`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().StringVar(&opts.Catalog, "catalog", "", "YAML catalog of books, users and devices to apply on start")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "run a single delivery cycle and exit")

	return cmd
}

func runWorker(opts *RunOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	// Use command's context if available (for testing), otherwise create one
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sess, err := openSession(ctx, opts.RootOptions, opts.Database, formatter)
	if err != nil {
		return err
	}
	defer sess.close()
	cfg := sess.cfg

	if opts.Catalog != "" {
		cat, err := catalog.Load(opts.Catalog)
		if err != nil {
			return outputCommandError(formatter, ErrCodeCatalog, "failed to load catalog", err)
		}
		if _, err := catalog.Apply(sess.engine, cat, time.Now()); err != nil {
			return outputCommandError(formatter, ErrCodeCatalog, "failed to apply catalog", err)
		}
	}

	gateway := opts.Gateway
	if gateway == nil {
		gateway, err = newGateway(ctx, cfg)
		if err != nil {
			return outputCommandError(formatter, ErrCodeGateway, "failed to create delivery gateway", err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	worker := delivery.NewWorker(
		sess.store,
		kindle.NewDirectory(sess.engine),
		delivery.DirResolver{Root: cfg.Books.Dir},
		gateway,
		cfg.Delivery(),
		delivery.WithMetrics(delivery.NewMetrics(reg)),
	)

	if opts.Once {
		return runOnce(ctx, formatter, worker, sess.checkpointer)
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Addr != "" {
		metricsSrv = serveMetrics(cfg.Metrics.Addr, reg)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	// The worker never sees a cancellation: Stop lets the in-flight cycle
	// finish its deliveries before anything else shuts down.
	if err := worker.Start(context.WithoutCancel(ctx), cfg.Worker.PollInterval); err != nil {
		return outputCommandError(formatter, ErrCodeGeneric, "failed to start worker", err)
	}

	checkpointCtx, stopCheckpointer := context.WithCancel(ctx)
	defer stopCheckpointer()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sess.checkpointer.Run(checkpointCtx, cfg.Checkpoint.Interval)
	}()

	slog.Info("bookshelf running",
		"db", cfg.Database,
		"books_dir", cfg.Books.Dir,
		"dry_run", cfg.DryRun() && opts.Gateway == nil,
		"metrics_addr", cfg.Metrics.Addr,
	)
	fmt.Fprintln(cmd.OutOrStdout(), "Delivery worker started.")
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	select {
	case sig := <-sigChan:
		slog.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
		// Parent context cancelled (e.g., from test)
	}

	worker.Stop()
	stopCheckpointer()
	wg.Wait()

	// The parent context may be done; the final checkpoint must still be written.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer shutdownCancel()

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics server shutdown", "error", err)
		}
	}
	if _, err := sess.checkpointer.Flush(shutdownCtx); err != nil {
		return outputCommandError(formatter, ErrCodeCheckpoint, "failed to write final checkpoint", err)
	}

	slog.Info("bookshelf stopped gracefully")
	return nil
}

// runOnce processes a single batch and saves the resulting state.
func runOnce(ctx context.Context, formatter *OutputFormatter, worker *delivery.Worker, checkpointer *checkpoint.Checkpointer) error {
	stats, err := worker.RunCycle(ctx)
	if err != nil {
		return outputCommandError(formatter, ErrCodeGeneric, "delivery cycle failed", err)
	}
	if _, err := checkpointer.Flush(ctx); err != nil {
		return outputCommandError(formatter, ErrCodeCheckpoint, "failed to write checkpoint", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(stats)
	}
	fmt.Fprintf(formatter.Writer, "Processed %d due item(s): %d completed, %d retried, %d failed, %d skipped, %d errors\n",
		stats.Due, stats.Completed, stats.Retried, stats.Failed, stats.Skipped, stats.Errors)
	return nil
}

// newGateway selects SES when a sender is configured and the dry-run
// gateway otherwise.
func newGateway(ctx context.Context, cfg config.Config) (delivery.Gateway, error) {
	if cfg.DryRun() {
		slog.Warn("ses.sender not set, deliveries are logged and not sent")
		return delivery.DryRunGateway{}, nil
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.SES.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.SES.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return delivery.NewSESGateway(awsCfg, cfg.SES.Sender)
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	slog.Info("serving metrics", "addr", addr)
	return srv
}
