package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/roach88/bookshelf/internal/checkpoint"
	"github.com/roach88/bookshelf/internal/config"
	"github.com/roach88/bookshelf/internal/engine"
	"github.com/roach88/bookshelf/internal/kindle"
	"github.com/roach88/bookshelf/internal/store"
)

// session is what every library command starts from: the effective config,
// the open database, an engine restored from the latest checkpoint and
// brought up to date with the send queue, and a checkpointer for it.
type session struct {
	cfg          config.Config
	store        *store.Store
	engine       *engine.Engine
	checkpointer *checkpoint.Checkpointer
}

// loadConfig returns the effective configuration. A non-empty dbPath
// overrides the configured database.
func loadConfig(opts *RootOptions, dbPath string) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath, config.WithEnvFile(opts.EnvFile))
	if err != nil {
		return config.Config{}, err
	}
	if dbPath != "" {
		cfg.Database = dbPath
	}
	return cfg, nil
}

// setupLogging installs the default slog handler. --verbose forces debug.
func setupLogging(cfg config.LogConfig, verbose bool, w io.Writer) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))
}

// openSession loads config, opens the database and restores state. Failures
// are reported through formatter and returned as command errors.
func openSession(ctx context.Context, opts *RootOptions, dbPath string, formatter *OutputFormatter) (*session, error) {
	cfg, err := loadConfig(opts, dbPath)
	if err != nil {
		return nil, outputCommandError(formatter, ErrCodeConfig, "failed to load config", err)
	}
	setupLogging(cfg.Log, opts.Verbose, formatter.GetErrWriter())

	slog.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, outputCommandError(formatter, ErrCodeDatabase, "failed to open database", err)
	}

	e := engine.New()
	if _, err := checkpoint.Restore(ctx, e, st); err != nil {
		closeStore(st)
		return nil, outputCommandError(formatter, ErrCodeRestore, "failed to restore state", err)
	}

	// Created before recovery so recovered sends reach the next checkpoint.
	checkpointer := checkpoint.New(e, st)
	if _, err := kindle.Recover(ctx, e, st); err != nil {
		closeStore(st)
		return nil, outputCommandError(formatter, ErrCodeRestore, "failed to recover sends", err)
	}

	return &session{cfg: cfg, store: st, engine: e, checkpointer: checkpointer}, nil
}

func (s *session) close() {
	closeStore(s.store)
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// newFormatter builds the formatter for cmd's output streams.
func newFormatter(opts *RootOptions, w, errW io.Writer) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    w,
		ErrWriter: errW,
		Verbose:   opts.Verbose,
	}
}
