package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/bookshelf/internal/engine"
	"github.com/roach88/bookshelf/internal/store"
)

// Defaults for Config fields left at zero.
const (
	DefaultPollInterval = 30 * time.Second
	DefaultBatchSize    = 10
	DefaultMaxRetries   = 3
	DefaultSendTimeout  = 60 * time.Second
)

// Failure reasons recorded for referential failures.
const (
	ReasonDeviceNotFound = "device not found"
	ReasonBookNotFound   = "book not found"
	ReasonFileNotFound   = "book file not found"
	ReasonBadFormat      = "unsupported format"
	ReasonMaxRetries     = "max retries exceeded"
	ReasonPermanent      = "permanent delivery failure"
)

// Config controls batch size, retry policy and gateway timeout.
type Config struct {
	BatchSize   int
	MaxRetries  int
	SendTimeout time.Duration
	Backoff     Backoff
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.Backoff.Base <= 0 {
		c.Backoff = DefaultBackoff()
	}
	return c
}

// CycleStats summarizes one poll cycle.
type CycleStats struct {
	Due       int
	Skipped   int
	Completed int
	Retried   int
	Failed    int
	Errors    int
}

// Worker delivers queued sends.
//
// Thread-safety model:
//   - Start()/Stop(): safe from any goroutine
//   - RunCycle(): runs one cycle synchronously; Start's loop calls it on
//     every tick, tests call it directly
type Worker struct {
	id      string
	queue   Queue
	dir     Directory
	files   FileResolver
	gateway Gateway
	cfg     Config
	now     func() time.Time
	metrics *Metrics

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// WorkerOption allows configuration of worker parameters.
type WorkerOption func(*Worker)

// WithClock sets the wall clock used for due checks and timestamps.
func WithClock(now func() time.Time) WorkerOption {
	return func(w *Worker) {
		w.now = now
	}
}

// WithMetrics records cycle and outcome metrics.
func WithMetrics(m *Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithWorkerID overrides the generated worker id recorded in PROCESSING events.
func WithWorkerID(id string) WorkerOption {
	return func(w *Worker) {
		w.id = id
	}
}

// NewWorker creates a Worker. Unset BatchSize, SendTimeout and Backoff take
// the package defaults, as does a negative MaxRetries.
func NewWorker(q Queue, dir Directory, files FileResolver, gw Gateway, cfg Config, opts ...WorkerOption) *Worker {
	w := &Worker{
		id:      uuid.Must(uuid.NewV7()).String(),
		queue:   q,
		dir:     dir,
		files:   files,
		gateway: gw,
		cfg:     cfg.withDefaults(),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// ID returns the worker id recorded in PROCESSING events.
func (w *Worker) ID() string {
	return w.id
}

// Start runs a poll cycle immediately and then every interval until Stop is
// called or ctx is cancelled. It returns an error if the worker is already
// running.
func (w *Worker) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return errors.New("delivery worker already running")
	}
	w.stop = make(chan struct{})
	w.done = make(chan struct{})

	go w.loop(ctx, interval, w.stop, w.done)

	slog.Info("delivery worker started", "worker_id", w.id, "interval", interval)
	return nil
}

// Stop halts the poll loop. The in-flight cycle, if any, runs to completion
// before Stop returns. Stop is a no-op if the worker is not running.
func (w *Worker) Stop() {
	w.mu.Lock()
	stop, done := w.stop, w.done
	w.stop, w.done = nil, nil
	w.mu.Unlock()

	if done == nil {
		return
	}
	close(stop)
	<-done
	slog.Info("delivery worker stopped", "worker_id", w.id)
}

func (w *Worker) loop(ctx context.Context, interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunCycle(ctx); err != nil && ctx.Err() == nil {
			slog.Error("delivery cycle failed", "worker_id", w.id, "error", err)
		}

		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunCycle processes one batch of due items.
//
// An error is returned only when the batch could not be fetched; per-item
// failures are logged and counted in the returned stats.
func (w *Worker) RunCycle(ctx context.Context) (CycleStats, error) {
	start := time.Now()
	var stats CycleStats
	defer func() {
		w.metrics.observeCycle(time.Since(start))
		w.recordQueueDepth(ctx)
	}()

	items, err := w.queue.Due(ctx, w.now(), w.cfg.BatchSize)
	if err != nil {
		return stats, fmt.Errorf("fetch due items: %w", err)
	}
	stats.Due = len(items)

	for _, item := range items {
		// Items not yet claimed are left for the next run after cancellation.
		if ctx.Err() != nil {
			break
		}
		switch w.processItem(ctx, item) {
		case resultSkipped:
			stats.Skipped++
		case resultCompleted:
			stats.Completed++
		case resultRetried:
			stats.Retried++
		case resultFailed:
			stats.Failed++
		case resultError:
			stats.Errors++
		}
	}

	if stats.Due > 0 {
		slog.Info("delivery cycle finished",
			"worker_id", w.id,
			"due", stats.Due,
			"completed", stats.Completed,
			"retried", stats.Retried,
			"failed", stats.Failed,
			"skipped", stats.Skipped,
			"errors", stats.Errors,
		)
	}
	return stats, nil
}

type itemResult int

const (
	resultSkipped itemResult = iota
	resultCompleted
	resultRetried
	resultFailed
	resultError
)

// processItem drives one item through claim, delivery and transition.
//
// A panic is recovered and logged; the item then stays PROCESSING.
func (w *Worker) processItem(ctx context.Context, item store.QueueItem) (result itemResult) {
	log := slog.With("worker_id", w.id, "queue_id", item.ID, "attempts", item.Attempts)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while processing queue item", "panic", r)
			result = resultError
		}
	}()

	claimed, err := w.queue.Claim(ctx, item.ID, w.now(), ProcessingDetails{WorkerID: w.id, Attempt: item.Attempts + 1})
	if err != nil {
		log.Error("claim failed", "error", err)
		return resultError
	}
	w.metrics.recordClaim(claimed)
	if !claimed {
		log.Debug("queue item claimed elsewhere")
		return resultSkipped
	}

	// Once claimed, the item must reach its next state even if ctx is cancelled.
	persist := context.WithoutCancel(ctx)

	rcpt, ok := w.dir.Recipient(item.UserID, item.DeviceID)
	if !ok {
		return w.fail(persist, log, item, item.Attempts, ReasonDeviceNotFound, "")
	}
	book, ok := w.dir.Book(item.BookID)
	if !ok {
		return w.fail(persist, log, item, item.Attempts, ReasonBookNotFound, "")
	}
	format, err := engine.ParseFormat(item.Format)
	if err != nil {
		return w.fail(persist, log, item, item.Attempts, ReasonBadFormat, err.Error())
	}
	file, err := w.files.Resolve(ctx, book, format)
	if err != nil {
		return w.fail(persist, log, item, item.Attempts, ReasonFileNotFound, err.Error())
	}

	messageID, sendErr := w.send(ctx, Message{To: rcpt.Email, Title: book.Title, File: file})

	attempts := item.Attempts + 1
	now := w.now()

	switch o := Classify(messageID, sendErr).(type) {
	case Success:
		if err := w.queue.Complete(persist, item.ID, attempts, now, CompletedDetails{MessageID: o.MessageID}); err != nil {
			log.Error("mark completed failed", "error", err)
			return resultError
		}
		w.metrics.recordOutcome(resultCompleted)
		log.Info("book delivered", "status", store.StatusCompleted, "message_id", o.MessageID, "to", rcpt.Email)
		return resultCompleted

	case RetryableFailure:
		if item.Attempts >= w.cfg.MaxRetries {
			return w.fail(persist, log, item, attempts, ReasonMaxRetries, o.Reason)
		}
		next := w.cfg.Backoff.Next(now, attempts)
		details := RetryDetails{Attempt: attempts, NextRunAt: next, Error: o.Reason}
		if err := w.queue.Retry(persist, item.ID, attempts, next, o.Reason, now, details); err != nil {
			log.Error("schedule retry failed", "error", err)
			return resultError
		}
		w.metrics.recordOutcome(resultRetried)
		log.Warn("delivery failed, will retry",
			"status", store.StatusPending, "next_run_at", next, "error", o.Reason)
		return resultRetried

	case PermanentFailure:
		return w.fail(persist, log, item, attempts, ReasonPermanent, o.Reason)
	}

	// Classify always returns one of the cases above.
	panic(fmt.Sprintf("unhandled outcome for queue item %d", item.ID))
}

func (w *Worker) send(ctx context.Context, msg Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.SendTimeout)
	defer cancel()
	return w.gateway.Send(ctx, msg)
}

func (w *Worker) fail(ctx context.Context, log *slog.Logger, item store.QueueItem, attempts int, reason, cause string) itemResult {
	lastError := reason
	if cause != "" {
		lastError = reason + ": " + cause
	}
	details := FailedDetails{Reason: reason, Error: cause, Attempt: attempts}
	if err := w.queue.Fail(ctx, item.ID, attempts, lastError, w.now(), details); err != nil {
		log.Error("mark failed failed", "error", err)
		return resultError
	}
	w.metrics.recordOutcome(resultFailed)
	log.Warn("delivery failed", "status", store.StatusFailed, "reason", reason, "error", cause)
	return resultFailed
}

func (w *Worker) recordQueueDepth(ctx context.Context) {
	if w.metrics == nil || ctx.Err() != nil {
		return
	}
	counts, err := w.queue.CountByStatus(ctx)
	if err != nil {
		slog.Debug("queue depth unavailable", "error", err)
		return
	}
	w.metrics.setQueueDepth(counts)
}
