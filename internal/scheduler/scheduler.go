// Package scheduler repeats the check batch on a fixed interval and records
// every batch it runs.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hazz-dev/dashprobe/internal/checker"
	"github.com/hazz-dev/dashprobe/internal/runner"
	"github.com/hazz-dev/dashprobe/internal/storage"
)

// Store defines the storage operations required by the scheduler.
type Store interface {
	InsertRun(ctx context.Context, run storage.Run, records []checker.Record) error
}

// RunFunc runs one batch.
type RunFunc func(ctx context.Context) runner.Batch

// Reporter writes a batch's report and returns its path.
type Reporter func(b runner.Batch) (string, error)

// Scheduler runs batches one at a time: immediately on Start and then every
// interval. A tick that arrives while a batch is running is dropped.
type Scheduler struct {
	interval time.Duration
	run      RunFunc
	store    Store
	digest   string
	report   Reporter
	onBatch  func(runner.Batch)
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// New creates a new Scheduler. store may be nil. Pass nil logger to use the
// default logger.
func New(interval time.Duration, run RunFunc, store Store, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		interval: interval,
		run:      run,
		store:    store,
		logger:   logger,
	}
}

// SetConfigDigest sets the fingerprint stored with every run.
func (s *Scheduler) SetConfigDigest(digest string) {
	s.digest = digest
}

// SetReporter sets the function that writes each batch's report.
func (s *Scheduler) SetReporter(fn Reporter) {
	s.report = fn
}

// SetOnBatch sets the callback invoked after each batch is recorded.
func (s *Scheduler) SetOnBatch(fn func(runner.Batch)) {
	s.onBatch = fn
}

// Start runs the loop in its own goroutine. It is non-blocking.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
}

// Wait blocks until the loop has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	// Run immediately.
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single batch, writes its report and stores it. Reporting and
// storage survive ctx cancellation so an interrupted batch is still recorded.
func (s *Scheduler) RunOnce(ctx context.Context) runner.Batch {
	b := s.run(ctx)
	keep := context.WithoutCancel(ctx)

	var reportPath string
	if s.report != nil {
		path, err := s.report(b)
		if err != nil {
			s.logger.Error("writing report", "run", b.ID, "error", err)
		} else {
			reportPath = path
			s.logger.Info("report saved", "run", b.ID, "path", path)
		}
	}

	if s.store != nil {
		run := storage.Run{
			ID:           b.ID,
			StartedAt:    b.StartedAt,
			FinishedAt:   b.FinishedAt,
			ConfigDigest: s.digest,
			ReportPath:   reportPath,
		}
		if err := s.store.InsertRun(keep, run, b.Records); err != nil {
			s.logger.Error("storing run", "run", b.ID, "error", err)
		}
	}

	if s.onBatch != nil {
		s.onBatch(b)
	}
	return b
}
