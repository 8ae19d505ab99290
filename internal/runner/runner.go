// Package runner executes a batch of checks one after another.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/hazz-dev/dashprobe/internal/artifact"
	"github.com/hazz-dev/dashprobe/internal/checker"
	"github.com/hazz-dev/dashprobe/internal/config"
)

// Preparer brings the browser to a check's page.
type Preparer interface {
	Prepare(ctx context.Context, chk config.Check)
}

// Dispatcher evaluates a check on the current page.
type Dispatcher interface {
	Dispatch(ctx context.Context, chk checker.Check, meta map[string]string) checker.Record
}

// Capturer saves debug artifacts and returns their paths.
type Capturer interface {
	Screenshot(ctx context.Context, name string) string
	HTML(ctx context.Context, name string) string
}

// Notifier is told about every failed check.
type Notifier interface {
	Notify(check, reason, screenshot string)
}

// Batch is the outcome of one run.
type Batch struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Records    []checker.Record
}

// Counts returns the number of passed and failed records.
func (b Batch) Counts() (passed, failed int) {
	for _, r := range b.Records {
		if r.Status == checker.StatusPass {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

// Runner runs the configured checks.
type Runner struct {
	cfg      *config.Config
	prepare  Preparer
	dispatch Dispatcher
	capture  Capturer
	notify   Notifier
	logger   *slog.Logger
}

// New creates a Runner. notify may be nil. Pass nil logger to use the default
// logger.
func New(cfg *config.Config, prepare Preparer, dispatch Dispatcher, capture Capturer, notify Notifier, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:      cfg,
		prepare:  prepare,
		dispatch: dispatch,
		capture:  capture,
		notify:   notify,
		logger:   logger,
	}
}

// Run executes every check in order and returns one record per check that
// was started. A cancelled ctx stops the batch before the next check.
func (r *Runner) Run(ctx context.Context) Batch {
	b := Batch{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Records:   make([]checker.Record, 0, len(r.cfg.Checks)),
	}
	r.logger.Info("run started", "run", b.ID, "checks", len(r.cfg.Checks))

	for _, c := range r.cfg.Checks {
		if err := ctx.Err(); err != nil {
			r.logger.Warn("run cancelled", "run", b.ID, "remaining", len(r.cfg.Checks)-len(b.Records), "error", err)
			break
		}
		rec := r.runOne(ctx, c)
		r.logger.Info("check finished",
			"check", rec.Check,
			"status", rec.Status,
			"value", rec.Value,
			"locator", rec.Locator,
		)
		b.Records = append(b.Records, rec)
	}

	b.FinishedAt = time.Now()
	passed, failed := b.Counts()
	r.logger.Info("run finished", "run", b.ID, "passed", passed, "failed", failed, "duration", b.FinishedAt.Sub(b.StartedAt))
	return b
}

func (r *Runner) runOne(ctx context.Context, c config.Check) (rec checker.Record) {
	meta := r.cfg.Metadata(c)
	r.logger.Info("running check", "check", c.Name, "url", c.URL)

	defer func() {
		if p := recover(); p != nil {
			rec = r.crashed(ctx, c, meta, p)
		}
	}()

	chk, err := checker.New(c, r.cfg.Defaults)
	if err != nil {
		rec = checker.NewRecord(meta, c.URL, c.Name)
		rec.Type = c.Type
		rec.Error = err.Error()
		r.alert(rec, fmt.Sprintf("%s failed (%v)", c.Type, err))
		return rec
	}

	r.prepare.Prepare(ctx, c)
	rec = r.dispatch.Dispatch(ctx, chk, meta)
	if rec.Status == checker.StatusFail {
		r.alert(rec, fmt.Sprintf("%s failed (locator: %s)", rec.Type, rec.Locator))
	}
	return rec
}

// crashed turns a panic inside a check into a FAIL record with artifacts.
func (r *Runner) crashed(ctx context.Context, c config.Check, meta map[string]string, p any) checker.Record {
	r.logger.Error("check crashed", "check", c.Name, "panic", p)

	name := "Check_Crashed_" + artifact.SafeFilename(c.Name)
	shot := r.capture.Screenshot(ctx, name)
	r.capture.HTML(ctx, name)

	rec := checker.NewRecord(meta, c.URL, c.Name)
	rec.Type = c.Type
	rec.Error = fmt.Sprint(p)
	if shot != "" {
		rec.Screenshot = filepath.Base(shot)
	}
	r.alert(rec, fmt.Sprintf("%s crashed: %v", c.Name, p))
	return rec
}

func (r *Runner) alert(rec checker.Record, reason string) {
	if r.notify == nil {
		return
	}
	r.notify.Notify(rec.Check, reason, rec.Screenshot)
}
