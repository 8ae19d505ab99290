package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazz-dev/dashprobe/internal/alert"
	"github.com/hazz-dev/dashprobe/internal/artifact"
	"github.com/hazz-dev/dashprobe/internal/browser"
	"github.com/hazz-dev/dashprobe/internal/checker"
	"github.com/hazz-dev/dashprobe/internal/config"
	"github.com/hazz-dev/dashprobe/internal/report"
	"github.com/hazz-dev/dashprobe/internal/runner"
	"github.com/hazz-dev/dashprobe/internal/scheduler"
	"github.com/hazz-dev/dashprobe/internal/session"
)

// probe owns everything one process needs to run batches: the browser page,
// the artifact store, the alerter and the runner wired on top of them.
type probe struct {
	cfg       *config.Config
	browser   *browser.Session
	artifacts *artifact.Store
	alerter   *alert.Alerter
	session   *session.Orchestrator
	runner    *runner.Runner
	reports   *report.Writer
	logger    *slog.Logger
}

func newAlerter(cfg *config.Config, logger *slog.Logger) *alert.Alerter {
	s := cfg.Alerts.Slack
	return alert.New(s.WebhookURL, s.Title, s.Cooldown.Duration, logger)
}

// startProbe launches the browser and signs in to the console. On error the
// returned probe is still usable for fatal reporting and must be closed.
func startProbe(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*probe, error) {
	p := &probe{
		cfg:       cfg,
		artifacts: artifact.New(cfg.Artifacts.Dir, nil, logger),
		alerter:   newAlerter(cfg, logger),
		reports:   report.NewWriter(cfg.Report.Dir, cfg.Report.Prefix),
		logger:    logger,
	}

	b, err := browser.Launch(ctx, browser.Options{
		Headless:          cfg.Browser.Headless == nil || *cfg.Browser.Headless,
		UserDataDir:       cfg.Browser.UserDataDir,
		Bin:               cfg.Browser.Bin,
		WindowWidth:       cfg.Browser.WindowWidth,
		WindowHeight:      cfg.Browser.WindowHeight,
		NavigationTimeout: cfg.Defaults.Timeout.Duration,
		LocatorDebug:      cfg.Browser.LocatorDebug,
	}, logger)
	if err != nil {
		return p, fmt.Errorf("starting browser: %w", err)
	}
	p.browser = b
	p.artifacts.SetSource(b)

	p.session = session.New(b, session.OptionsFromConfig(cfg), logger)

	dispatch := checker.NewDispatcher(b, p.artifacts, cfg.Defaults.PollInterval.Duration, logger)
	if cfg.Browser.LocatorDebug {
		dispatch.SetLocatorDebug(b.DebugLocators)
	}

	var notify runner.Notifier
	if p.alerter.Enabled() {
		notify = p.alerter
	}
	p.runner = runner.New(cfg, p.session, dispatch, p.artifacts, notify, logger)

	if err := p.session.LoginConsole(ctx); err != nil {
		return p, fmt.Errorf("console login: %w", err)
	}
	return p, nil
}

// fail captures what the browser shows and alerts about a batch-level error.
func (p *probe) fail(ctx context.Context, err error) {
	p.logger.Error("fatal error", "error", err)
	p.artifacts.Screenshot(ctx, "Fatal_Error")
	p.artifacts.HTML(ctx, "Fatal_Error")
	p.alerter.Notify("Fatal Error", err.Error(), "")
}

// scheduler returns a scheduler that runs this probe's batches and records
// them in store.
func (p *probe) scheduler(store scheduler.Store) *scheduler.Scheduler {
	s := scheduler.New(p.cfg.Schedule.Interval.Duration, p.runner.Run, store, p.logger)
	s.SetConfigDigest(p.cfg.Digest())
	s.SetReporter(func(b runner.Batch) (string, error) {
		return p.reports.Write(b.Records, b.FinishedAt)
	})
	return s
}

// Close drains pending alerts and tears the browser down.
func (p *probe) Close() error {
	p.alerter.Wait()
	if p.browser == nil {
		return nil
	}
	p.logger.Info("closing browser")
	if err := p.browser.Close(); err != nil {
		return fmt.Errorf("closing browser: %w", err)
	}
	return nil
}

// errChecksFailed is returned by run when at least one check failed.
var errChecksFailed = errors.New("one or more checks failed")
