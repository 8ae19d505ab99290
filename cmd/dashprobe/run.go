package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/dashprobe/internal/alert"
	"github.com/hazz-dev/dashprobe/internal/artifact"
	"github.com/hazz-dev/dashprobe/internal/config"
	"github.com/hazz-dev/dashprobe/internal/scheduler"
	"github.com/hazz-dev/dashprobe/internal/storage"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every configured check once and write the report",
		RunE:  runBatch,
	}
}

func runBatch(cmd *cobra.Command, _ []string) error {
	logger := slog.Default()
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		loadFailed(ctx, err, logger)
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Info("config loaded", "checks", len(cfg.Checks), "digest", cfg.Digest())

	p, err := startProbe(ctx, cfg, logger)
	defer func() {
		if cerr := p.Close(); cerr != nil {
			logger.Warn("cleanup", "error", cerr)
		}
	}()
	if err != nil {
		p.fail(ctx, err)
		return err
	}

	store, closeStore := openHistory(cfg.Storage.Path, logger)
	defer closeStore()

	b := p.scheduler(store).RunOnce(ctx)
	if _, failed := b.Counts(); failed > 0 {
		return fmt.Errorf("%d of %d checks: %w", failed, len(b.Records), errChecksFailed)
	}
	return nil
}

// openHistory opens the history database. Without one the batch still runs
// and writes its report; only the history is lost.
func openHistory(path string, logger *slog.Logger) (scheduler.Store, func()) {
	db, err := storage.Open(path)
	if err != nil {
		logger.Error("opening database, run will not be recorded", "path", path, "error", err)
		return nil, func() {}
	}
	return db, func() { db.Close() }
}

// loadFailed reports a config that could not be loaded. Only environment
// settings are available at this point.
func loadFailed(ctx context.Context, err error, logger *slog.Logger) {
	env := config.LoadEnv()
	logger.Error("fatal error", "error", err)

	store := artifact.New(".", nil, logger)
	store.Screenshot(ctx, "Fatal_Error")
	store.HTML(ctx, "Fatal_Error")

	a := alert.New(env.SlackWebhookURL, "", 0, logger)
	a.Notify("Fatal Error", err.Error(), "")
	a.Wait()
}
