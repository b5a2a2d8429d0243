package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/practice-scheduling/internal/app"
	"github.com/hackgods/practice-scheduling/internal/config"
	"github.com/hackgods/practice-scheduling/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := config.NewLogger(os.Stderr, "worker", "prod", "info")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := cfg.Logger("worker")
	logger.Info().
		Dur("interval", cfg.WorkerInterval).
		Dur("pending_ttl", cfg.PendingTTL).
		Msg("worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Register()

	a, err := app.New(rootCtx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing backends")
		}
	}()

	// Run once at startup
	runOnce(rootCtx, a, cfg.WorkerInterval, &logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, a, cfg.WorkerInterval, &logger)
		}
	}
}

// runOnce runs the periodic jobs concurrently. A failing job is logged and
// does not stop the others.
func runOnce(ctx context.Context, a *app.App, interval time.Duration, logger *zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, interval)
	defer cancel()

	start := time.Now()
	var g errgroup.Group

	g.Go(func() error {
		n, err := a.Bookings.ExpireStalePending(runCtx)
		if err != nil {
			logger.Error().Err(err).Msg("pending expiry failed")
			return nil
		}
		logger.Info().Int("expired", n).Msg("pending expiry done")
		return nil
	})

	g.Go(func() error {
		n, err := a.Processor.Sweep(runCtx)
		if err != nil {
			logger.Error().Err(err).Msg("waitlist sweep failed")
			return nil
		}
		logger.Info().Int("notified", n).Msg("waitlist sweep done")
		return nil
	})

	g.Go(func() error {
		n, err := a.ReportJobs.RunDue(runCtx)
		if err != nil {
			logger.Error().Err(err).Msg("scheduled reports failed")
			return nil
		}
		logger.Info().Int("sent", n).Msg("scheduled reports done")
		return nil
	})

	_ = g.Wait()
	logger.Debug().Dur("elapsed", time.Since(start)).Msg("worker run complete")
}
