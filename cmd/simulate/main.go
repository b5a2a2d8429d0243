package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/practice-scheduling/internal/appointment"
	"github.com/hackgods/practice-scheduling/internal/config"
	"github.com/hackgods/practice-scheduling/internal/db"
)

func main() {
	logger := config.NewLogger(os.Stdout, "simulate", os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
	logger.Info().Msg("simulator starting")

	cfg, err := config.LoadSim()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("cancel", cfg.CancelRatio).
		Float64("read", cfg.ReadRatio).
		Msg("config loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	pgPool, err := db.ConnectPostgres(loadCtx, cfg.PostgresDSN, &logger)
	if err != nil {
		cancel()
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(loadCtx, pgPool, cfg)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().
		Int("providers", len(dataPool.Providers)).
		Int("patients", len(dataPool.Patients)).
		Msg("data pool loaded")

	sim := NewSimulator(cfg, dataPool, &http.Client{Timeout: cfg.RequestTimeout}, &logger)
	if err := sim.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("simulation failed")
	}

	auditCtx, cancelAudit := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelAudit()
	overlaps, err := appointment.NewPgRepository(pgPool).CountOverlaps(auditCtx, dataPool.CompanyID)
	if err != nil {
		logger.Error().Err(err).Msg("overlap audit failed")
	}

	sim.PrintReport(overlaps)

	if overlaps > 0 {
		logger.Error().Int("overlaps", overlaps).Msg("double booking detected")
		os.Exit(1)
	}
}
