package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/practice-scheduling/internal/config"
	"github.com/hackgods/practice-scheduling/internal/db"
	"github.com/hackgods/practice-scheduling/internal/practice"
	"github.com/hackgods/practice-scheduling/internal/reportschedule"
)

const patientBatch = 500

func main() {
	logger := config.NewLogger(os.Stdout, "seed", os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
	logger.Info().Msg("seed starting")

	cfg, err := config.LoadSeed()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, &logger)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	ctx = context.Background()
	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("apply schema")
	}

	faker := gofakeit.New(cfg.FakerSeed)
	for i := 0; i < cfg.Companies; i++ {
		fp := practice.NewFakePractice(faker, cfg.Providers, cfg.Rooms, cfg.Patients, cfg.Timezone)
		if err := seedCompany(ctx, pool, cfg, fp, &logger); err != nil {
			logger.Fatal().Err(err).Str("company_id", fp.CompanyID.String()).Msg("seed company")
		}
	}

	logger.Info().Msg("seed complete")
}

func seedCompany(ctx context.Context, pool *pgxpool.Pool, cfg config.SeedConfig, fp practice.FakePractice, logger *zerolog.Logger) error {
	log := logger.With().Str("company_id", fp.CompanyID.String()).Logger()
	directory := practice.NewPgDirectory(pool, time.UTC)

	for _, r := range append(fp.Providers, fp.Rooms...) {
		if err := directory.UpsertResource(ctx, r); err != nil {
			return err
		}
	}
	log.Info().Int("providers", len(fp.Providers)).Int("rooms", len(fp.Rooms)).Msg("resources seeded")

	for offset := 0; offset < len(fp.Patients); offset += patientBatch {
		end := min(offset+patientBatch, len(fp.Patients))
		if _, err := directory.InsertPatients(ctx, fp.Patients[offset:end]); err != nil {
			return err
		}
		log.Info().Msgf("patients seeded: %d/%d", end, len(fp.Patients))
	}

	if cfg.ReportTarget == "" || len(fp.Providers) == 0 {
		return nil
	}
	reports := reportschedule.NewService(reportschedule.NewPgStore(pool), directory, &log)
	schedule, err := reports.Create(ctx, reportschedule.CreateRequest{
		CompanyID:  fp.CompanyID,
		ResourceID: fp.Providers[0].ID,
		Every:      reportschedule.Interval(cfg.ReportEvery),
		Recipients: []string{cfg.ReportTarget},
	})
	if err != nil {
		return err
	}
	log.Info().
		Str("schedule_id", schedule.ID.String()).
		Time("next_run_at", schedule.NextRunAt).
		Msg("report schedule seeded")
	return nil
}
