// Package app wires the scheduling services from configuration. Both the
// API server and the worker build their object graph here.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/practice-scheduling/internal/api"
	"github.com/hackgods/practice-scheduling/internal/appointment"
	"github.com/hackgods/practice-scheduling/internal/booking"
	"github.com/hackgods/practice-scheduling/internal/config"
	"github.com/hackgods/practice-scheduling/internal/db"
	"github.com/hackgods/practice-scheduling/internal/notify"
	"github.com/hackgods/practice-scheduling/internal/practice"
	redisclient "github.com/hackgods/practice-scheduling/internal/redis"
	"github.com/hackgods/practice-scheduling/internal/reportschedule"
	"github.com/hackgods/practice-scheduling/internal/slots"
	"github.com/hackgods/practice-scheduling/internal/stats"
	"github.com/hackgods/practice-scheduling/internal/waitlist"
)

type App struct {
	Pool  *pgxpool.Pool
	Redis *redis.Client
	AMQP  *amqp091.Connection

	Directory  *practice.PgDirectory
	Finder     *slots.Finder
	Bookings   *booking.Service
	Waitlist   *waitlist.Service
	Processor  *waitlist.Processor
	Reporter   *stats.Reporter
	Reports    *reportschedule.Service
	ReportJobs *reportschedule.Runner

	closers []func() error
}

// New connects to every configured backend and builds the services. The
// returned App must be closed.
func New(ctx context.Context, cfg config.Config, logger *zerolog.Logger) (*App, error) {
	a := &App{}

	pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, logger)
	cancel()
	if err != nil {
		return nil, err
	}
	a.Pool = pool
	a.closers = append(a.closers, func() error { pool.Close(); return nil })

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, pool); err != nil {
			_ = a.Close()
			return nil, err
		}
		logger.Info().Msg("schema applied")
	}

	var locker redisclient.Locker
	if cfg.RedisAddr != "" {
		rdb, err := redisclient.Connect(ctx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		}, logger)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.Redis = rdb
		a.closers = append(a.closers, rdb.Close)
		locker = redisclient.NewRedisResourceLocker(rdb, cfg.LockTTL, cfg.LockWait)
	} else {
		logger.Warn().Msg("REDIS_ADDR not set, resource locks are local to this process")
		locker = redisclient.NewLocalLocker(cfg.LockWait)
	}

	var dispatcher notify.Dispatcher
	if cfg.AMQPURL != "" {
		conn, ch, err := notify.DialAMQP(cfg.AMQPURL, cfg.NotifyQueue)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.AMQP = conn
		a.closers = append(a.closers, conn.Close)
		dispatcher = notify.NewAMQPDispatcher(ch, cfg.NotifyQueue, logger)
		logger.Info().Str("queue", cfg.NotifyQueue).Msg("publishing notifications to amqp")
	} else {
		dispatcher = notify.NewLogDispatcher(logger)
	}
	dispatcher = notify.NewRateLimited(dispatcher, cfg.NotifyRate, cfg.NotifyBurst)

	appointments := appointment.NewPgRepository(pool)
	a.Directory = practice.NewPgDirectory(pool, cfg.Timezone)
	entries := waitlist.NewPgRepository(pool)
	schedules := reportschedule.NewPgStore(pool)

	a.Finder = slots.NewFinder(a.Directory, appointments, cfg.DefaultSlot, logger)
	a.Processor = waitlist.NewProcessor(entries, a.Directory, a.Finder, dispatcher, cfg.DefaultSlot, logger)
	a.Bookings = booking.NewService(appointments, a.Directory, a.Directory, a.Finder, locker, a.Processor, dispatcher,
		booking.Config{
			DefaultDurationMinutes: cfg.DefaultSlot,
			ReminderLead:           cfg.ReminderLead,
			PendingTTL:             cfg.PendingTTL,
		}, logger)
	a.Waitlist = waitlist.NewService(entries, a.Directory, a.Directory, cfg.DefaultSlot, logger)
	a.Reporter = stats.NewReporter(a.Directory, appointments, logger)
	a.Reports = reportschedule.NewService(schedules, a.Directory, logger)
	a.ReportJobs = reportschedule.NewRunner(schedules, a.Directory, a.Reporter, dispatcher, logger)

	return a, nil
}

// Dependencies lists the readiness checks for the connected backends.
func (a *App) Dependencies() []api.Dependency {
	deps := []api.Dependency{{
		Name:     "postgres",
		Critical: true,
		Check:    a.Pool.Ping,
	}}
	if a.Redis != nil {
		deps = append(deps, api.Dependency{
			Name:  "redis",
			Check: func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() },
		})
	}
	if a.AMQP != nil {
		deps = append(deps, api.Dependency{
			Name: "amqp",
			Check: func(context.Context) error {
				if a.AMQP.IsClosed() {
					return errors.New("connection closed")
				}
				return nil
			},
		})
	}
	return deps
}

// Close waits for in-flight booking side effects and then releases the
// backends in reverse order of acquisition.
func (a *App) Close() error {
	if a.Bookings != nil {
		a.Bookings.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close: %w", errors.Join(errs...))
	}
	return nil
}
