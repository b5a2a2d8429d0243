package reportschedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/practice-scheduling/internal/calendar"
	"github.com/hackgods/practice-scheduling/internal/metrics"
	"github.com/hackgods/practice-scheduling/internal/notify"
	"github.com/hackgods/practice-scheduling/internal/practice"
	"github.com/hackgods/practice-scheduling/internal/stats"
)

type StatsSource interface {
	Report(ctx context.Context, resourceID uuid.UUID, days calendar.DateRange) (*stats.Report, error)
}

// Runner sends the stats report of every due schedule.
type Runner struct {
	store      Store
	directory  practice.Directory
	reporter   StatsSource
	dispatcher notify.Dispatcher
	logger     *zerolog.Logger
	now        func() time.Time
}

func NewRunner(store Store, directory practice.Directory, reporter StatsSource, dispatcher notify.Dispatcher, logger *zerolog.Logger) *Runner {
	return &Runner{
		store:      store,
		directory:  directory,
		reporter:   reporter,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

func (r *Runner) SetClock(now func() time.Time) { r.now = now }

// RunDue claims the due schedules and sends one report per schedule. A
// failing schedule is logged and skipped; it runs again at its next slot.
func (r *Runner) RunDue(ctx context.Context) (int, error) {
	now := r.now()
	due, err := r.store.ClaimDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("claim due schedules: %w", err)
	}

	sent := 0
	for _, s := range due {
		if err := r.run(ctx, s, now); err != nil {
			metrics.IncNotifyFailed(string(notify.KindStatsReport))
			r.logger.Error().
				Err(err).
				Str("schedule_id", s.ID.String()).
				Str("resource_id", s.ResourceID.String()).
				Msg("scheduled report failed")
			continue
		}
		sent++
	}
	return sent, nil
}

func (r *Runner) run(ctx context.Context, s Schedule, now time.Time) error {
	resource, err := r.directory.GetResource(ctx, s.ResourceID)
	if err != nil {
		return err
	}
	loc := resource.Location()
	days, err := calendar.NewDateRange(now.Add(-s.Every.Duration()).In(loc), now.In(loc))
	if err != nil {
		return err
	}

	rep, err := r.reporter.Report(ctx, s.ResourceID, days)
	if err != nil {
		return err
	}

	return r.dispatcher.Notify(ctx, notify.Message{
		Kind:       notify.KindStatsReport,
		Recipients: s.Recipients,
		Subject:    fmt.Sprintf("Utilization report for %s", resource.Name),
		Body: fmt.Sprintf("%d appointments, %.0f%% utilization, %.0f%% no-shows",
			rep.Total, rep.UtilizationRate*100, rep.NoShowRate*100),
		Data: map[string]any{
			"schedule_id": s.ID.String(),
			"report":      rep,
		},
	})
}
