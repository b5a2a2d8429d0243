// Package stats aggregates historical appointments into utilization and
// outcome rates.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/practice-scheduling/internal/appointment"
	"github.com/hackgods/practice-scheduling/internal/calendar"
	"github.com/hackgods/practice-scheduling/internal/practice"
)

type Report struct {
	ResourceID       uuid.UUID `json:"resource_id"`
	From             time.Time `json:"from"`
	To               time.Time `json:"to"`
	Total            int       `json:"total"`
	Completed        int       `json:"completed"`
	NoShow           int       `json:"no_show"`
	Cancelled        int       `json:"cancelled"`
	BookedMinutes    int       `json:"booked_minutes"`
	AvailableMinutes int       `json:"available_minutes"`
	CompletionRate   float64   `json:"completion_rate"`
	NoShowRate       float64   `json:"no_show_rate"`
	CancellationRate float64   `json:"cancellation_rate"`
	UtilizationRate  float64   `json:"utilization_rate"`
}

// Compute aggregates appts against availableMinutes of working time.
// Cancelled appointments count towards the total but not towards booked
// minutes.
func Compute(appts []appointment.Appointment, availableMinutes int) Report {
	var r Report
	for _, a := range appts {
		r.Total++
		switch a.Status {
		case appointment.StatusCompleted:
			r.Completed++
		case appointment.StatusNoShow:
			r.NoShow++
		case appointment.StatusCancelled:
			r.Cancelled++
			continue
		}
		r.BookedMinutes += a.DurationMinutes
	}
	r.AvailableMinutes = availableMinutes

	r.CompletionRate = ratio(r.Completed, r.Total)
	r.NoShowRate = ratio(r.NoShow, r.Total)
	r.CancellationRate = ratio(r.Cancelled, r.Total)
	r.UtilizationRate = ratio(r.BookedMinutes, r.AvailableMinutes)
	return r
}

// ratio is 0 for a zero denominator and never leaves [0, 1].
func ratio(n, d int) float64 {
	if d <= 0 || n <= 0 {
		return 0
	}
	v := float64(n) / float64(d)
	if v > 1 {
		return 1
	}
	return v
}

// AppointmentLister is the read side of the appointment store.
type AppointmentLister interface {
	List(ctx context.Context, f appointment.Filter) ([]appointment.Appointment, error)
}

type Reporter struct {
	directory    practice.Directory
	appointments AppointmentLister
	logger       *zerolog.Logger
}

func NewReporter(directory practice.Directory, appointments AppointmentLister, logger *zerolog.Logger) *Reporter {
	return &Reporter{directory: directory, appointments: appointments, logger: logger}
}

// Report covers the dates of days in the resource's zone.
func (r *Reporter) Report(ctx context.Context, resourceID uuid.UUID, days calendar.DateRange) (*Report, error) {
	resource, err := r.directory.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	from, to := days.Bounds(resource.Location())
	appts, err := r.appointments.List(ctx, appointment.Filter{
		ResourceID: &resource.ID,
		From:       from,
		To:         to,
	})
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	rep := Compute(appts, resource.Week.AvailableMinutes(days))
	rep.ResourceID = resource.ID
	rep.From = from
	rep.To = to

	r.logger.Debug().
		Str("resource_id", resource.ID.String()).
		Int("total", rep.Total).
		Float64("utilization", rep.UtilizationRate).
		Msg("stats computed")
	return &rep, nil
}
