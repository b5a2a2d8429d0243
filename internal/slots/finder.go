package slots

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/practice-scheduling/internal/appointment"
	"github.com/hackgods/practice-scheduling/internal/calendar"
	"github.com/hackgods/practice-scheduling/internal/metrics"
	"github.com/hackgods/practice-scheduling/internal/practice"
)

// BookingSource returns the occupying appointments that hold a provider or
// room within [from, to).
type BookingSource interface {
	ListOccupying(ctx context.Context, resourceID uuid.UUID, from, to time.Time) ([]appointment.Appointment, error)
}

// Query selects resources either by id or by company and optional role.
type Query struct {
	CompanyID       uuid.UUID
	ResourceID      *uuid.UUID
	Role            string
	Days            calendar.DateRange
	DurationMinutes int
	OnlyAvailable   bool
}

type Finder struct {
	directory       practice.Directory
	bookings        BookingSource
	defaultDuration int
	logger          *zerolog.Logger
}

func NewFinder(directory practice.Directory, bookings BookingSource, defaultDuration int, logger *zerolog.Logger) *Finder {
	return &Finder{
		directory:       directory,
		bookings:        bookings,
		defaultDuration: defaultDuration,
		logger:          logger,
	}
}

// Duration resolves a requested duration in minutes, where zero selects the
// finder's default.
func (f *Finder) Duration(requested int) (int, error) {
	return NormalizeDuration(requested, f.defaultDuration)
}

// maxConcurrentLoads keeps a company-wide query from taking every pool
// connection.
const maxConcurrentLoads = 4

// Load reads the bookings of every resource over days concurrently.
func (f *Finder) Load(ctx context.Context, resources []practice.Resource, days calendar.DateRange) ([]Snapshot, error) {
	out := make([]Snapshot, len(resources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLoads)
	for i, r := range resources {
		g.Go(func() error {
			from, to := days.Bounds(r.Location())
			booked, err := f.bookings.ListOccupying(gctx, r.ID, from, to)
			if err != nil {
				return fmt.Errorf("load bookings for %s: %w", r.ID, err)
			}
			out[i] = Snapshot{Resource: r, Bookings: booked}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Slots loads a fresh snapshot and generates slots from it.
func (f *Finder) Slots(ctx context.Context, resources []practice.Resource, days calendar.DateRange, durationMinutes int) (iter.Seq[TimeSlot], error) {
	started := time.Now()
	defer metrics.ObserveSlotGeneration(started)

	duration, err := f.Duration(durationMinutes)
	if err != nil {
		return nil, err
	}
	snapshots, err := f.Load(ctx, resources, days)
	if err != nil {
		return nil, err
	}
	return Generate(snapshots, days, duration)
}

// Find resolves the query's resources through the directory and returns the
// materialized slot list.
func (f *Finder) Find(ctx context.Context, q Query) ([]TimeSlot, error) {
	resources, err := f.resolve(ctx, q)
	if err != nil {
		return nil, err
	}

	seq, err := f.Slots(ctx, resources, q.Days, q.DurationMinutes)
	if err != nil {
		return nil, err
	}

	result := make([]TimeSlot, 0)
	for s := range seq {
		if q.OnlyAvailable && !s.Available {
			continue
		}
		result = append(result, s)
	}

	f.logger.Debug().
		Int("resources", len(resources)).
		Int("slots", len(result)).
		Time("from", q.Days.Start).
		Time("to", q.Days.End).
		Msg("availability computed")
	return result, nil
}

func (f *Finder) resolve(ctx context.Context, q Query) ([]practice.Resource, error) {
	if q.ResourceID != nil {
		r, err := f.directory.GetResource(ctx, *q.ResourceID)
		if err != nil {
			return nil, err
		}
		if q.CompanyID != uuid.Nil && r.CompanyID != q.CompanyID {
			return nil, practice.ErrResourceNotFound
		}
		return []practice.Resource{*r}, nil
	}

	providers, err := f.directory.ListProviders(ctx, q.CompanyID, q.Role)
	if err != nil {
		return nil, err
	}
	return providers, nil
}
