package waitlist

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
	"github.com/hackgods/practice-scheduling/internal/slots"
)

// SnapshotLoader loads fresh bookings for slot generation.
type SnapshotLoader interface {
	Load(ctx context.Context, resources []practice.Resource, days calendar.DateRange) ([]slots.Snapshot, error)
}

// Offer is a notified entry together with the slot it was offered.
type Offer struct {
	Entry Entry          `json:"entry"`
	Slot  slots.TimeSlot `json:"slot"`
}

type Processor struct {
	repo       Repository
	directory  practice.Directory
	loader     SnapshotLoader
	dispatcher notify.Dispatcher
	logger     *zerolog.Logger

	defaultDuration int
	// limit caps how many entries are notified per run.
	limit int
	now   func() time.Time
}

type ProcessorOption func(*Processor)

// WithNotifyLimit sets how many entries a single run may notify. The default
// of one offers a freed slot to the head of the queue only.
func WithNotifyLimit(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.limit = n
		}
	}
}

func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = now }
}

func NewProcessor(
	repo Repository,
	directory practice.Directory,
	loader SnapshotLoader,
	dispatcher notify.Dispatcher,
	defaultDuration int,
	logger *zerolog.Logger,
	opts ...ProcessorOption,
) *Processor {
	p := &Processor{
		repo:            repo,
		directory:       directory,
		loader:          loader,
		dispatcher:      dispatcher,
		logger:          logger,
		defaultDuration: defaultDuration,
		limit:           1,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessWaitlist offers currently available slots of the resource to its
// pending entries in priority order. Entries are claimed atomically before
// the notification is sent, so each entry is notified at most once even with
// concurrent processors. Slots are not reserved. Rooms are never offered.
func (p *Processor) ProcessWaitlist(ctx context.Context, resourceID uuid.UUID) ([]Offer, error) {
	resource, err := p.directory.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if resource.Kind != practice.KindProvider {
		return nil, nil
	}

	entries, err := p.repo.ListPending(ctx, resource.CompanyID, resource.ID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	now := p.now()
	days, ok := windowDays(entries, now, resource.Location())
	if !ok {
		return nil, nil
	}
	snapshots, err := p.loader.Load(ctx, []practice.Resource{*resource}, days)
	if err != nil {
		return nil, fmt.Errorf("load snapshot for %s: %w", resource.ID, err)
	}

	var offers []Offer
	for _, e := range entries {
		slot, found, err := p.firstOpening(e, snapshots, now, resource.Location())
		if err != nil {
			p.logger.Warn().Err(err).Str("entry_id", e.ID.String()).Msg("skip waitlist entry")
			continue
		}
		if !found {
			continue
		}

		claimed, err := p.repo.Claim(ctx, e.ID, now)
		if err != nil {
			return offers, err
		}
		if !claimed {
			continue
		}
		e.Notified = true
		e.NotifiedAt = &now
		metrics.IncWaitlistNotified()

		p.offer(ctx, e, slot)
		offers = append(offers, Offer{Entry: e, Slot: slot})
		if len(offers) >= p.limit {
			break
		}
	}
	return offers, nil
}

// firstOpening generates only over the entry's own windows; the shared
// snapshot covers the union of all entries.
func (p *Processor) firstOpening(e Entry, snapshots []slots.Snapshot, now time.Time, loc *time.Location) (slots.TimeSlot, bool, error) {
	duration, err := slots.NormalizeDuration(e.DurationMinutes, p.defaultDuration)
	if err != nil {
		return slots.TimeSlot{}, false, err
	}
	days, ok := windowDays([]Entry{e}, now, loc)
	if !ok {
		return slots.TimeSlot{}, false, nil
	}
	seq, err := slots.Generate(snapshots, days, duration)
	if err != nil {
		return slots.TimeSlot{}, false, err
	}
	for s := range seq {
		if !s.Available || s.Start.Before(now) {
			continue
		}
		for _, w := range e.PreferredWindows {
			if w.Contains(s.Start, s.End) {
				return s, true, nil
			}
		}
	}
	return slots.TimeSlot{}, false, nil
}

// offer sends the notification. Delivery failures are logged; the entry
// stays claimed.
func (p *Processor) offer(ctx context.Context, e Entry, slot slots.TimeSlot) {
	err := p.dispatcher.Notify(ctx, notify.Message{
		Kind:      notify.KindWaitlistOffer,
		PatientID: e.PatientID,
		Subject:   "An appointment slot is available",
		Data: map[string]any{
			"waitlist_entry_id": e.ID.String(),
			"resource_id":       slot.ResourceID.String(),
			"start":             slot.Start,
			"end":               slot.End,
			"appointment_type":  e.AppointmentType,
		},
	})
	if err != nil {
		metrics.IncNotifyFailed(string(notify.KindWaitlistOffer))
		p.logger.Error().Err(err).
			Str("entry_id", e.ID.String()).
			Str("patient_id", e.PatientID.String()).
			Msg("waitlist notification failed")
		return
	}
	p.logger.Info().
		Str("entry_id", e.ID.String()).
		Str("resource_id", slot.ResourceID.String()).
		Time("start", slot.Start).
		Msg("waitlist entry notified")
}

// Sweep processes every resource that has pending entries, including every
// provider of companies with resource-agnostic entries.
func (p *Processor) Sweep(ctx context.Context) (int, error) {
	ids, err := p.repo.PendingResourceIDs(ctx)
	if err != nil {
		return 0, err
	}
	companies, err := p.repo.PendingCompanyIDs(ctx)
	if err != nil {
		return 0, err
	}
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	for _, c := range companies {
		providers, err := p.directory.ListProviders(ctx, c, "")
		if err != nil {
			return 0, err
		}
		for _, r := range providers {
			if !seen[r.ID] {
				seen[r.ID] = true
				ids = append(ids, r.ID)
			}
		}
	}

	notified := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return notified, err
		}
		offers, err := p.ProcessWaitlist(ctx, id)
		if err != nil {
			p.logger.Error().Err(err).Str("resource_id", id.String()).Msg("waitlist sweep failed for resource")
			continue
		}
		notified += len(offers)
	}
	return notified, nil
}

// windowDays is the date range in loc covering every future preferred window.
func windowDays(entries []Entry, now time.Time, loc *time.Location) (calendar.DateRange, bool) {
	var from, to time.Time
	for _, e := range entries {
		for _, w := range e.PreferredWindows {
			if !w.End.After(now) {
				continue
			}
			start := w.Start
			if start.Before(now) {
				start = now
			}
			if from.IsZero() || start.Before(from) {
				from = start
			}
			if to.IsZero() || w.End.After(to) {
				to = w.End
			}
		}
	}
	if from.IsZero() {
		return calendar.DateRange{}, false
	}
	// End is exclusive; a window closing at midnight does not need the next day.
	last := to.In(loc).Add(-time.Nanosecond)
	r, err := calendar.NewDateRange(from.In(loc), last)
	if err != nil {
		return calendar.DateRange{}, false
	}
	return r, true
}
