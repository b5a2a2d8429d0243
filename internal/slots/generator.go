// Package slots computes bookable time slots from weekly calendars and
// existing bookings.
package slots

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/practice-scheduling/internal/appointment"
	"github.com/hackgods/practice-scheduling/internal/calendar"
	"github.com/hackgods/practice-scheduling/internal/practice"
)

const DefaultDurationMinutes = 30

var ErrInvalidDuration = errors.New("invalid slot duration")

// TimeSlot is derived on every query and never persisted.
type TimeSlot struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	ResourceID uuid.UUID `json:"resource_id"`
	Available  bool      `json:"available"`
}

// Snapshot is one resource's calendar together with the bookings that hold it
// over the generated range.
type Snapshot struct {
	Resource practice.Resource
	Bookings []appointment.Appointment
}

// NormalizeDuration applies the default to a zero duration and rejects
// durations that are negative or longer than a day.
func NormalizeDuration(minutes, fallback int) (int, error) {
	if minutes == 0 {
		minutes = fallback
	}
	if minutes == 0 {
		minutes = DefaultDurationMinutes
	}
	if minutes < 0 || minutes > calendar.MinutesPerDay {
		return 0, fmt.Errorf("%w: %d minutes", ErrInvalidDuration, minutes)
	}
	return minutes, nil
}

// Generate returns every slot of the given duration for the snapshots over
// days, ordered by start and then by resource id. Slots overlapping a break
// are omitted; the grid is not re-aligned after a break. Slots overlapping an
// occupying booking are emitted with Available false.
//
// The sequence is a pure function of its inputs and may be ranged over any
// number of times.
func Generate(snapshots []Snapshot, days calendar.DateRange, durationMinutes int) (iter.Seq[TimeSlot], error) {
	if durationMinutes <= 0 || durationMinutes > calendar.MinutesPerDay {
		return nil, fmt.Errorf("%w: %d minutes", ErrInvalidDuration, durationMinutes)
	}

	ordered := slices.Clone(snapshots)
	slices.SortFunc(ordered, func(a, b Snapshot) int {
		return compareIDs(a.Resource.ID, b.Resource.ID)
	})

	streams := make([]iter.Seq[TimeSlot], len(ordered))
	for i, snap := range ordered {
		streams[i] = resourceSlots(snap, days, durationMinutes)
	}
	return merge(streams), nil
}

// resourceSlots walks one resource's days on a fixed grid from opening time.
func resourceSlots(snap Snapshot, days calendar.DateRange, durationMinutes int) iter.Seq[TimeSlot] {
	loc := snap.Resource.Location()
	step := calendar.TimeOfDay(durationMinutes)
	length := time.Duration(durationMinutes) * time.Minute

	return func(yield func(TimeSlot) bool) {
		for day := range days.Days() {
			hours := snap.Resource.Week.Day(day.Weekday())
			if !hours.Open() {
				continue
			}
			open, closing := *hours.Start, *hours.End
			dayStart, dayEnd := calendar.SingleDay(day).Bounds(loc)
			booked := bookingsWithin(snap.Bookings, dayStart, dayEnd)

			for from := open; from+step <= closing; from += step {
				to := from + step
				if hours.InBreak(from, to) {
					continue
				}
				start := from.On(day, loc)
				end := start.Add(length)
				slot := TimeSlot{
					Start:      start,
					End:        end,
					ResourceID: snap.Resource.ID,
					Available:  !appointment.HasConflict(start, end, booked),
				}
				if !yield(slot) {
					return
				}
			}
		}
	}
}

func bookingsWithin(all []appointment.Appointment, from, to time.Time) []appointment.Appointment {
	var out []appointment.Appointment
	for _, a := range all {
		if appointment.Overlaps(a.Start, a.End(), from, to) {
			out = append(out, a)
		}
	}
	return out
}

// merge interleaves per-resource ascending streams. Streams are given in
// resource id order, so the first stream wins ties on start.
func merge(streams []iter.Seq[TimeSlot]) iter.Seq[TimeSlot] {
	return func(yield func(TimeSlot) bool) {
		type head struct {
			next func() (TimeSlot, bool)
			stop func()
			slot TimeSlot
			ok   bool
		}
		heads := make([]*head, 0, len(streams))
		defer func() {
			for _, h := range heads {
				h.stop()
			}
		}()
		for _, s := range streams {
			next, stop := iter.Pull(s)
			h := &head{next: next, stop: stop}
			h.slot, h.ok = next()
			heads = append(heads, h)
		}

		for {
			var best *head
			for _, h := range heads {
				if !h.ok {
					continue
				}
				if best == nil || h.slot.Start.Before(best.slot.Start) {
					best = h
				}
			}
			if best == nil {
				return
			}
			if !yield(best.slot) {
				return
			}
			best.slot, best.ok = best.next()
		}
	}
}

func compareIDs(a, b uuid.UUID) int {
	as, bs := a.String(), b.String()
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

// Contains reports whether seq has an available slot for resourceID that
// starts at start and ends at end.
func Contains(seq iter.Seq[TimeSlot], resourceID uuid.UUID, start, end time.Time) bool {
	for s := range seq {
		if s.ResourceID != resourceID || !s.Start.Equal(start) {
			continue
		}
		if s.End.Equal(end) && s.Available {
			return true
		}
	}
	return false
}
