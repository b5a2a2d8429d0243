package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a process-local Repository. Insert holds the write
// lock across the overlap check and the write, which gives it the same
// all-or-nothing guarantee as the Postgres exclusion constraints.
type MemoryRepository struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*Appointment
	events []EventLog
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID: make(map[uuid.UUID]*Appointment),
		now:  time.Now,
	}
}

func (r *MemoryRepository) Insert(_ context.Context, a *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a.Status.Occupies() {
		for _, existing := range r.byID {
			if !existing.Status.Occupies() {
				continue
			}
			if !sharesResource(existing, a) {
				continue
			}
			if Overlaps(a.Start, a.End(), existing.Start, existing.End()) {
				return nil, ErrOverlap
			}
		}
	}

	created := *a
	if created.ID == uuid.Nil {
		created.ID = uuid.New()
	}
	now := r.now()
	created.CreatedAt = now
	created.UpdatedAt = now
	r.byID[created.ID] = &created

	out := created
	return &out, nil
}

func sharesResource(a, b *Appointment) bool {
	if a.Holds(b.ResourceID) {
		return true
	}
	return b.RoomID != nil && a.Holds(*b.RoomID)
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	out := *a
	return &out, nil
}

func (r *MemoryRepository) ListOccupying(_ context.Context, resourceID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Appointment
	for _, a := range r.byID {
		if !a.Status.Occupies() || !a.Holds(resourceID) {
			continue
		}
		if Overlaps(a.Start, a.End(), from, to) {
			result = append(result, *a)
		}
	}
	sortByStart(result)
	return result, nil
}

func (r *MemoryRepository) List(_ context.Context, f Filter) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Appointment
	for _, a := range r.byID {
		if f.Matches(*a) {
			result = append(result, *a)
		}
	}
	sortByStart(result)
	return result, nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status, fields StatusFields) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, ErrStatusChanged
	}
	a.Status = to
	if fields.CancellationReason != nil {
		reason := *fields.CancellationReason
		a.CancellationReason = &reason
	}
	a.UpdatedAt = r.now()

	out := *a
	return &out, nil
}

func (r *MemoryRepository) FindStalePending(_ context.Context, createdBefore time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Appointment
	for _, a := range r.byID {
		if a.Status == StatusPending && a.SelfService && a.CreatedAt.Before(createdBefore) {
			result = append(result, *a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventLog(nil), r.events...)
}

// SetClock overrides the timestamp source used for CreatedAt/UpdatedAt.
func (r *MemoryRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func sortByStart(list []Appointment) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].Start.Equal(list[j].Start) {
			return list[i].Start.Before(list[j].Start)
		}
		return list[i].ID.String() < list[j].ID.String()
	})
}
