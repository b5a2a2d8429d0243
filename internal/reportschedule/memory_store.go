package reportschedule

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryStore struct {
	mu        sync.Mutex
	schedules map[uuid.UUID]*Schedule
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		schedules: make(map[uuid.UUID]*Schedule),
		now:       time.Now,
	}
}

func clone(s *Schedule) Schedule {
	out := *s
	out.Recipients = slices.Clone(s.Recipients)
	if s.LastRunAt != nil {
		t := *s.LastRunAt
		out.LastRunAt = &t
	}
	return out
}

func (m *MemoryStore) Create(_ context.Context, s *Schedule) (*Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	created := clone(s)
	if created.ID == uuid.Nil {
		created.ID = uuid.New()
	}
	now := m.now()
	created.CreatedAt = now
	created.UpdatedAt = now
	m.schedules[created.ID] = &created

	out := clone(&created)
	return &out, nil
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.schedules[id]
	if !ok {
		return nil, ErrScheduleNotFound
	}
	out := clone(s)
	return &out, nil
}

func (m *MemoryStore) List(_ context.Context, companyID uuid.UUID) ([]Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Schedule
	for _, s := range m.schedules {
		if s.CompanyID == companyID {
			result = append(result, clone(s))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt) ||
			(result[i].CreatedAt.Equal(result[j].CreatedAt) && result[i].ID.String() < result[j].ID.String())
	})
	return result, nil
}

func (m *MemoryStore) Update(_ context.Context, s *Schedule) (*Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.schedules[s.ID]
	if !ok {
		return nil, ErrScheduleNotFound
	}
	existing.Every = s.Every
	existing.Recipients = slices.Clone(s.Recipients)
	existing.NextRunAt = s.NextRunAt
	existing.Active = s.Active
	existing.UpdatedAt = m.now()

	out := clone(existing)
	return &out, nil
}

func (m *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.schedules[id]; !ok {
		return ErrScheduleNotFound
	}
	delete(m.schedules, id)
	return nil
}

func (m *MemoryStore) ClaimDue(_ context.Context, now time.Time) ([]Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []Schedule
	for _, s := range m.schedules {
		if !s.Active || s.NextRunAt.After(now) {
			continue
		}
		ran := now
		s.LastRunAt = &ran
		s.NextRunAt = now.Add(s.Every.Duration())
		s.UpdatedAt = now
		due = append(due, clone(s))
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID.String() < due[j].ID.String() })
	return due, nil
}

var _ Store = (*MemoryStore)(nil)
