package waitlist

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryRepository struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*Entry
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		entries: make(map[uuid.UUID]*Entry),
		now:     time.Now,
	}
}

func (r *MemoryRepository) Create(_ context.Context, e *Entry) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := *e
	if created.ID == uuid.Nil {
		created.ID = uuid.New()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = r.now()
	}
	created.PreferredWindows = append([]Window(nil), e.PreferredWindows...)
	r.entries[created.ID] = &created

	out := created
	return &out, nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	out := *e
	return &out, nil
}

func (r *MemoryRepository) ListPending(_ context.Context, companyID, resourceID uuid.UUID) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Entry
	for _, e := range r.entries {
		if e.Notified || !e.Matches(companyID, resourceID) {
			continue
		}
		result = append(result, *e)
	}
	SortForProcessing(result)
	return result, nil
}

func (r *MemoryRepository) Claim(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return false, ErrEntryNotFound
	}
	if e.Notified {
		return false, nil
	}
	e.Notified = true
	e.NotifiedAt = &at
	return true, nil
}

func (r *MemoryRepository) PendingResourceIDs(_ context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[uuid.UUID]struct{})
	for _, e := range r.entries {
		if !e.Notified && e.ResourceID != nil {
			seen[*e.ResourceID] = struct{}{}
		}
	}
	return sortedKeys(seen), nil
}

func (r *MemoryRepository) PendingCompanyIDs(_ context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[uuid.UUID]struct{})
	for _, e := range r.entries {
		if !e.Notified && e.ResourceID == nil {
			seen[e.CompanyID] = struct{}{}
		}
	}
	return sortedKeys(seen), nil
}

func sortedKeys(m map[uuid.UUID]struct{}) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

var _ Repository = (*MemoryRepository)(nil)
