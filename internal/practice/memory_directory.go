package practice

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryDirectory is an in-process Directory and Patients store.
type MemoryDirectory struct {
	mu        sync.RWMutex
	resources map[uuid.UUID]Resource
	patients  map[uuid.UUID]Patient
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		resources: make(map[uuid.UUID]Resource),
		patients:  make(map[uuid.UUID]Patient),
	}
}

func (d *MemoryDirectory) AddResource(r Resource) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resources[r.ID] = r
}

func (d *MemoryDirectory) AddPatient(p Patient) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.patients[p.ID] = p
}

func (d *MemoryDirectory) GetResource(_ context.Context, id uuid.UUID) (*Resource, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.resources[id]
	if !ok || !r.Active {
		return nil, ErrResourceNotFound
	}
	return &r, nil
}

func (d *MemoryDirectory) ListProviders(_ context.Context, companyID uuid.UUID, role string) ([]Resource, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []Resource
	for _, r := range d.resources {
		if r.CompanyID != companyID || r.Kind != KindProvider || !r.Active {
			continue
		}
		if role != "" && r.Role != role {
			continue
		}
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

func (d *MemoryDirectory) GetPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

var _ Directory = (*MemoryDirectory)(nil)
var _ Patients = (*MemoryDirectory)(nil)
