package waitlist

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEntryNotFound = errors.New("waitlist entry not found")
	ErrInvalidEntry  = errors.New("invalid waitlist entry")
)

// Window is a half-open [Start, End) period the patient can attend.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Contains(start, end time.Time) bool {
	return !start.Before(w.Start) && !end.After(w.End)
}

type Entry struct {
	ID        uuid.UUID `json:"id"`
	CompanyID uuid.UUID `json:"company_id"`
	PatientID uuid.UUID `json:"patient_id"`
	// ResourceID is nil for entries that accept any provider of the company.
	ResourceID       *uuid.UUID `json:"resource_id,omitempty"`
	AppointmentType  string     `json:"appointment_type"`
	PreferredWindows []Window   `json:"preferred_windows"`
	DurationMinutes  int        `json:"duration_minutes"`
	Priority         int        `json:"priority"`
	CreatedAt        time.Time  `json:"created_at"`
	Notified         bool       `json:"notified"`
	NotifiedAt       *time.Time `json:"notified_at,omitempty"`
}

// Matches reports whether the entry is interested in the resource.
func (e Entry) Matches(companyID, resourceID uuid.UUID) bool {
	if e.CompanyID != companyID {
		return false
	}
	return e.ResourceID == nil || *e.ResourceID == resourceID
}

// SortForProcessing orders entries by priority descending, then oldest first.
func SortForProcessing(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority > entries[j].Priority
		}
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].ID.String() < entries[j].ID.String()
	})
}

type Repository interface {
	Create(ctx context.Context, e *Entry) (*Entry, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)

	// ListPending returns non-notified entries of the company for the
	// resource or for any resource, in processing order.
	ListPending(ctx context.Context, companyID, resourceID uuid.UUID) ([]Entry, error)

	// Claim marks the entry notified. It returns false when another caller
	// claimed it first.
	Claim(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)

	// PendingResourceIDs lists resources named by non-notified entries.
	PendingResourceIDs(ctx context.Context) ([]uuid.UUID, error)
	// PendingCompanyIDs lists companies with non-notified entries that
	// accept any resource.
	PendingCompanyIDs(ctx context.Context) ([]uuid.UUID, error)
}
