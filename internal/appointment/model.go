package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// OccupyingStatuses are the statuses whose appointments block their interval.
var OccupyingStatuses = []Status{StatusPending, StatusScheduled, StatusConfirmed}

var transitions = map[Status][]Status{
	StatusPending:   {StatusScheduled, StatusConfirmed, StatusCancelled},
	StatusScheduled: {StatusCancelled, StatusCompleted, StatusNoShow},
	StatusConfirmed: {StatusCancelled, StatusCompleted, StatusNoShow},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Occupies reports whether an appointment in this status holds its slot.
func (s Status) Occupies() bool {
	return s == StatusPending || s == StatusScheduled || s == StatusConfirmed
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type Appointment struct {
	ID                 uuid.UUID  `json:"id"`
	CompanyID          uuid.UUID  `json:"company_id"`
	ResourceID         uuid.UUID  `json:"resource_id"`
	PatientID          uuid.UUID  `json:"patient_id"`
	RoomID             *uuid.UUID `json:"room_id,omitempty"`
	AppointmentType    string     `json:"appointment_type"`
	Start              time.Time  `json:"start"`
	DurationMinutes    int        `json:"duration_minutes"`
	Status             Status     `json:"status"`
	SelfService        bool       `json:"self_service"`
	Notes              *string    `json:"notes,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (a Appointment) End() time.Time {
	return a.Start.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Holds reports whether the appointment occupies the given provider or room.
func (a Appointment) Holds(resourceID uuid.UUID) bool {
	if a.ResourceID == resourceID {
		return true
	}
	return a.RoomID != nil && *a.RoomID == resourceID
}

// StatusFields carries the columns written alongside a status change.
type StatusFields struct {
	CancellationReason *string
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// Filter selects appointments for reporting. Zero values match everything.
type Filter struct {
	ResourceID *uuid.UUID
	From       time.Time
	To         time.Time
	Statuses   []Status
}

func (f Filter) Matches(a Appointment) bool {
	if f.ResourceID != nil && !a.Holds(*f.ResourceID) {
		return false
	}
	if !f.From.IsZero() && a.Start.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !a.Start.Before(f.To) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if a.Status == s {
			return true
		}
	}
	return false
}
