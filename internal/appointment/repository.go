package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrOverlap is returned by Insert when another occupying appointment
	// already holds part of the interval for the provider or room.
	ErrOverlap           = errors.New("appointment overlaps an existing booking")
	ErrStatusChanged     = errors.New("appointment status changed concurrently")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Repository contains all DB interactions needed by the booking engine.
type Repository interface {
	// Insert must reject overlaps atomically with ErrOverlap.
	Insert(ctx context.Context, a *Appointment) (*Appointment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// For conflict checks: occupying appointments holding resourceID as
	// provider or room that intersect [from, to).
	ListOccupying(ctx context.Context, resourceID uuid.UUID, from, to time.Time) ([]Appointment, error)
	List(ctx context.Context, f Filter) ([]Appointment, error)

	// UpdateStatus is a compare-and-set on the current status. It returns
	// ErrStatusChanged when the row exists but is no longer in from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, fields StatusFields) (*Appointment, error)

	// Expiry worker
	FindStalePending(ctx context.Context, createdBefore time.Time) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
