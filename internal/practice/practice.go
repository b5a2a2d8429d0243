// Package practice exposes the practice configuration the booking engine
// reads: providers and rooms with their weekly calendars, and patients.
package practice

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/practice-scheduling/internal/calendar"
)

var (
	ErrResourceNotFound = errors.New("resource not found")
	ErrPatientNotFound  = errors.New("patient not found")
)

type Kind string

const (
	KindProvider Kind = "provider"
	KindRoom     Kind = "room"
)

// Resource is a provider or room whose time is scheduled.
type Resource struct {
	ID        uuid.UUID     `json:"id"`
	CompanyID uuid.UUID     `json:"company_id"`
	Name      string        `json:"name"`
	Kind      Kind          `json:"kind"`
	Role      string        `json:"role,omitempty"`
	Timezone  string        `json:"timezone"`
	Week      calendar.Week `json:"weekly_calendar"`
	Active    bool          `json:"active"`

	loc *time.Location
}

// Location is the zone the weekly calendar is expressed in.
func (r Resource) Location() *time.Location {
	if r.loc != nil {
		return r.loc
	}
	if r.Timezone != "" {
		if loc, err := time.LoadLocation(r.Timezone); err == nil {
			return loc
		}
	}
	return time.UTC
}

// WithLocation pins the resolved zone so repeated lookups are free.
func (r Resource) WithLocation(loc *time.Location) Resource {
	r.loc = loc
	return r
}

type Patient struct {
	ID        uuid.UUID `json:"id"`
	CompanyID uuid.UUID `json:"company_id"`
	Name      string    `json:"name"`
	Email     *string   `json:"email,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
}

// Directory lists the schedulable resources of a practice.
type Directory interface {
	GetResource(ctx context.Context, id uuid.UUID) (*Resource, error)
	// ListProviders returns active providers of the company ordered by id.
	// An empty role matches every provider.
	ListProviders(ctx context.Context, companyID uuid.UUID, role string) ([]Resource, error)
}

type Patients interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
}

// resolveLocation loads tz, falling back when it is empty or unknown.
func resolveLocation(tz string, fallback *time.Location) *time.Location {
	if tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	if fallback != nil {
		return fallback
	}
	return time.UTC
}
