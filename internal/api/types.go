package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/practice-scheduling/internal/slots"
	"github.com/hackgods/practice-scheduling/internal/waitlist"
)

type CreateBookingRequest struct {
	CompanyID       string    `json:"company_id" validate:"required"`
	ResourceID      string    `json:"resource_id" validate:"required"`
	PatientID       string    `json:"patient_id" validate:"required"`
	RoomID          string    `json:"room_id,omitempty"`
	AppointmentType string    `json:"appointment_type" validate:"required,max=100"`
	Start           time.Time `json:"start" validate:"required"`
	DurationMinutes int       `json:"duration_minutes"`
	Notes           *string   `json:"notes,omitempty" validate:"omitempty,max=2000"`
	SelfService     bool      `json:"self_service"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type AvailabilityResponse struct {
	StartDate       string           `json:"start_date"`
	EndDate         string           `json:"end_date"`
	DurationMinutes int              `json:"duration_minutes"`
	Slots           []slots.TimeSlot `json:"slots"`
}

type CreateWaitlistRequest struct {
	CompanyID        string            `json:"company_id"`
	PatientID        string            `json:"patient_id" validate:"required"`
	ResourceID       string            `json:"resource_id,omitempty"`
	AppointmentType  string            `json:"appointment_type" validate:"required,max=100"`
	PreferredWindows []waitlist.Window `json:"preferred_windows"`
	DurationMinutes  int               `json:"duration_minutes"`
	Priority         int               `json:"priority"`
}

type WaitlistResponse struct {
	ResourceID uuid.UUID        `json:"resource_id"`
	Entries    []waitlist.Entry `json:"entries"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
