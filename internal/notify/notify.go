// Package notify hands reminders and patient messages to the delivery
// system. Delivery itself (email, SMS) happens downstream.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindReminder       Kind = "reminder"
	KindReminderCancel Kind = "reminder_cancel"
	KindWaitlistOffer  Kind = "waitlist_offer"
	KindStatsReport    Kind = "stats_report"
)

type Reminder struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	ResourceID    uuid.UUID `json:"resource_id"`
	StartsAt      time.Time `json:"starts_at"`
	SendAt        time.Time `json:"send_at"`
}

// Message is a one-off notification. PatientID is uuid.Nil for messages addressed
// to staff recipients.
type Message struct {
	Kind       Kind           `json:"kind"`
	PatientID  uuid.UUID      `json:"patient_id"`
	Recipients []string       `json:"recipients,omitempty"`
	Subject    string         `json:"subject"`
	Body       string         `json:"body,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// Dispatcher is fire-and-forget from the caller's point of view: callers log
// returned errors and carry on.
type Dispatcher interface {
	ScheduleReminder(ctx context.Context, r Reminder) error
	CancelReminder(ctx context.Context, appointmentID uuid.UUID) error
	Notify(ctx context.Context, m Message) error
}

// ReminderTime is lead before start, never earlier than now.
func ReminderTime(start, now time.Time, lead time.Duration) time.Time {
	at := start.Add(-lead)
	if at.Before(now) {
		return now
	}
	return at
}
