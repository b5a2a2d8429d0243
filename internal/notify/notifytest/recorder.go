// Package notifytest provides an in-memory notify.Dispatcher for tests.
package notifytest

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/hackgods/practice-scheduling/internal/notify"
)

// Recorder captures every call. Set Err to make all calls fail.
type Recorder struct {
	mu        sync.Mutex
	reminders []notify.Reminder
	cancelled []uuid.UUID
	messages  []notify.Message

	Err error
}

func (r *Recorder) ScheduleReminder(_ context.Context, rem notify.Reminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.reminders = append(r.reminders, rem)
	return nil
}

func (r *Recorder) CancelReminder(_ context.Context, appointmentID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.cancelled = append(r.cancelled, appointmentID)
	return nil
}

func (r *Recorder) Notify(_ context.Context, m notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.messages = append(r.messages, m)
	return nil
}

func (r *Recorder) Reminders() []notify.Reminder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Reminder(nil), r.reminders...)
}

func (r *Recorder) Cancelled() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uuid.UUID(nil), r.cancelled...)
}

// Messages returns the recorded messages of the given kind, or all of them
// when kind is empty.
func (r *Recorder) Messages(kind notify.Kind) []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Message
	for _, m := range r.messages {
		if kind == "" || m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

var _ notify.Dispatcher = (*Recorder)(nil)
