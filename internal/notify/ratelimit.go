package notify

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// RateLimited caps the rate at which notifications reach the wrapped
// dispatcher. Calls wait for a token or until ctx is done.
type RateLimited struct {
	next    Dispatcher
	limiter *rate.Limiter
}

func NewRateLimited(next Dispatcher, perSecond float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (d *RateLimited) ScheduleReminder(ctx context.Context, r Reminder) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	return d.next.ScheduleReminder(ctx, r)
}

func (d *RateLimited) CancelReminder(ctx context.Context, appointmentID uuid.UUID) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	return d.next.CancelReminder(ctx, appointmentID)
}

func (d *RateLimited) Notify(ctx context.Context, m Message) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	return d.next.Notify(ctx, m)
}

var _ Dispatcher = (*RateLimited)(nil)
