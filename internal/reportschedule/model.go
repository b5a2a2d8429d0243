// Package reportschedule stores recurring stats reports and runs the ones
// that are due.
package reportschedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrScheduleNotFound = errors.New("report schedule not found")
	ErrInvalidSchedule  = errors.New("invalid report schedule")
)

const MinInterval = time.Hour

type Schedule struct {
	ID         uuid.UUID  `json:"id"`
	CompanyID  uuid.UUID  `json:"company_id"`
	ResourceID uuid.UUID  `json:"resource_id"`
	Every      Interval   `json:"every"`
	Recipients []string   `json:"recipients"`
	NextRunAt  time.Time  `json:"next_run_at"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Interval is a time.Duration that encodes as a Go duration string.
type Interval time.Duration

func (i Interval) Duration() time.Duration { return time.Duration(i) }

func (i Interval) MarshalText() ([]byte, error) {
	return []byte(time.Duration(i).String()), nil
}

func (i *Interval) UnmarshalText(b []byte) error {
	d, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*i = Interval(d)
	return nil
}

// Store persists schedules. Implementations must make ClaimDue atomic so a
// due schedule is run by exactly one caller.
type Store interface {
	Create(ctx context.Context, s *Schedule) (*Schedule, error)
	Get(ctx context.Context, id uuid.UUID) (*Schedule, error)
	List(ctx context.Context, companyID uuid.UUID) ([]Schedule, error)
	Update(ctx context.Context, s *Schedule) (*Schedule, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// ClaimDue returns active schedules with NextRunAt <= now, having moved
	// their NextRunAt to now + Every and LastRunAt to now.
	ClaimDue(ctx context.Context, now time.Time) ([]Schedule, error)
}
