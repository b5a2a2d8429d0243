package reportschedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/practice-scheduling/internal/practice"
)

type CreateRequest struct {
	CompanyID  uuid.UUID  `json:"company_id"`
	ResourceID uuid.UUID  `json:"resource_id"`
	Every      Interval   `json:"every"`
	Recipients []string   `json:"recipients"`
	StartAt    *time.Time `json:"start_at,omitempty"`
}

type UpdateRequest struct {
	Every      *Interval `json:"every,omitempty"`
	Recipients []string  `json:"recipients,omitempty"`
	Active     *bool     `json:"active,omitempty"`
}

type Service struct {
	store     Store
	directory practice.Directory
	logger    *zerolog.Logger
	now       func() time.Time
}

func NewService(store Store, directory practice.Directory, logger *zerolog.Logger) *Service {
	return &Service{store: store, directory: directory, logger: logger, now: time.Now}
}

func validate(every Interval, recipients []string) error {
	if every.Duration() < MinInterval {
		return fmt.Errorf("%w: interval must be at least %s", ErrInvalidSchedule, MinInterval)
	}
	if len(recipients) == 0 {
		return fmt.Errorf("%w: at least one recipient is required", ErrInvalidSchedule)
	}
	for _, r := range recipients {
		if strings.TrimSpace(r) == "" {
			return fmt.Errorf("%w: blank recipient", ErrInvalidSchedule)
		}
	}
	return nil
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Schedule, error) {
	if err := validate(req.Every, req.Recipients); err != nil {
		return nil, err
	}
	resource, err := s.directory.GetResource(ctx, req.ResourceID)
	if err != nil {
		return nil, err
	}
	if resource.CompanyID != req.CompanyID {
		return nil, practice.ErrResourceNotFound
	}

	next := s.now().Add(req.Every.Duration())
	if req.StartAt != nil {
		next = *req.StartAt
	}

	created, err := s.store.Create(ctx, &Schedule{
		CompanyID:  req.CompanyID,
		ResourceID: req.ResourceID,
		Every:      req.Every,
		Recipients: req.Recipients,
		NextRunAt:  next,
		Active:     true,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("schedule_id", created.ID.String()).
		Str("resource_id", created.ResourceID.String()).
		Dur("every", created.Every.Duration()).
		Msg("report schedule created")
	return created, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, companyID uuid.UUID) ([]Schedule, error) {
	return s.store.List(ctx, companyID)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Schedule, error) {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Every != nil {
		existing.Every = *req.Every
	}
	if req.Recipients != nil {
		existing.Recipients = req.Recipients
	}
	if req.Active != nil {
		existing.Active = *req.Active
	}
	if err := validate(existing.Every, existing.Recipients); err != nil {
		return nil, err
	}
	return s.store.Update(ctx, existing)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("schedule_id", id.String()).Msg("report schedule deleted")
	return nil
}
