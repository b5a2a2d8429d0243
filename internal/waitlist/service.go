package waitlist

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/practice-scheduling/internal/practice"
	"github.com/hackgods/practice-scheduling/internal/slots"
)

type CreateRequest struct {
	CompanyID        uuid.UUID  `json:"company_id"`
	PatientID        uuid.UUID  `json:"patient_id"`
	ResourceID       *uuid.UUID `json:"resource_id,omitempty"`
	AppointmentType  string     `json:"appointment_type"`
	PreferredWindows []Window   `json:"preferred_windows"`
	DurationMinutes  int        `json:"duration_minutes"`
	Priority         int        `json:"priority"`
}

type Service struct {
	repo            Repository
	directory       practice.Directory
	patients        practice.Patients
	defaultDuration int
	logger          *zerolog.Logger
}

func NewService(repo Repository, directory practice.Directory, patients practice.Patients, defaultDuration int, logger *zerolog.Logger) *Service {
	return &Service{
		repo:            repo,
		directory:       directory,
		patients:        patients,
		defaultDuration: defaultDuration,
		logger:          logger,
	}
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Entry, error) {
	if len(req.PreferredWindows) == 0 {
		return nil, fmt.Errorf("%w: at least one preferred window is required", ErrInvalidEntry)
	}
	for _, w := range req.PreferredWindows {
		if !w.End.After(w.Start) {
			return nil, fmt.Errorf("%w: window %s-%s is empty", ErrInvalidEntry, w.Start, w.End)
		}
	}
	duration, err := slots.NormalizeDuration(req.DurationMinutes, s.defaultDuration)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	patient, err := s.patients.GetPatient(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}

	companyID := req.CompanyID
	if req.ResourceID != nil {
		r, err := s.directory.GetResource(ctx, *req.ResourceID)
		if err != nil {
			return nil, err
		}
		if r.Kind != practice.KindProvider || (companyID != uuid.Nil && r.CompanyID != companyID) {
			return nil, practice.ErrResourceNotFound
		}
		companyID = r.CompanyID
	}
	if companyID == uuid.Nil {
		companyID = patient.CompanyID
	}
	if patient.CompanyID != companyID {
		return nil, practice.ErrPatientNotFound
	}

	entry, err := s.repo.Create(ctx, &Entry{
		CompanyID:        companyID,
		PatientID:        patient.ID,
		ResourceID:       req.ResourceID,
		AppointmentType:  req.AppointmentType,
		PreferredWindows: req.PreferredWindows,
		DurationMinutes:  duration,
		Priority:         req.Priority,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("entry_id", entry.ID.String()).
		Str("patient_id", entry.PatientID.String()).
		Int("priority", entry.Priority).
		Msg("waitlist entry created")
	return entry, nil
}

// ListPending returns the entries that would be considered for the
// resource, in processing order.
func (s *Service) ListPending(ctx context.Context, resourceID uuid.UUID) ([]Entry, error) {
	r, err := s.directory.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListPending(ctx, r.CompanyID, r.ID)
}
