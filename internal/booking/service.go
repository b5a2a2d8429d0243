// Package booking coordinates appointment creation and status transitions.
package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/practice-scheduling/internal/appointment"
	"github.com/hackgods/practice-scheduling/internal/calendar"
	"github.com/hackgods/practice-scheduling/internal/metrics"
	"github.com/hackgods/practice-scheduling/internal/notify"
	"github.com/hackgods/practice-scheduling/internal/practice"
	redisclient "github.com/hackgods/practice-scheduling/internal/redis"
	"github.com/hackgods/practice-scheduling/internal/slots"
	"github.com/hackgods/practice-scheduling/internal/waitlist"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentNoShow    = "APPOINTMENT_NO_SHOW"
	EventAppointmentExpired   = "APPOINTMENT_EXPIRED"
)

const ReasonExpired = "expired"

var (
	ErrSlotUnavailable = errors.New("requested slot is not available")
	ErrInvalidInput    = errors.New("invalid booking request")
	ErrResourceBusy    = errors.New("resource is currently being booked, please retry")
)

// SnapshotLoader reads the bookings that hold the given resources.
type SnapshotLoader interface {
	Load(ctx context.Context, resources []practice.Resource, days calendar.DateRange) ([]slots.Snapshot, error)
}

type WaitlistProcessor interface {
	ProcessWaitlist(ctx context.Context, resourceID uuid.UUID) ([]waitlist.Offer, error)
}

type Config struct {
	DefaultDurationMinutes int
	ReminderLead           time.Duration
	PendingTTL             time.Duration
}

type Request struct {
	CompanyID       uuid.UUID  `json:"company_id"`
	ResourceID      uuid.UUID  `json:"resource_id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	AppointmentType string     `json:"appointment_type"`
	Start           time.Time  `json:"start"`
	DurationMinutes int        `json:"duration_minutes"`
	RoomID          *uuid.UUID `json:"room_id,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	SelfService     bool       `json:"self_service"`
}

type Service struct {
	repo       appointment.Repository
	directory  practice.Directory
	patients   practice.Patients
	loader     SnapshotLoader
	locker     redisclient.Locker
	waitlist   WaitlistProcessor
	dispatcher notify.Dispatcher
	cfg        Config
	logger     *zerolog.Logger
	now        func() time.Time

	pending sync.WaitGroup
}

func NewService(
	repo appointment.Repository,
	directory practice.Directory,
	patients practice.Patients,
	loader SnapshotLoader,
	locker redisclient.Locker,
	wl WaitlistProcessor,
	dispatcher notify.Dispatcher,
	cfg Config,
	logger *zerolog.Logger,
) *Service {
	return &Service{
		repo:       repo,
		directory:  directory,
		patients:   patients,
		loader:     loader,
		locker:     locker,
		waitlist:   wl,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Wait blocks until background side effects started so far have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

// CreateBooking re-validates the requested interval against a fresh snapshot
// and persists it. The check and the insert run under per-resource locks, and
// the store rejects overlapping inserts on its own, so two requests for the
// same interval can never both succeed.
func (s *Service) CreateBooking(ctx context.Context, req Request) (*appointment.Appointment, error) {
	duration, err := s.validate(req)
	if err != nil {
		metrics.IncBookingRejected("invalid_input")
		return nil, err
	}

	resource, err := s.directory.GetResource(ctx, req.ResourceID)
	if err != nil {
		return nil, err
	}
	if resource.Kind != practice.KindProvider {
		return nil, practice.ErrResourceNotFound
	}
	if req.CompanyID != uuid.Nil && resource.CompanyID != req.CompanyID {
		return nil, practice.ErrResourceNotFound
	}

	patient, err := s.patients.GetPatient(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}
	if patient.CompanyID != resource.CompanyID {
		return nil, practice.ErrPatientNotFound
	}

	var room *practice.Resource
	if req.RoomID != nil {
		room, err = s.directory.GetResource(ctx, *req.RoomID)
		if err != nil {
			return nil, err
		}
		if room.Kind != practice.KindRoom || room.CompanyID != resource.CompanyID {
			return nil, practice.ErrResourceNotFound
		}
	}

	start := req.Start
	end := start.Add(time.Duration(duration) * time.Minute)
	if _, _, _, err := calendar.Span(resource.Location(), start, end); err != nil {
		metrics.IncBookingRejected("invalid_input")
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	status := appointment.StatusScheduled
	if req.SelfService {
		status = appointment.StatusPending
	}

	lockIDs := []uuid.UUID{resource.ID}
	if room != nil {
		lockIDs = append(lockIDs, room.ID)
	}

	var created *appointment.Appointment
	err = s.locker.WithResourceLocks(ctx, lockIDs, func(lockCtx context.Context) error {
		if err := s.checkAvailable(lockCtx, *resource, room, start, end, duration); err != nil {
			return err
		}

		appt, err := s.repo.Insert(lockCtx, &appointment.Appointment{
			CompanyID:       resource.CompanyID,
			ResourceID:      resource.ID,
			PatientID:       patient.ID,
			RoomID:          req.RoomID,
			AppointmentType: req.AppointmentType,
			Start:           start,
			DurationMinutes: duration,
			Status:          status,
			SelfService:     req.SelfService,
			Notes:           req.Notes,
		})
		if err != nil {
			if errors.Is(err, appointment.ErrOverlap) {
				return ErrSlotUnavailable
			}
			return fmt.Errorf("insert appointment: %w", err)
		}
		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentCreated, map[string]any{
			"resource_id": appt.ResourceID.String(),
			"patient_id":  appt.PatientID.String(),
			"start":       appt.Start,
			"duration":    appt.DurationMinutes,
			"status":      appt.Status,
		})
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, redisclient.ErrLockNotAcquired):
			metrics.IncBookingRejected("resource_busy")
			return nil, ErrResourceBusy
		case errors.Is(err, ErrSlotUnavailable):
			metrics.IncBookingRejected("slot_unavailable")
			return nil, err
		}
		return nil, err
	}

	metrics.IncBookingCreated(string(created.Status))
	s.logger.Info().
		Str("appointment_id", created.ID.String()).
		Str("resource_id", created.ResourceID.String()).
		Time("start", created.Start).
		Str("status", string(created.Status)).
		Msg("appointment created")

	s.afterCreate(ctx, *created)
	return created, nil
}

func (s *Service) validate(req Request) (int, error) {
	if req.ResourceID == uuid.Nil {
		return 0, fmt.Errorf("%w: resource_id is required", ErrInvalidInput)
	}
	if req.PatientID == uuid.Nil {
		return 0, fmt.Errorf("%w: patient_id is required", ErrInvalidInput)
	}
	if req.Start.IsZero() {
		return 0, fmt.Errorf("%w: start is required", ErrInvalidInput)
	}
	if req.RoomID != nil && *req.RoomID == req.ResourceID {
		return 0, fmt.Errorf("%w: room must differ from resource", ErrInvalidInput)
	}
	duration, err := slots.NormalizeDuration(req.DurationMinutes, s.cfg.DefaultDurationMinutes)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return duration, nil
}

// checkAvailable regenerates the provider's slots for the day of start and
// requires the exact interval to be present and free. A room is checked
// against its working hours and bookings rather than its slot grid.
func (s *Service) checkAvailable(ctx context.Context, resource practice.Resource, room *practice.Resource, start, end time.Time, duration int) error {
	days := calendar.SingleDay(start.In(resource.Location()))
	snapshots, err := s.loader.Load(ctx, []practice.Resource{resource}, days)
	if err != nil {
		return fmt.Errorf("load availability: %w", err)
	}
	seq, err := slots.Generate(snapshots, days, duration)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !slots.Contains(seq, resource.ID, start, end) {
		return ErrSlotUnavailable
	}

	if room == nil {
		return nil
	}
	if !room.Week.IsWorkingSpan(room.Location(), start, end) {
		return ErrSlotUnavailable
	}
	roomDays := calendar.SingleDay(start.In(room.Location()))
	roomSnap, err := s.loader.Load(ctx, []practice.Resource{*room}, roomDays)
	if err != nil {
		return fmt.Errorf("load room availability: %w", err)
	}
	if appointment.HasConflict(start, end, roomSnap[0].Bookings) {
		return ErrSlotUnavailable
	}
	return nil
}

// afterCreate runs the booking's side effects in the background. They use a
// context detached from the request so they survive its completion.
func (s *Service) afterCreate(ctx context.Context, appt appointment.Appointment) {
	bg := context.WithoutCancel(ctx)
	reminder := notify.Reminder{
		AppointmentID: appt.ID,
		PatientID:     appt.PatientID,
		ResourceID:    appt.ResourceID,
		StartsAt:      appt.Start,
		SendAt:        notify.ReminderTime(appt.Start, s.now(), s.cfg.ReminderLead),
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		err := s.dispatcher.ScheduleReminder(bg, reminder)
		if err != nil {
			metrics.IncNotifyFailed(string(notify.KindReminder))
			s.logger.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to schedule reminder")
		}

		s.reprocessWaitlist(bg, appt.ResourceID)
	}()
}

func (s *Service) reprocessWaitlist(ctx context.Context, resourceID uuid.UUID) {
	if s.waitlist == nil {
		return
	}
	offers, err := s.waitlist.ProcessWaitlist(ctx, resourceID)
	if err != nil {
		s.logger.Error().Err(err).Str("resource_id", resourceID.String()).Msg("waitlist processing failed")
		return
	}
	if len(offers) > 0 {
		s.logger.Info().Str("resource_id", resourceID.String()).Int("offers", len(offers)).Msg("waitlist processed")
	}
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

// CancelAppointment cancels a non-terminal appointment and offers the freed
// interval to the waitlist before returning.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID, reason string) (*appointment.Appointment, error) {
	updated, err := s.transition(ctx, id, appointment.StatusCancelled, appointment.StatusFields{CancellationReason: &reason}, nil)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCancelled, map[string]any{"reason": reason})
	s.afterCancel(ctx, *updated)
	return updated, nil
}

func (s *Service) afterCancel(ctx context.Context, appt appointment.Appointment) {
	bg := context.WithoutCancel(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.dispatcher.CancelReminder(bg, appt.ID); err != nil {
			metrics.IncNotifyFailed(string(notify.KindReminderCancel))
			s.logger.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to cancel reminder")
		}
	}()

	// Waitlist entries only target providers.
	s.reprocessWaitlist(ctx, appt.ResourceID)
}

// MarkNoShow records that the patient did not attend. It is only allowed once
// the appointment has started.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	updated, err := s.transition(ctx, id, appointment.StatusNoShow, appointment.StatusFields{}, func(a *appointment.Appointment) error {
		if s.now().Before(a.Start) {
			return fmt.Errorf("%w: appointment has not started yet", appointment.ErrInvalidTransition)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, updated.ID, EventAppointmentNoShow, map[string]any{})
	return updated, nil
}

func (s *Service) ConfirmAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	updated, err := s.transition(ctx, id, appointment.StatusConfirmed, appointment.StatusFields{}, nil)
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, updated.ID, EventAppointmentConfirmed, map[string]any{})
	return updated, nil
}

func (s *Service) CompleteAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	updated, err := s.transition(ctx, id, appointment.StatusCompleted, appointment.StatusFields{}, nil)
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, updated.ID, EventAppointmentCompleted, map[string]any{})
	return updated, nil
}

// ExpireStalePending is intended to be called by the worker periodically. It
// cancels self-service bookings that stayed pending for longer than the
// configured TTL.
func (s *Service) ExpireStalePending(ctx context.Context) (int, error) {
	stale, err := s.repo.FindStalePending(ctx, s.now().Add(-s.cfg.PendingTTL))
	if err != nil {
		return 0, fmt.Errorf("find stale pending appointments: %w", err)
	}

	reason := ReasonExpired
	expired := 0
	for _, appt := range stale {
		updated, err := s.repo.UpdateStatus(ctx, appt.ID, appointment.StatusPending, appointment.StatusCancelled,
			appointment.StatusFields{CancellationReason: &reason})
		if err != nil {
			if !errors.Is(err, appointment.ErrStatusChanged) {
				s.logger.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to expire appointment")
			}
			continue
		}
		expired++
		metrics.IncTransition(string(appointment.StatusCancelled))
		s.logEvent(ctx, updated.ID, EventAppointmentExpired, map[string]any{"reason": "worker"})
		s.afterCancel(ctx, *updated)
	}
	return expired, nil
}

// transition applies a state-machine move as a compare-and-set, re-reading
// the appointment if its status changed concurrently.
func (s *Service) transition(
	ctx context.Context,
	id uuid.UUID,
	to appointment.Status,
	fields appointment.StatusFields,
	guard func(*appointment.Appointment) error,
) (*appointment.Appointment, error) {
	const attempts = 3
	for i := 0; i < attempts; i++ {
		appt, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if !appt.Status.CanTransitionTo(to) {
			return nil, fmt.Errorf("%w: %s -> %s", appointment.ErrInvalidTransition, appt.Status, to)
		}
		if guard != nil {
			if err := guard(appt); err != nil {
				return nil, err
			}
		}

		updated, err := s.repo.UpdateStatus(ctx, id, appt.Status, to, fields)
		if errors.Is(err, appointment.ErrStatusChanged) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("update appointment status: %w", err)
		}
		metrics.IncTransition(string(to))
		s.logger.Info().
			Str("appointment_id", id.String()).
			Str("from", string(appt.Status)).
			Str("to", string(to)).
			Msg("appointment status changed")
		return updated, nil
	}
	return nil, fmt.Errorf("%w: status kept changing", appointment.ErrInvalidTransition)
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID
	ev := appointment.EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Warn().Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}
