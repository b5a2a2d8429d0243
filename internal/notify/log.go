package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LogDispatcher only logs. It is used when no broker is configured.
type LogDispatcher struct {
	logger *zerolog.Logger
}

func NewLogDispatcher(logger *zerolog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) ScheduleReminder(_ context.Context, r Reminder) error {
	d.logger.Info().
		Str("appointment_id", r.AppointmentID.String()).
		Str("patient_id", r.PatientID.String()).
		Time("send_at", r.SendAt).
		Msg("reminder scheduled")
	return nil
}

func (d *LogDispatcher) CancelReminder(_ context.Context, appointmentID uuid.UUID) error {
	d.logger.Info().Str("appointment_id", appointmentID.String()).Msg("reminder cancelled")
	return nil
}

func (d *LogDispatcher) Notify(_ context.Context, m Message) error {
	d.logger.Info().
		Str("kind", string(m.Kind)).
		Str("patient_id", m.PatientID.String()).
		Strs("recipients", m.Recipients).
		Str("subject", m.Subject).
		Msg("notification")
	return nil
}

var _ Dispatcher = (*LogDispatcher)(nil)
