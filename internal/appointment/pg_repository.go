package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLSTATE raised by the appointments_*_no_overlap exclusion constraints.
const exclusionViolation = "23P01"

const appointmentColumns = `id, company_id, resource_id, patient_id, room_id, appointment_type,
	start_time, duration_minutes, status, self_service, notes, cancellation_reason,
	created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.CompanyID,
		&a.ResourceID,
		&a.PatientID,
		&a.RoomID,
		&a.AppointmentType,
		&a.Start,
		&a.DurationMinutes,
		&a.Status,
		&a.SelfService,
		&a.Notes,
		&a.CancellationReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func occupyingStatusStrings() []string {
	out := make([]string, len(OccupyingStatuses))
	for i, s := range OccupyingStatuses {
		out[i] = string(s)
	}
	return out
}

// Interface methods

func (r *PgRepository) Insert(ctx context.Context, a *Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, company_id, resource_id, patient_id, room_id, appointment_type,
			start_time, end_time, duration_minutes, status, self_service, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.CompanyID, a.ResourceID, a.PatientID, a.RoomID, a.AppointmentType,
		a.Start, a.End(), a.DurationMinutes, a.Status, a.SelfService, a.Notes)

	created, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == exclusionViolation {
			return nil, fmt.Errorf("%w: %s", ErrOverlap, pgErr.ConstraintName)
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return created, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListOccupying(ctx context.Context, resourceID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE (resource_id = $1 OR room_id = $1)
		  AND status = ANY($2)
		  AND start_time < $4
		  AND end_time > $3
		ORDER BY start_time
	`, resourceID, occupyingStatusStrings(), from, to)
	if err != nil {
		return nil, fmt.Errorf("list occupying appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) List(ctx context.Context, f Filter) ([]Appointment, error) {
	var statuses []string
	for _, s := range f.Statuses {
		statuses = append(statuses, string(s))
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ($1::uuid IS NULL OR resource_id = $1 OR room_id = $1)
		  AND ($2::timestamptz IS NULL OR start_time >= $2)
		  AND ($3::timestamptz IS NULL OR start_time < $3)
		  AND ($4::text[] IS NULL OR status = ANY($4))
		ORDER BY start_time, id
	`, f.ResourceID, nullableTime(f.From), nullableTime(f.To), statuses)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, fields StatusFields) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    cancellation_reason = COALESCE($4, cancellation_reason),
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns,
		id, to, from, fields.CancellationReason)

	updated, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		// Distinguish a missing row from a lost compare-and-set.
		if _, getErr := r.GetByID(ctx, id); getErr == nil {
			return nil, ErrStatusChanged
		}
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	return updated, nil
}

func (r *PgRepository) FindStalePending(ctx context.Context, createdBefore time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'pending'
		  AND self_service
		  AND created_at < $1
		ORDER BY created_at
	`, createdBefore)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

// CountOverlaps audits a company for pairs of occupying appointments that
// share a provider or room over intersecting intervals. It should always be
// zero; the simulator reports it after a load run.
func (r *PgRepository) CountOverlaps(ctx context.Context, companyID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.id < b.id
		 AND (a.resource_id = b.resource_id OR a.room_id = b.room_id)
		 AND a.start_time < b.end_time
		 AND b.start_time < a.end_time
		WHERE a.company_id = $1
		  AND a.status = ANY($2)
		  AND b.status = ANY($2)
	`, companyID, occupyingStatusStrings()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count overlaps: %w", err)
	}
	return n, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
