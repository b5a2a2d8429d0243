package reportschedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const scheduleColumns = `id, company_id, resource_id, every_seconds, recipients, next_run_at, last_run_at, active, created_at, updated_at`

func scanSchedule(row pgx.Row) (*Schedule, error) {
	var s Schedule
	var everySeconds int64
	err := row.Scan(
		&s.ID,
		&s.CompanyID,
		&s.ResourceID,
		&everySeconds,
		&s.Recipients,
		&s.NextRunAt,
		&s.LastRunAt,
		&s.Active,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}
	s.Every = Interval(time.Duration(everySeconds) * time.Second)
	return &s, nil
}

func collectSchedules(rows pgx.Rows) ([]Schedule, error) {
	defer rows.Close()
	var result []Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (p *PgStore) Create(ctx context.Context, s *Schedule) (*Schedule, error) {
	id := s.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	row := p.pool.QueryRow(ctx, `
		INSERT INTO report_schedules (id, company_id, resource_id, every_seconds, recipients, next_run_at, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING `+scheduleColumns,
		id, s.CompanyID, s.ResourceID, int64(s.Every.Duration()/time.Second), s.Recipients, s.NextRunAt, s.Active,
	)
	created, err := scanSchedule(row)
	if err != nil {
		return nil, fmt.Errorf("create report schedule: %w", err)
	}
	return created, nil
}

func (p *PgStore) Get(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM report_schedules WHERE id = $1`, id)
	return scanSchedule(row)
}

func (p *PgStore) List(ctx context.Context, companyID uuid.UUID) ([]Schedule, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM report_schedules
		WHERE company_id = $1
		ORDER BY created_at, id
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("list report schedules: %w", err)
	}
	return collectSchedules(rows)
}

func (p *PgStore) Update(ctx context.Context, s *Schedule) (*Schedule, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE report_schedules
		SET every_seconds = $2, recipients = $3, next_run_at = $4, active = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+scheduleColumns,
		s.ID, int64(s.Every.Duration()/time.Second), s.Recipients, s.NextRunAt, s.Active,
	)
	return scanSchedule(row)
}

func (p *PgStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM report_schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete report schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

// ClaimDue advances due rows in one statement. A concurrent claimer blocks
// on the row lock and then re-checks next_run_at, which is in the future by
// then, so each run is claimed once across instances.
func (p *PgStore) ClaimDue(ctx context.Context, now time.Time) ([]Schedule, error) {
	rows, err := p.pool.Query(ctx, `
		UPDATE report_schedules
		SET last_run_at = $1,
		    next_run_at = $1 + make_interval(secs => every_seconds),
		    updated_at = $1
		WHERE active AND next_run_at <= $1
		RETURNING `+scheduleColumns,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due report schedules: %w", err)
	}
	return collectSchedules(rows)
}

var _ Store = (*PgStore)(nil)
