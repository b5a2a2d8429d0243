package practice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/practice-scheduling/internal/calendar"
)

// PgDirectory reads resources and patients from Postgres. Weekly calendars
// are stored as JSONB in the shape of calendar.Week.
type PgDirectory struct {
	pool     *pgxpool.Pool
	fallback *time.Location
}

func NewPgDirectory(pool *pgxpool.Pool, fallback *time.Location) *PgDirectory {
	return &PgDirectory{pool: pool, fallback: fallback}
}

const resourceColumns = `id, company_id, name, kind, COALESCE(role, ''), COALESCE(timezone, ''), weekly_calendar, active`

func (d *PgDirectory) scanResource(row pgx.Row) (*Resource, error) {
	var r Resource
	var week []byte

	err := row.Scan(&r.ID, &r.CompanyID, &r.Name, &r.Kind, &r.Role, &r.Timezone, &week, &r.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrResourceNotFound
		}
		return nil, err
	}

	if len(week) > 0 {
		wk, err := weekFromJSON(week)
		if err != nil {
			return nil, fmt.Errorf("decode weekly calendar for %s: %w", r.ID, err)
		}
		r.Week = wk
	}

	out := r.WithLocation(resolveLocation(r.Timezone, d.fallback))
	return &out, nil
}

func (d *PgDirectory) GetResource(ctx context.Context, id uuid.UUID) (*Resource, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT `+resourceColumns+`
		FROM resources
		WHERE id = $1 AND active
	`, id)
	return d.scanResource(row)
}

func (d *PgDirectory) ListProviders(ctx context.Context, companyID uuid.UUID, role string) ([]Resource, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT `+resourceColumns+`
		FROM resources
		WHERE company_id = $1
		  AND kind = 'provider'
		  AND active
		  AND ($2 = '' OR role = $2)
		ORDER BY id
	`, companyID, role)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	defer rows.Close()

	var result []Resource
	for rows.Next() {
		r, err := d.scanResource(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpsertResource is used by the seed command.
func (d *PgDirectory) UpsertResource(ctx context.Context, r Resource) error {
	if err := r.Week.Validate(); err != nil {
		return err
	}
	week, err := json.Marshal(r.Week)
	if err != nil {
		return err
	}

	_, err = d.pool.Exec(ctx, `
		INSERT INTO resources (id, company_id, name, kind, role, timezone, weekly_calendar, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, now(), now())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    role = EXCLUDED.role,
		    timezone = EXCLUDED.timezone,
		    weekly_calendar = EXCLUDED.weekly_calendar,
		    active = EXCLUDED.active,
		    updated_at = now()
	`, r.ID, r.CompanyID, r.Name, r.Kind, r.Role, r.Timezone, week, r.Active)
	if err != nil {
		return fmt.Errorf("upsert resource: %w", err)
	}
	return nil
}

func (d *PgDirectory) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := d.pool.QueryRow(ctx, `
		SELECT id, company_id, name, email, phone
		FROM patients
		WHERE id = $1
	`, id).Scan(&p.ID, &p.CompanyID, &p.Name, &p.Email, &p.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

// InsertPatients bulk loads patients with COPY. Existing ids fail the whole
// batch.
func (d *PgDirectory) InsertPatients(ctx context.Context, patients []Patient) (int64, error) {
	n, err := d.pool.CopyFrom(ctx,
		pgx.Identifier{"patients"},
		[]string{"id", "company_id", "name", "email", "phone"},
		pgx.CopyFromSlice(len(patients), func(i int) ([]any, error) {
			p := patients[i]
			return []any{p.ID, p.CompanyID, p.Name, p.Email, p.Phone}, nil
		}),
	)
	if err != nil {
		return n, fmt.Errorf("copy patients: %w", err)
	}
	return n, nil
}

var _ Directory = (*PgDirectory)(nil)
var _ Patients = (*PgDirectory)(nil)

func weekFromJSON(data []byte) (calendar.Week, error) {
	var wk calendar.Week
	if err := json.Unmarshal(data, &wk); err != nil {
		return calendar.Week{}, err
	}
	return wk, wk.Validate()
}
