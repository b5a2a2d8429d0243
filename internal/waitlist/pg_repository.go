package waitlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const entryColumns = `id, company_id, patient_id, resource_id, appointment_type, preferred_windows,
	duration_minutes, priority, created_at, notified, notified_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var windows []byte
	err := row.Scan(
		&e.ID,
		&e.CompanyID,
		&e.PatientID,
		&e.ResourceID,
		&e.AppointmentType,
		&windows,
		&e.DurationMinutes,
		&e.Priority,
		&e.CreatedAt,
		&e.Notified,
		&e.NotifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(windows, &e.PreferredWindows); err != nil {
		return nil, fmt.Errorf("decode preferred windows for %s: %w", e.ID, err)
	}
	return &e, nil
}

func (r *PgRepository) Create(ctx context.Context, e *Entry) (*Entry, error) {
	windows, err := json.Marshal(e.PreferredWindows)
	if err != nil {
		return nil, err
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO waitlist_entries (
			id, company_id, patient_id, resource_id, appointment_type, preferred_windows,
			duration_minutes, priority, created_at, notified
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), false)
		RETURNING `+entryColumns,
		e.ID, e.CompanyID, e.PatientID, e.ResourceID, e.AppointmentType, windows,
		e.DurationMinutes, e.Priority,
	)
	return scanEntry(row)
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM waitlist_entries WHERE id = $1`, id)
	return scanEntry(row)
}

func (r *PgRepository) ListPending(ctx context.Context, companyID, resourceID uuid.UUID) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE company_id = $1
		  AND NOT notified
		  AND (resource_id = $2 OR resource_id IS NULL)
		ORDER BY priority DESC, created_at ASC, id ASC
	`, companyID, resourceID)
	if err != nil {
		return nil, fmt.Errorf("list pending waitlist: %w", err)
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Claim relies on the row lock taken by UPDATE: of two concurrent claims only
// one sees notified = false.
func (r *PgRepository) Claim(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE waitlist_entries
		SET notified = true, notified_at = $2
		WHERE id = $1 AND NOT notified
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("claim waitlist entry: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) PendingResourceIDs(ctx context.Context) ([]uuid.UUID, error) {
	return r.distinctIDs(ctx, `
		SELECT DISTINCT resource_id FROM waitlist_entries
		WHERE NOT notified AND resource_id IS NOT NULL
		ORDER BY resource_id
	`)
}

func (r *PgRepository) PendingCompanyIDs(ctx context.Context) ([]uuid.UUID, error) {
	return r.distinctIDs(ctx, `
		SELECT DISTINCT company_id FROM waitlist_entries
		WHERE NOT notified AND resource_id IS NULL
		ORDER BY company_id
	`)
}

func (r *PgRepository) distinctIDs(ctx context.Context, query string) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

var _ Repository = (*PgRepository)(nil)
