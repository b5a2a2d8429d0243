package main

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/practice-scheduling/internal/config"
	"github.com/hackgods/practice-scheduling/internal/slots"
)

// DataPool holds the ids the workers draw from. Slots is refreshed from the
// availability endpoint while the run is in progress.
type DataPool struct {
	CompanyID uuid.UUID
	Providers []uuid.UUID
	Patients  []uuid.UUID

	mu           sync.RWMutex
	slots        []slots.TimeSlot
	appointments []uuid.UUID
}

func (dp *DataPool) SetSlots(open []slots.TimeSlot, limit int) {
	if len(open) > limit {
		open = open[:limit]
	}
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.slots = open
}

func (dp *DataPool) RandomSlot(rng *rand.Rand) (slots.TimeSlot, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.slots) == 0 {
		return slots.TimeSlot{}, false
	}
	return dp.slots[rng.Intn(len(dp.slots))], true
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

func (dp *DataPool) RandomPatient(rng *rand.Rand) uuid.UUID {
	return dp.Patients[rng.Intn(len(dp.Patients))]
}

func (dp *DataPool) RandomProvider(rng *rand.Rand) uuid.UUID {
	return dp.Providers[rng.Intn(len(dp.Providers))]
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg config.SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	if cfg.CompanyID != "" {
		id, err := uuid.Parse(cfg.CompanyID)
		if err != nil {
			return nil, fmt.Errorf("SIM_COMPANY_ID: %w", err)
		}
		dataPool.CompanyID = id
	} else {
		err := pool.QueryRow(ctx, `
			SELECT company_id FROM resources
			WHERE kind = 'provider' AND active
			GROUP BY company_id
			ORDER BY count(*) DESC
			LIMIT 1
		`).Scan(&dataPool.CompanyID)
		if err != nil {
			return nil, fmt.Errorf("pick company: %w", err)
		}
	}

	rows, err := pool.Query(ctx, `
		SELECT id FROM resources WHERE company_id = $1 AND kind = 'provider' AND active
	`, dataPool.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Providers = append(dataPool.Providers, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}

	rows, err = pool.Query(ctx, `
		SELECT id FROM patients WHERE company_id = $1 LIMIT $2
	`, dataPool.CompanyID, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}

	if len(dataPool.Providers) == 0 {
		return nil, fmt.Errorf("no providers for company %s", dataPool.CompanyID)
	}
	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients for company %s", dataPool.CompanyID)
	}
	return dataPool, nil
}
