package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/practice-scheduling/internal/api"
	"github.com/hackgods/practice-scheduling/internal/appointment"
	"github.com/hackgods/practice-scheduling/internal/config"
)

type Simulator struct {
	config  config.SimConfig
	pool    *DataPool
	client  *http.Client
	logger  *zerolog.Logger
	metrics Metrics

	from, to time.Time
}

func NewSimulator(cfg config.SimConfig, pool *DataPool, client *http.Client, logger *zerolog.Logger) *Simulator {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	return &Simulator{
		config: cfg,
		pool:   pool,
		client: client,
		logger: logger,
		from:   today.AddDate(0, 0, 1),
		to:     today.AddDate(0, 0, cfg.Days),
	}
}

// Run fills the slot pool once and then lets the workers loose until the
// configured duration elapses.
func (s *Simulator) Run(ctx context.Context) error {
	if !s.refreshSlots(ctx) {
		return fmt.Errorf("initial availability request failed")
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Duration)
	defer cancel()

	s.logger.Info().
		Dur("duration", s.config.Duration).
		Int("workers", s.config.Workers).
		Str("company_id", s.pool.CompanyID.String()).
		Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()

	s.logger.Info().Msg("simulation complete")
	return nil
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		default:
			switch rng.Intn(3) {
			case 0:
				s.refreshSlots(ctx)
			case 1:
				s.doReadByID(ctx, rng)
			case 2:
				s.doStats(ctx, rng)
			}
		}
	}
}

// call sends one request and reports the status code, or 0 when the request
// itself failed. A non-nil out is filled from a 2xx JSON body.
func (s *Simulator) call(ctx context.Context, method, path string, body any, out any) (int, time.Duration) {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, 0
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", "sim-"+uuid.NewString())

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Debug().Err(err).Str("path", path).Msg("request failed")
		}
		return 0, latency
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			s.logger.Debug().Err(err).Str("path", path).Msg("decode response")
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, latency
}

func (s *Simulator) refreshSlots(ctx context.Context) bool {
	q := url.Values{}
	q.Set("companyId", s.pool.CompanyID.String())
	q.Set("start", s.from.Format(time.DateOnly))
	q.Set("end", s.to.Format(time.DateOnly))
	q.Set("available", "true")

	var resp api.AvailabilityResponse
	status, latency := s.call(ctx, http.MethodGet, "/availability?"+q.Encode(), nil, &resp)
	ok := status == http.StatusOK
	s.metrics.Availability.Record(latency, ok, false)
	if ok {
		s.pool.SetSlots(resp.Slots, s.config.HotSlots)
	}
	return ok
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	slot, ok := s.pool.RandomSlot(rng)
	if !ok {
		return
	}

	req := api.CreateBookingRequest{
		CompanyID:       s.pool.CompanyID.String(),
		ResourceID:      slot.ResourceID.String(),
		PatientID:       s.pool.RandomPatient(rng).String(),
		AppointmentType: "consultation",
		Start:           slot.Start,
		DurationMinutes: int(slot.End.Sub(slot.Start).Minutes()),
		SelfService:     rng.Intn(4) == 0,
	}

	var created appointment.Appointment
	status, latency := s.call(ctx, http.MethodPost, "/bookings", req, &created)
	success := status == http.StatusCreated
	s.metrics.Booking.Record(latency, success, status == http.StatusConflict)
	if success && created.ID != uuid.Nil {
		s.pool.AddAppointment(created.ID)
	}
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	status, latency := s.call(ctx, http.MethodPost, "/bookings/"+id.String()+"/cancel",
		api.CancelBookingRequest{Reason: "simulated cancellation"}, nil)
	s.metrics.Cancel.Record(latency, status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	status, latency := s.call(ctx, http.MethodGet, "/bookings/"+id.String(), nil, nil)
	s.metrics.ReadByID.Record(latency, status == http.StatusOK, false)
}

func (s *Simulator) doStats(ctx context.Context, rng *rand.Rand) {
	q := url.Values{}
	q.Set("resourceId", s.pool.RandomProvider(rng).String())
	q.Set("start", s.from.Format(time.DateOnly))
	q.Set("end", s.to.Format(time.DateOnly))

	status, latency := s.call(ctx, http.MethodGet, "/stats?"+q.Encode(), nil, nil)
	s.metrics.Stats.Record(latency, status == http.StatusOK, false)
}

func (s *Simulator) PrintReport(overlaps int) {
	fmt.Println("\n" + rule())
	fmt.Println("SIMULATION REPORT")
	fmt.Println(rule())
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Hot slots: %d\n", s.config.HotSlots)
	fmt.Println()

	printOperationReport("Availability", &s.metrics.Availability)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("Stats", &s.metrics.Stats)

	fmt.Printf("Overlapping occupying appointments: %d\n", overlaps)
}
