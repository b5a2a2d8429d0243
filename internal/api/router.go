package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hackgods/practice-scheduling/internal/appointment"
	"github.com/hackgods/practice-scheduling/internal/booking"
	"github.com/hackgods/practice-scheduling/internal/calendar"
	"github.com/hackgods/practice-scheduling/internal/reportschedule"
	"github.com/hackgods/practice-scheduling/internal/slots"
	"github.com/hackgods/practice-scheduling/internal/stats"
	"github.com/hackgods/practice-scheduling/internal/waitlist"
)

type BookingService interface {
	CreateBooking(ctx context.Context, req booking.Request) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	CancelAppointment(ctx context.Context, id uuid.UUID, reason string) (*appointment.Appointment, error)
	MarkNoShow(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	ConfirmAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	CompleteAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
}

type AvailabilityFinder interface {
	Find(ctx context.Context, q slots.Query) ([]slots.TimeSlot, error)
	Duration(requested int) (int, error)
}

type StatsReporter interface {
	Report(ctx context.Context, resourceID uuid.UUID, days calendar.DateRange) (*stats.Report, error)
}

type WaitlistService interface {
	Create(ctx context.Context, req waitlist.CreateRequest) (*waitlist.Entry, error)
	ListPending(ctx context.Context, resourceID uuid.UUID) ([]waitlist.Entry, error)
}

type ReportScheduler interface {
	Create(ctx context.Context, req reportschedule.CreateRequest) (*reportschedule.Schedule, error)
	Get(ctx context.Context, id uuid.UUID) (*reportschedule.Schedule, error)
	List(ctx context.Context, companyID uuid.UUID) ([]reportschedule.Schedule, error)
	Update(ctx context.Context, id uuid.UUID, req reportschedule.UpdateRequest) (*reportschedule.Schedule, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type RouterConfig struct {
	Bookings     BookingService
	Availability AvailabilityFinder
	Stats        StatsReporter
	Waitlist     WaitlistService
	Reports      ReportScheduler
	Health       *HealthHandler
	Logger       *zerolog.Logger

	AllowedOrigins     []string
	RateLimitPerMinute int
	MaxRangeDays       int
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.MaxRangeDays <= 0 {
		cfg.MaxRangeDays = 62
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoverMiddleware(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if cfg.RateLimitPerMinute > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimitPerMinute, time.Minute))
		}
		r.Use(middleware.AllowContentType("application/json"))

		r.Get("/availability", availabilityHandler(cfg.Availability, cfg.MaxRangeDays))
		r.Get("/stats", statsHandler(cfg.Stats, cfg.MaxRangeDays))

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", createBookingHandler(cfg.Bookings))
			r.Get("/{id}", getBookingHandler(cfg.Bookings))
			r.Post("/{id}/cancel", cancelBookingHandler(cfg.Bookings))
			r.Post("/{id}/no-show", transitionHandler(cfg.Bookings.MarkNoShow))
			r.Post("/{id}/confirm", transitionHandler(cfg.Bookings.ConfirmAppointment))
			r.Post("/{id}/complete", transitionHandler(cfg.Bookings.CompleteAppointment))
		})

		r.Route("/waitlist", func(r chi.Router) {
			r.Post("/", createWaitlistHandler(cfg.Waitlist))
			r.Get("/", listWaitlistHandler(cfg.Waitlist))
		})

		r.Route("/reports/schedules", func(r chi.Router) {
			r.Post("/", createScheduleHandler(cfg.Reports))
			r.Get("/", listSchedulesHandler(cfg.Reports))
			r.Get("/{id}", getScheduleHandler(cfg.Reports))
			r.Patch("/{id}", updateScheduleHandler(cfg.Reports))
			r.Delete("/{id}", deleteScheduleHandler(cfg.Reports))
		})
	})

	return r
}
