package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scheduling",
			Name:      "booking_created_total",
			Help:      "Count of appointments created by initial status.",
		},
		[]string{"status"},
	)

	bookingRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scheduling",
			Name:      "booking_rejected_total",
			Help:      "Count of booking attempts rejected by reason.",
		},
		[]string{"reason"},
	)

	statusTransition = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scheduling",
			Name:      "appointment_transition_total",
			Help:      "Count of appointment status transitions by target status.",
		},
		[]string{"status"},
	)

	waitlistNotified = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scheduling",
			Name:      "waitlist_notified_total",
			Help:      "Count of waitlist entries claimed and notified.",
		},
	)

	notifyFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scheduling",
			Name:      "notification_failed_total",
			Help:      "Count of notification side effects that failed by kind.",
		},
		[]string{"kind"},
	)

	slotGeneration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "scheduling",
			Name:      "slot_generation_seconds",
			Help:      "Time spent loading bookings and generating slots.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scheduling",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern and status code.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingCreated,
			bookingRejected,
			statusTransition,
			waitlistNotified,
			notifyFailed,
			slotGeneration,
			httpDuration,
		)
	})
}

func IncBookingCreated(status string) {
	bookingCreated.WithLabelValues(status).Inc()
}

func IncBookingRejected(reason string) {
	bookingRejected.WithLabelValues(reason).Inc()
}

func IncTransition(status string) {
	statusTransition.WithLabelValues(status).Inc()
}

func IncWaitlistNotified() {
	waitlistNotified.Inc()
}

func IncNotifyFailed(kind string) {
	notifyFailed.WithLabelValues(kind).Inc()
}

func ObserveSlotGeneration(since time.Time) {
	slotGeneration.Observe(time.Since(since).Seconds())
}

func ObserveHTTP(route, method, status string, d time.Duration) {
	httpDuration.WithLabelValues(route, method, status).Observe(d.Seconds())
}
