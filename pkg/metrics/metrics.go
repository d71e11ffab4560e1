package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "broker_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Scheduler metrics
	PublishLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "broker_publish_latency_seconds",
			Help:    "Time taken to CAS-publish a due event in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	EventsPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_events_published_total",
			Help: "Total number of events published by the scheduler",
		},
	)

	EventsPublishFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_events_publish_failed_total",
			Help: "Total number of events that failed to CAS-publish",
		},
	)

	EventsInserted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_events_inserted_total",
			Help: "Total number of events accepted via ingress",
		},
	)

	EventsCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_events_cancelled_total",
			Help: "Total number of events cancelled",
		},
	)

	// Bus / subscriber metrics
	SubscribersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "broker_subscribers_active",
			Help: "Number of currently attached SSE subscriber sessions",
		},
	)

	// Identity metrics
	UsersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_users_created_total",
			Help: "Total number of users created",
		},
	)

	LoginFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_login_failures_total",
			Help: "Total number of failed login attempts",
		},
	)
)

func init() {
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(PublishLatency)
	prometheus.MustRegister(EventsPublished)
	prometheus.MustRegister(EventsPublishFailed)
	prometheus.MustRegister(EventsInserted)
	prometheus.MustRegister(EventsCancelled)
	prometheus.MustRegister(SubscribersActive)
	prometheus.MustRegister(UsersTotal)
	prometheus.MustRegister(LoginFailuresTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
