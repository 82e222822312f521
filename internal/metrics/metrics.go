// Package metrics exposes prometheus instruments for the assembly engine,
// the job worker and the HTTP API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Track assembly
	TracksCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracks_created_total",
			Help: "Tracks persisted by the track pipeline",
		},
		[]string{"mode"}, // bulk, daily, incremental
	)

	TracksDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracks_deleted_total",
			Help: "Tracks removed by track cleaners",
		},
		[]string{"cleaner"}, // replace, daily
	)

	TracksTrimmed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracks_trimmed_total",
			Help: "Cross-boundary tracks re-bounded by the daily cleaner",
		},
	)

	TrailingRunsDeferred = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "track_trailing_runs_deferred_total",
			Help: "Trailing runs written to the side buffer instead of finalized",
		},
	)

	InteriorRunsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "track_interior_runs_dropped_total",
			Help: "Interior candidate runs with fewer than two points",
		},
	)

	// Transportation mode classification
	ClassificationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transport_mode_classification_failures_total",
			Help: "Tracks left unknown because classification failed",
		},
	)

	// Visits
	VisitsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visits_upserted_total",
			Help: "Visits written by the visit persister",
		},
		[]string{"kind"}, // area, place
	)

	// Jobs
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Duration of recomputation jobs",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800},
		},
		[]string{"skill", "status"},
	)

	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobs_in_flight",
			Help: "Jobs currently executing",
		},
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// ObserveJob records a finished job.
func ObserveJob(skill, status string, took time.Duration) {
	JobDuration.WithLabelValues(skill, status).Observe(took.Seconds())
}

// ObserveRequest records one HTTP request.
func ObserveRequest(method, route string, status int, took time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(took.Seconds())
}
