// Package metrics exposes Prometheus collectors for ingestion, search and
// the lookup API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "permitcheck"

var (
	// Ingestion metrics
	RowsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_rows_total",
			Help:      "Source rows processed, by outcome",
		},
		[]string{"source", "outcome"},
	)

	ReconcileResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_total",
			Help:      "Entity reconciliations, by entity and result",
		},
		[]string{"entity", "result"},
	)

	SourceRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_run_duration_seconds",
			Help:      "Wall time of one source refresh",
			Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
		},
		[]string{"source", "status"},
	)

	SourceLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful refresh",
		},
		[]string{"source"},
	)

	// Fetch metrics
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of upstream HTTP requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"host", "status"},
	)

	FetchRateLimit = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fetch_rate_limit",
			Help:      "Current adaptive request rate per host, in requests per second",
		},
		[]string{"host"},
	)

	// Search metrics
	SearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Contractor searches, by candidate tier",
		},
		[]string{"tier"},
	)

	// Advice metrics
	AdviceRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advice_requests_total",
			Help:      "Contractor advice requests, by outcome",
		},
		[]string{"outcome"},
	)

	AdviceCostUSD = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advice_cost_usd_total",
			Help:      "Estimated spend on advice completions",
		},
	)

	// Request metrics
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordRow counts one processed source row.
func RecordRow(source, outcome string) {
	RowsProcessed.WithLabelValues(source, outcome).Inc()
}

// RecordReconcile counts one reconciliation result.
func RecordReconcile(entity string, created bool) {
	result := "updated"
	if created {
		result = "created"
	}
	ReconcileResults.WithLabelValues(entity, result).Inc()
}

// TrackSourceRun returns a func that observes a source run's duration.
func TrackSourceRun(source string) func(status string) {
	start := time.Now()
	return func(status string) {
		SourceRunDuration.WithLabelValues(source, status).Observe(time.Since(start).Seconds())
		if status == "success" {
			SourceLastSuccess.WithLabelValues(source).SetToCurrentTime()
		}
	}
}
