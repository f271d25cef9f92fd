package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fidoo_extractor_api_requests_total",
			Help: "Total number of Fidoo API requests by endpoint and HTTP status",
		},
		[]string{"endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fidoo_extractor_api_request_duration_seconds",
			Help:    "Duration of Fidoo API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	APIRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fidoo_extractor_api_retries_total",
			Help: "Total number of retried Fidoo API requests by reason",
		},
		[]string{"reason"},
	)

	PagesFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fidoo_extractor_pages_fetched_total",
			Help: "Total number of pages fetched per object",
		},
		[]string{"object"},
	)

	RecordsFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fidoo_extractor_records_fetched_total",
			Help: "Total number of records fetched per object",
		},
		[]string{"object"},
	)

	ObjectRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fidoo_extractor_object_runs_total",
			Help: "Total number of object extractions by final status",
		},
		[]string{"object", "status"},
	)

	ObjectRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fidoo_extractor_object_run_duration_seconds",
			Help:    "Duration of one object's extraction",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"object"},
	)

	DependentFetchFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fidoo_extractor_dependent_fetch_failures_total",
			Help: "Total number of per-parent dependent fetch failures",
		},
		[]string{"dependent"},
	)

	DegradedKeyFragmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fidoo_extractor_degraded_key_fragments_total",
			Help: "Total number of fragments that fell back to content-hash keys",
		},
		[]string{"table"},
	)

	RowsWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fidoo_extractor_rows_written_total",
			Help: "Total number of rows handed to a sink per table",
		},
		[]string{"sink", "table"},
	)
)
