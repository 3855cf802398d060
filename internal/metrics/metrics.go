package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric this service exports.
const Namespace = "dolphinpod"

var (
	// UsageRecords counts submitted usage sessions by outcome
	// ("accepted" or "duplicate").
	UsageRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "usage_records_total",
			Help:      "Usage sessions processed by the ingestion classifier.",
		},
		[]string{"outcome"},
	)

	NightModeRecords = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "night_mode_records_total",
			Help:      "Accepted usage sessions that started inside the owner's night window.",
		},
	)

	IngestBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ingest_batches_total",
			Help:      "Usage batches by result status (ok, not_found, invalid, error).",
		},
		[]string{"status"},
	)

	LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "llm_requests_total",
			Help:      "Calls to the LLM provider by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Latency of LLM provider calls.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"kind"},
	)

	ReportCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "report_cache_total",
			Help:      "Daily report cache lookups (hit, miss, error).",
		},
		[]string{"result"},
	)

	RollupRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rollup_runs_total",
			Help:      "Daily usage rollup runs by status.",
		},
		[]string{"status"},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route, method and status.",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"route", "method"},
	)
)

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		UsageRecords,
		NightModeRecords,
		IngestBatches,
		LLMRequests,
		LLMRequestDuration,
		ReportCache,
		RollupRuns,
		HTTPRequests,
		HTTPRequestDuration,
	)
}
