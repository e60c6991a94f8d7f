package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitalflow_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vitalflow_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vitalflow_http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "endpoint"},
	)

	// Ingest metrics
	IngestReadingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitalflow_ingest_readings_total",
			Help: "Total number of vitals readings received",
		},
		[]string{"status"}, // status: accepted, rejected
	)

	IngestValidationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitalflow_ingest_validation_errors_total",
			Help: "Total number of validation errors on ingest",
		},
		[]string{"error_type"},
	)

	// Rule engine / alert lifecycle metrics
	RulesFiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitalflow_rules_fired_total",
			Help: "Total number of rule firings by type and severity",
		},
		[]string{"type", "severity"},
	)

	AlertsPersistedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vitalflow_alerts_persisted_total",
			Help: "Total number of alerts written to the store",
		},
	)

	AlertPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vitalflow_alert_publish_failures_total",
			Help: "Alert events that could not be published to the bus",
		},
	)

	// Event bus metrics
	BusPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitalflow_bus_publish_total",
			Help: "Total number of messages published to the event bus",
		},
		[]string{"topic", "status"}, // status: success, failed
	)

	BusPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vitalflow_bus_publish_retries_total",
			Help: "Total number of event bus publish retries",
		},
	)

	BusPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vitalflow_bus_publish_duration_seconds",
			Help:    "Time taken to publish to the event bus",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Enrichment worker metrics
	EnrichmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitalflow_enrichments_total",
			Help: "Enrichment outcomes per consumed alert event",
		},
		[]string{"status"}, // status: enriched, duplicate, missing_alert, failed
	)

	EnrichmentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vitalflow_enrichment_duration_seconds",
			Help:    "Latency of enrichment backend calls",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// Discharge evaluator metrics
	DischargeRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vitalflow_discharge_runs_total",
			Help: "Total number of auto-discharge batch runs",
		},
	)

	DischargeEvaluatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vitalflow_discharge_evaluated_total",
			Help: "Encounters evaluated for discharge readiness",
		},
	)

	AutoDischargedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vitalflow_auto_discharged_total",
			Help: "Encounters auto-discharged by the batch runner",
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitalflow_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
