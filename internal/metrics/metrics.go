// Package metrics defines the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan metrics
var (
	// ScansTotal tracks completed scan attempts by type and outcome.
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vexguard_scans_total",
			Help: "Total number of scan attempts by type and outcome",
		},
		[]string{"scan_type", "status"},
	)

	// ScanDuration tracks wall-clock scan duration.
	ScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vexguard_scan_duration_seconds",
			Help:    "Scan duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"scan_type"},
	)

	// ScansInProgress tracks scans currently executing in the worker.
	ScansInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vexguard_scans_in_progress",
			Help: "Number of scans currently executing",
		},
	)

	// ScanFindings tracks findings surfaced per completed scan.
	ScanFindings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vexguard_scan_findings_total",
			Help: "Total findings reported by completed scans",
		},
		[]string{"severity"},
	)

	// ScanAutoFiltered tracks findings suppressed by FP patterns.
	ScanAutoFiltered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vexguard_scan_auto_filtered_total",
			Help: "Total findings suppressed by false positive patterns",
		},
	)

	// ScanRetries tracks queue redeliveries of failed scans.
	ScanRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vexguard_scan_retries_total",
			Help: "Total scan retry attempts",
		},
	)
)

// Webhook metrics
var (
	// WebhookEventsTotal tracks received webhook deliveries by platform
	// and disposition (accepted, ignored, rejected).
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vexguard_webhook_events_total",
			Help: "Total webhook deliveries by platform and disposition",
		},
		[]string{"platform", "disposition"},
	)

	// WebhookSignatureFailures tracks deliveries rejected for a bad signature.
	WebhookSignatureFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vexguard_webhook_signature_failures_total",
			Help: "Total webhook deliveries rejected for signature mismatch",
		},
		[]string{"platform"},
	)
)

// IDE surface metrics
var (
	// IDEAnalyzeTotal tracks snippet analysis requests by outcome
	// (ok, timeout, too_large, error).
	IDEAnalyzeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vexguard_ide_analyze_total",
			Help: "Total IDE snippet analysis requests by outcome",
		},
		[]string{"outcome"},
	)

	// IDEAnalyzeDuration tracks snippet analysis latency.
	IDEAnalyzeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vexguard_ide_analyze_duration_seconds",
			Help:    "IDE snippet analysis latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)

	// IDECacheHits tracks analysis cache hits and misses.
	IDECacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vexguard_ide_cache_total",
			Help: "IDE analysis cache lookups by result",
		},
		[]string{"result"},
	)
)

// LLM metrics
var (
	// LLMRequestsTotal tracks patch suggestion completions by outcome.
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vexguard_llm_requests_total",
			Help: "Total LLM completion requests by outcome",
		},
		[]string{"outcome"},
	)

	// LLMRequestDuration tracks LLM completion latency.
	LLMRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vexguard_llm_request_duration_seconds",
			Help:    "LLM completion latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
	)
)

// Scheduler metrics
var (
	// ScheduledScansTotal tracks scans enqueued by the weekly scheduler.
	ScheduledScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vexguard_scheduled_scans_total",
			Help: "Total scans enqueued by the scheduler by result",
		},
		[]string{"result"},
	)

	// SchedulerLastRun records the unix time of the last scheduler cycle.
	SchedulerLastRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vexguard_scheduler_last_run_timestamp",
			Help: "Unix timestamp of the last scheduler cycle",
		},
	)
)

// HTTP metrics
var (
	// HTTPRequestsTotal tracks HTTP requests by method, route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vexguard_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vexguard_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	// HTTPRateLimited tracks requests rejected by a rate limiter.
	HTTPRateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vexguard_http_rate_limited_total",
			Help: "Total requests rejected by rate limiting",
		},
		[]string{"route"},
	)
)
