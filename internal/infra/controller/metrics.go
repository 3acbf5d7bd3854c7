package controller

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics implements Metrics on Prometheus collectors.
type PrometheusMetrics struct {
	reconcileTotal    *prometheus.CounterVec
	reconcileDuration *prometheus.HistogramVec
	itemsProcessed    *prometheus.CounterVec
	controllerRunning *prometheus.GaugeVec
	lastReconcileTime *prometheus.GaugeVec
}

var _ Metrics = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics registers the controller collectors under the
// vexguard namespace.
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		reconcileTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vexguard",
				Subsystem: "controller",
				Name:      "reconcile_total",
				Help:      "Reconciliations by controller and result",
			},
			[]string{"controller", "result"},
		),
		reconcileDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "vexguard",
				Subsystem: "controller",
				Name:      "reconcile_duration_seconds",
				Help:      "Reconciliation duration in seconds",
				Buckets:   []float64{0.005, 0.05, 0.25, 1, 5, 30, 120},
			},
			[]string{"controller"},
		),
		itemsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vexguard",
				Subsystem: "controller",
				Name:      "items_processed_total",
				Help:      "Items processed by controller",
			},
			[]string{"controller"},
		),
		controllerRunning: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "vexguard",
				Subsystem: "controller",
				Name:      "running",
				Help:      "Whether the controller is running (1) or not (0)",
			},
			[]string{"controller"},
		),
		lastReconcileTime: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "vexguard",
				Subsystem: "controller",
				Name:      "last_reconcile_timestamp_seconds",
				Help:      "Unix timestamp of the last reconciliation",
			},
			[]string{"controller"},
		),
	}
}

// RecordReconcile records one reconciliation run.
func (m *PrometheusMetrics) RecordReconcile(controller string, itemsProcessed int, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.reconcileTotal.WithLabelValues(controller, result).Inc()
	m.reconcileDuration.WithLabelValues(controller).Observe(duration.Seconds())
	if itemsProcessed > 0 {
		m.itemsProcessed.WithLabelValues(controller).Add(float64(itemsProcessed))
	}
}

// SetControllerRunning flags a controller as running or stopped.
func (m *PrometheusMetrics) SetControllerRunning(controller string, running bool) {
	val := 0.0
	if running {
		val = 1.0
	}
	m.controllerRunning.WithLabelValues(controller).Set(val)
}

// SetLastReconcileTime records when a controller last ran.
func (m *PrometheusMetrics) SetLastReconcileTime(controller string, t time.Time) {
	m.lastReconcileTime.WithLabelValues(controller).Set(float64(t.Unix()))
}
