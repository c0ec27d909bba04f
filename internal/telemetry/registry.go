// Package telemetry exposes the engine's Prometheus metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metrics for the engine.
type Registry struct {
	// Analysis pipeline
	AnalysesTotal    *prometheus.CounterVec // by source: upload, json, scan
	AnalysisDuration prometheus.Histogram
	RingsDetected    *prometheus.CounterVec // by pattern type
	AccountsFlagged  prometheus.Counter

	// Operator surface
	AlertsEmitted     *prometheus.CounterVec // by severity
	SimulationsTotal  prometheus.Counter
	ShadowComparisons *prometheus.CounterVec // by diverged: true, false
	ScanFilesTotal    prometheus.Counter
	WebsocketClients  prometheus.Gauge

	registry *prometheus.Registry
}

// NewRegistry creates a metrics registry with all engine metrics initialized.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{registry: reg}
	r.initEngineMetrics()
	return r
}

func (r *Registry) initEngineMetrics() {
	r.AnalysesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "muling_analyses_total",
			Help: "Total number of completed analyses",
		},
		[]string{"source"},
	)

	r.AnalysisDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "muling_analysis_duration_seconds",
			Help:    "End-to-end analysis latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	r.RingsDetected = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "muling_rings_detected_total",
			Help: "Total number of rings detected",
		},
		[]string{"pattern"},
	)

	r.AccountsFlagged = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "muling_accounts_flagged_total",
			Help: "Total number of accounts flagged across analyses",
		},
	)

	r.AlertsEmitted = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "muling_alerts_emitted_total",
			Help: "Total number of alerts emitted",
		},
		[]string{"severity"},
	)

	r.SimulationsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "muling_simulations_total",
			Help: "Total number of what-if simulations run",
		},
	)

	r.ShadowComparisons = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "muling_shadow_comparisons_total",
			Help: "Total number of shadow config comparisons",
		},
		[]string{"diverged"},
	)

	r.ScanFilesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "muling_scan_files_total",
			Help: "Total number of case files scanned",
		},
	)

	r.WebsocketClients = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "muling_websocket_clients",
			Help: "Current number of connected websocket clients",
		},
	)
}

// GetPrometheusRegistry returns the underlying Prometheus registry for the
// /metrics handler.
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
