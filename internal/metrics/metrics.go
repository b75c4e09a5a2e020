// Package metrics exposes Prometheus instrumentation for scan jobs. A nil
// *Registry is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all KabuSentinel metrics.
type Registry struct {
	reg *prometheus.Registry

	Chunks          *prometheus.CounterVec
	SymbolOutcomes  *prometheus.CounterVec
	FallbackResults *prometheus.CounterVec
	ScanDuration    *prometheus.HistogramVec
	Qualified       *prometheus.GaugeVec
	PortfolioValue  prometheus.Gauge
	NotifyErrors    *prometheus.CounterVec
}

// NewRegistry creates a registry with every metric registered.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		Chunks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kabusentinel_chunks_total",
				Help: "Bulk download chunks by scan and result",
			},
			[]string{"scan", "result"},
		),
		SymbolOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kabusentinel_symbol_outcomes_total",
				Help: "Primary pass outcomes per symbol",
			},
			[]string{"scan", "status"},
		),
		FallbackResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kabusentinel_fallback_results_total",
				Help: "Per-symbol recovery attempts by result",
			},
			[]string{"scan", "result"},
		),
		ScanDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kabusentinel_scan_duration_seconds",
				Help:    "Wall time of a complete scan",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
			},
			[]string{"scan"},
		),
		Qualified: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kabusentinel_qualified_symbols",
				Help: "Symbols that qualified in the last scan",
			},
			[]string{"scan"},
		),
		PortfolioValue: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "kabusentinel_portfolio_value_yen",
				Help: "Market value of the configured portfolio at the last valuation",
			},
		),
		NotifyErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kabusentinel_notify_errors_total",
				Help: "Failed notification deliveries by job",
			},
			[]string{"job"},
		),
	}
	r.reg.MustRegister(r.Chunks, r.SymbolOutcomes, r.FallbackResults, r.ScanDuration,
		r.Qualified, r.PortfolioValue, r.NotifyErrors)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) ChunkDone(scan string, ok bool) {
	if r == nil {
		return
	}
	r.Chunks.WithLabelValues(scan, result(ok)).Inc()
}

func (r *Registry) SymbolOutcome(scan, status string) {
	if r == nil {
		return
	}
	r.SymbolOutcomes.WithLabelValues(scan, status).Inc()
}

func (r *Registry) FallbackDone(scan string, ok bool) {
	if r == nil {
		return
	}
	r.FallbackResults.WithLabelValues(scan, result(ok)).Inc()
}

// ScanDone records the duration and qualified count of a finished scan.
func (r *Registry) ScanDone(scan string, elapsed time.Duration, qualified int) {
	if r == nil {
		return
	}
	r.ScanDuration.WithLabelValues(scan).Observe(elapsed.Seconds())
	r.Qualified.WithLabelValues(scan).Set(float64(qualified))
}

func (r *Registry) SetPortfolioValue(v float64) {
	if r == nil {
		return
	}
	r.PortfolioValue.Set(v)
}

func (r *Registry) NotifyFailed(job string) {
	if r == nil {
		return
	}
	r.NotifyErrors.WithLabelValues(job).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
