// Package metrics exposes Prometheus instruments for the scanner and scheduler.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"SignalScanner/internal/model"
)

// Metrics holds all Prometheus metrics on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	ScansTotal      prometheus.Counter
	ScanDuration    prometheus.Histogram
	LastScanTime    prometheus.Gauge
	SymbolsScanned  prometheus.Counter
	SignalsTotal    *prometheus.CounterVec // labels: label, direction
	SuppressedTotal prometheus.Counter
	ScanErrors      *prometheus.CounterVec // labels: kind
	CacheLookups    *prometheus.CounterVec // labels: result=hit|miss|error
	StoreFailures   prometheus.Counter

	SkippedTicks   *prometheus.CounterVec // labels: reason=overrun|market_closed
	SchedulerState prometheus.Gauge       // 0=idle, 1=running, 2=waiting
	BreakerState   prometheus.Gauge       // 0=closed, 1=open, 2=half-open
	BreakerTrips   prometheus.Counter
}

// New creates and registers all metrics.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ScansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_runs_total",
			Help: "Completed scan runs",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scanner_run_duration_seconds",
			Help:    "Wall-clock duration of a scan run",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		LastScanTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scanner_last_run_timestamp_seconds",
			Help: "Unix time the last scan run finished",
		}),
		SymbolsScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_symbols_scanned_total",
			Help: "Symbols for which indicators were computed",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_signals_total",
			Help: "Signals emitted",
		}, []string{"label", "direction"}),
		SuppressedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_signals_suppressed_total",
			Help: "Qualifying symbols suppressed by the cooldown",
		}),
		ScanErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_errors_total",
			Help: "Per-symbol errors recorded in scan runs",
		}, []string{"kind"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_cache_lookups_total",
			Help: "Series cache lookups by result",
		}, []string{"result"}),
		StoreFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_store_write_failures_total",
			Help: "Signal writes dropped after all retries",
		}),
		SkippedTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_skipped_ticks_total",
			Help: "Scheduler ticks that did not start a run",
		}, []string{"reason"}),
		SchedulerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scheduler_state",
			Help: "Scheduler state (0=idle, 1=running, 2=waiting)",
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		BreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker opened",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ScansTotal, m.ScanDuration, m.LastScanTime, m.SymbolsScanned,
		m.SignalsTotal, m.SuppressedTotal, m.ScanErrors, m.CacheLookups,
		m.StoreFailures, m.SkippedTicks, m.SchedulerState, m.BreakerState,
		m.BreakerTrips,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObserveRun records the outcome of a finished scan run.
func (m *Metrics) ObserveRun(run *model.ScanRun) {
	if m == nil || run == nil {
		return
	}
	m.ScansTotal.Inc()
	m.ScanDuration.Observe(run.Duration().Seconds())
	m.LastScanTime.Set(float64(run.FinishedAt.Unix()))
	m.SymbolsScanned.Add(float64(run.SymbolsScanned))
	for _, sig := range run.Signals {
		m.SignalsTotal.WithLabelValues(string(sig.Label), string(sig.Direction)).Inc()
	}
	for _, res := range run.Results {
		if res.Suppressed {
			m.SuppressedTotal.Inc()
		}
	}
	for _, e := range run.Errors {
		m.ScanErrors.WithLabelValues(string(e.Kind)).Inc()
		if e.Kind == model.ErrKindStoreWriteFailed {
			m.StoreFailures.Inc()
		}
	}
}

// CacheLookup counts a series cache lookup; result is hit, miss or error.
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// SkipTick counts a scheduler tick that did not start a run.
func (m *Metrics) SkipTick(reason string) {
	if m == nil {
		return
	}
	m.SkippedTicks.WithLabelValues(reason).Inc()
}

// SetSchedulerState publishes the scheduler state ordinal.
func (m *Metrics) SetSchedulerState(state int) {
	if m == nil {
		return
	}
	m.SchedulerState.Set(float64(state))
}

// SetBreakerState publishes the cache breaker state; entering open counts a trip.
func (m *Metrics) SetBreakerState(state int, tripped bool) {
	if m == nil {
		return
	}
	m.BreakerState.Set(float64(state))
	if tripped {
		m.BreakerTrips.Inc()
	}
}
