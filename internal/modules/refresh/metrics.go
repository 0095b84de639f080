package refresh

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the refresh coordinator's Prometheus collectors
type Metrics struct {
	Runs           *prometheus.CounterVec
	Symbols        *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	LastRefresh    prometheus.Gauge
	LockContention prometheus.Counter
	Scheduled      *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_refresh_runs_total",
			Help: "Completed market data refresh runs",
		}, []string{"reason", "outcome"}),
		Symbols: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_refresh_symbols_total",
			Help: "Per-symbol refresh outcomes",
		}, []string{"status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "folio_refresh_run_duration_seconds",
			Help:    "Wall time of a refresh run",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		LastRefresh: factory.NewGauge(prometheus.GaugeOpts{
			Name: "folio_refresh_last_success_timestamp_seconds",
			Help: "Unix time of the last recorded refresh",
		}),
		LockContention: factory.NewCounter(prometheus.CounterOpts{
			Name: "folio_refresh_lock_contention_total",
			Help: "Refresh triggers skipped because another refresh holds the lock",
		}),
		Scheduled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_refresh_schedule_decisions_total",
			Help: "ScheduleIfNeeded outcomes",
		}, []string{"decision"}),
	}
}
