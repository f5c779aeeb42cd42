package syncer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Unit outcomes recorded by Metrics.
const (
	OutcomeSaved     = "saved"
	OutcomeFailed    = "failed"
	OutcomeDiscarded = "discarded"
)

// Metrics holds the controller's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	units       *prometheus.CounterVec
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
	running     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "royalty_sync_units_total",
			Help: "Sync units processed, by outcome.",
		}, []string{"outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "royalty_sync_runs_total",
			Help: "Sync runs finished, by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "royalty_sync_run_duration_seconds",
			Help:    "Wall time of finished sync runs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "royalty_sync_running",
			Help: "1 while a sync run is active.",
		}),
	}
	reg.MustRegister(m.units, m.runs, m.runDuration, m.running)
	return m
}

func (m *Metrics) unit(outcome string) {
	if m == nil {
		return
	}
	m.units.WithLabelValues(outcome).Inc()
}

func (m *Metrics) runStarted() {
	if m == nil {
		return
	}
	m.running.Set(1)
}

func (m *Metrics) runFinished(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.running.Set(0)
	m.runs.WithLabelValues(result).Inc()
	m.runDuration.Observe(elapsed.Seconds())
}
