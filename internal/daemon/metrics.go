package daemon

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"royalty/internal/inbox"
	"royalty/internal/ledger"
)

type metrics struct {
	registry   *prometheus.Registry
	storeWrite *prometheus.HistogramVec
	imports    *prometheus.CounterVec
	requests   *prometheus.CounterVec
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	m := &metrics{
		registry: reg,
		storeWrite: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "royalty_store_write_seconds",
			Help:    "Latency of ledger write transactions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "partition"}),
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "royalty_inbox_imports_total",
			Help: "Inbox files handled, by result.",
		}, []string{"result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "royalty_http_requests_total",
			Help: "HTTP API requests, by route and status code.",
		}, []string{"route", "code"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.storeWrite,
		m.imports,
		m.requests,
	)
	return m
}

func (m *metrics) observeWrite(op string, partition ledger.Partition, elapsed time.Duration) {
	m.storeWrite.WithLabelValues(op, string(partition)).Observe(elapsed.Seconds())
}

func (m *metrics) observeImport(result inbox.Result) {
	outcome := "imported"
	if result.Err != nil {
		outcome = "failed"
	}
	m.imports.WithLabelValues(outcome).Inc()
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
