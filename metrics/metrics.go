package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "udf"

// Metrics owns a private registry and every collector the service exports.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	providerCalls   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	syncCycles      *prometheus.CounterVec
	syncRows        *prometheus.GaugeVec
	historyRequests *prometheus.CounterVec
	listReloads     prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	_ = reg.Register(prometheus.NewGoCollector())
	_ = reg.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Upstream provider calls by entry point and outcome.",
		}, []string{"entry_point", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_seconds",
			Help:      "Upstream provider call latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"entry_point"}),
		syncCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "symbol_sync_cycles_total",
			Help:      "Symbol synchronizer cycles by outcome.",
		}, []string{"outcome"}),
		syncRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "symbol_sync_rows",
			Help:      "Rows written by the last synchronizer cycle.",
		}, []string{"kind", "source"}),
		historyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_requests_total",
			Help:      "History requests by outcome.",
		}, []string{"outcome"}),
		listReloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "list_cache_reloads_total",
			Help:      "Instrument list reloads from the store.",
		}),
	}
	reg.MustRegister(m.providerCalls, m.providerLatency, m.syncCycles, m.syncRows, m.historyRequests, m.listReloads)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format. A nil *Metrics serves
// the process-wide default registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ProviderCall(entryPoint, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(entryPoint, outcome).Inc()
	m.providerLatency.WithLabelValues(entryPoint).Observe(took.Seconds())
}

func (m *Metrics) SyncCycle(outcome string) {
	if m == nil {
		return
	}
	m.syncCycles.WithLabelValues(outcome).Inc()
}

// SyncRows records how many rows of kind came from source ("provider" or "seed").
func (m *Metrics) SyncRows(kind, source string, n int) {
	if m == nil {
		return
	}
	m.syncRows.DeletePartialMatch(prometheus.Labels{"kind": kind})
	m.syncRows.WithLabelValues(kind, source).Set(float64(n))
}

func (m *Metrics) HistoryRequest(outcome string) {
	if m == nil {
		return
	}
	m.historyRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ListReload() {
	if m == nil {
		return
	}
	m.listReloads.Inc()
}
