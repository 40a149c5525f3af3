package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the process's Prometheus registry and the gauges/counters/
// histograms registered on it; cmd/engine is the only package that updates
// them. Each Metrics owns its
// own prometheus.Registry rather than registering onto the global
// DefaultRegisterer, so constructing more than one in the same process
// (as tests do) never panics on duplicate registration.
type Metrics struct {
	registry *prometheus.Registry

	EventsProcessed   *prometheus.CounterVec
	CommandsEmitted   *prometheus.CounterVec
	Halts             *prometheus.CounterVec
	GuardRejections   *prometheus.CounterVec
	RegimeTransitions *prometheus.CounterVec
	WALAppendLatency  prometheus.Histogram
	QueueDepth        prometheus.Gauge
}

// NewMetrics constructs and registers every metric this module exposes.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		EventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_events_processed_total",
			Help: "Total events drained from the bus by family.",
		}, []string{"family"}),
		CommandsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_commands_emitted_total",
			Help: "Total commands the reducer emitted by kind.",
		}, []string{"kind"}),
		Halts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_halts_total",
			Help: "Total halt transitions by reason.",
		}, []string{"reason"}),
		GuardRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_guard_rejections_total",
			Help: "Total signals rejected by an ethics guard, by poison.",
		}, []string{"poison", "code"}),
		RegimeTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_regime_transitions_total",
			Help: "Total narrative regime classification changes, by target regime.",
		}, []string{"regime"}),
		WALAppendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "engine_wal_append_latency_seconds",
			Help:    "Latency of WAL append calls.",
			Buckets: prometheus.DefBuckets,
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_event_queue_depth",
			Help: "Current number of events buffered on the event bus.",
		}),
	}

	reg.MustRegister(
		m.EventsProcessed, m.CommandsEmitted, m.Halts,
		m.GuardRejections, m.RegimeTransitions, m.WALAppendLatency, m.QueueDepth,
	)
	return m
}

// Handler returns the HTTP handler exposing this registry in the
// Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
