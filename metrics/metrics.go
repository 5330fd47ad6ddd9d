package metrics

import (
	// Go Internal Packages
	"net/http"

	// External Packages
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors both binaries share. Each instance owns
// its registry so tests can build as many as they need.
type Metrics struct {
	reg *prometheus.Registry

	SessionsTotal     *prometheus.CounterVec
	SessionSeconds    prometheus.Histogram
	FramesDecoded     prometheus.Counter
	FramesInvalid     prometheus.Counter
	HTTPRequests      *prometheus.CounterVec
	CommandsTotal     *prometheus.CounterVec
	TransactionsTotal *prometheus.CounterVec
	BatchesClosed     prometheus.Counter
	ConnectionsOpen   prometheus.Gauge
}

// New builds a metric set under the given namespace.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		SessionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Protocol sessions by outcome.",
		}, []string{"outcome"}),
		SessionSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Wall time of a protocol session.",
			Buckets:   prometheus.DefBuckets,
		}),
		FramesDecoded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_decoded_total",
			Help:      "Frames decoded from the terminal link.",
		}),
		FramesInvalid: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_invalid_total",
			Help:      "Frames whose payload failed to parse.",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Gateway requests by path and status.",
		}, []string{"path", "status"}),
		CommandsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Terminal commands by name and result.",
		}, []string{"command", "result"}),
		TransactionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Stored transactions by type and status.",
		}, []string{"type", "status"}),
		BatchesClosed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_closed_total",
			Help:      "Settlement batches closed.",
		}),
		ConnectionsOpen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_open",
			Help:      "Open terminal link connections.",
		}),
	}
}

// Handler exposes the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
