package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	SessionsCreated *prometheus.CounterVec
	SessionLoads    *prometheus.CounterVec
	SessionSaves    *prometheus.CounterVec
	BackendErrors   *prometheus.CounterVec
	TurnsExchanged  prometheus.Counter
	ActiveChats     prometheus.Gauge
	ExchangeLatency prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		SessionsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Sessions created by outcome (persisted, fallback, rejected).",
		}, []string{"outcome"}),
		SessionLoads: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_loads_total",
			Help:      "Session loads by result.",
		}, []string{"result"}),
		SessionSaves: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_saves_total",
			Help:      "Session saves by result.",
		}, []string{"result"}),
		BackendErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Storage backend errors by operation.",
		}, []string{"op"}),
		TurnsExchanged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_exchanged_total",
			Help:      "Completed human/assistant exchanges.",
		}),
		ActiveChats: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_chat_connections",
			Help:      "Open interactive chat connections.",
		}),
		ExchangeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_exchange_latency_ms",
			Help:      "End-to-end latency of one exchange (model call plus history write) in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}),
	}
}

func (m *Metrics) ObserveExchangeLatency(d time.Duration) {
	m.ExchangeLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
