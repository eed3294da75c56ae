package statusapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of a [Server].
type Metrics struct {
	// Requests counts handled requests by route pattern and status code.
	Requests *prometheus.CounterVec

	// Duration observes handler latency by route pattern.
	Duration *prometheus.HistogramVec

	// Heartbeats counts recorded heartbeats.
	Heartbeats prometheus.Counter
}

// NewMetrics registers the status API collectors on reg.
// A nil reg gets a private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		Requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "peerwatch_statusapi_requests_total",
			Help: "Status API requests by route and status code.",
		}, []string{"route", "code"}),

		Duration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "peerwatch_statusapi_request_duration_seconds",
			Help:    "Status API handler latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),

		Heartbeats: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "peerwatch_statusapi_heartbeats_total",
			Help: "Heartbeats recorded by the status API.",
		}),
	}
}
