package poller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of a [Controller].
type Metrics struct {
	// Cycles counts completed cycles by outcome:
	// success, empty, transient, protocol, canceled.
	Cycles *prometheus.CounterVec

	// ConsecutiveFailures mirrors the controller's failure counter.
	ConsecutiveFailures prometheus.Gauge

	// NextDelay is the delay armed for the next cycle, zero when none is armed.
	NextDelay prometheus.Gauge

	// FetchDuration observes status request latency.
	FetchDuration prometheus.Histogram
}

// NewMetrics registers the poller collectors on reg.
//
// A nil reg gets a private registry so callers that do not export
// metrics need no special casing.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		Cycles: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "peerwatch_poll_cycles_total",
			Help: "Completed status poll cycles by outcome.",
		}, []string{"outcome"}),

		ConsecutiveFailures: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "peerwatch_poll_consecutive_failures",
			Help: "Number of consecutive failed poll cycles.",
		}),

		NextDelay: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "peerwatch_poll_next_delay_seconds",
			Help: "Delay armed before the next poll cycle.",
		}),

		FetchDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "peerwatch_poll_duration_seconds",
			Help:    "Histogram of status request latencies.",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
	}
}
