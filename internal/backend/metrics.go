package backend

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the backend request collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schedweb",
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Backend requests by resource, method and outcome.",
		}, []string{"resource", "method", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "schedweb",
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Backend request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"resource", "method"}),
	}
	reg.MustRegister(m.requests, m.latency)
	return m
}

func (m *Metrics) observeOutcome(resource, method, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(resource, method, outcome).Inc()
}

func (m *Metrics) observeLatency(resource, method string, d time.Duration) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(resource, method).Observe(d.Seconds())
}
