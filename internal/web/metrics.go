package web

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	submissions *prometheus.CounterVec
}

// newMetrics registers the web metrics on reg. A nil reg yields no-op
// metrics.
func newMetrics(reg prometheus.Registerer, views *viewRegistry) *metrics {
	if reg == nil {
		return nil
	}
	m := &metrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schedweb",
			Subsystem: "web",
			Name:      "submissions_total",
			Help:      "Editor submissions by resource, verb and outcome.",
		}, []string{"resource", "verb", "outcome"}),
	}
	reg.MustRegister(
		m.submissions,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "schedweb",
			Subsystem: "web",
			Name:      "views",
			Help:      "Live browser views holding filter state.",
		}, func() float64 { return float64(views.len()) }),
	)
	return m
}

func (m *metrics) observeSubmit(resource, verb string, failed bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.submissions.WithLabelValues(resource, verb, outcome).Inc()
}
