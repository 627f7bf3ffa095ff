package providers

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts outbound provider requests.
type Metrics struct {
	requests *prometheus.CounterVec
}

// NewMetrics registers provider collectors against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdash_provider_requests_total",
			Help: "Outbound product-data requests by provider, operation and outcome.",
		}, []string{"provider", "operation", "outcome"}),
	}
	if registerer != nil {
		registerer.MustRegister(m.requests)
	}
	return m
}

// Observe records one request.
func (m *Metrics) Observe(provider, operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.requests.WithLabelValues(provider, operation, outcome).Inc()
}
