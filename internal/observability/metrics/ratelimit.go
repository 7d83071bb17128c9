package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// RateLimitMetrics contains Prometheus metrics for the request rate limiter.
type RateLimitMetrics struct {
	Allowed  *prometheus.CounterVec
	Rejected *prometheus.CounterVec
}

// NewRateLimitMetrics creates a new instance of RateLimitMetrics registered
// with the given registry.
func NewRateLimitMetrics(registry *prometheus.Registry) (*RateLimitMetrics, error) {
	m := &RateLimitMetrics{
		Allowed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_allowed_total",
			Help: "Total number of requests admitted by the rate limiter.",
		}, []string{"endpoint"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_rejected_total",
			Help: "Total number of requests rejected by the rate limiter.",
		}, []string{"endpoint"}),
	}

	for _, c := range []prometheus.Collector{m.Allowed, m.Rejected} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register rate limit metrics: %w", err)
		}
	}
	return m, nil
}

// IncrementAllowed increases the admitted-request counter for an endpoint.
func (m *RateLimitMetrics) IncrementAllowed(endpoint string) {
	if m == nil {
		return
	}
	m.Allowed.WithLabelValues(endpoint).Inc()
}

// IncrementRejected increases the rejected-request counter for an endpoint.
func (m *RateLimitMetrics) IncrementRejected(endpoint string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(endpoint).Inc()
}
