package httpdispatcher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides Prometheus instrumentation for dispatched requests.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates and registers dispatcher metrics with registry. If
// registry is nil, a new registry is created.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aicostmanager_dispatch_requests_total",
			Help: "Total number of dispatched POST requests, by outcome.",
		},
		[]string{"outcome"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aicostmanager_dispatch_duration_seconds",
			Help:    "Duration of a dispatched POST, including retries.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	_ = registry.Register(requests)
	_ = registry.Register(duration)

	return &Metrics{requests: requests, duration: duration}
}

// ObserveRequest records the outcome of one Post call.
func (m *Metrics) ObserveRequest(_ string, resp *Response, err error, duration time.Duration) {
	outcome := "success"
	switch {
	case err != nil:
		outcome = "error"
	case resp == nil:
		outcome = "error"
	}
	m.requests.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(duration.Seconds())
}
