package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Check results as reported by CheckMetrics.
const (
	ResultAllowed         = "allowed"
	ResultDenied          = "denied"
	ResultInvalidArgument = "invalid_argument"
	ResultInternal        = "internal"
)

// CheckMetrics holds the Prometheus collectors for the ext_authz endpoint.
type CheckMetrics struct {
	checksTotal   *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewCheckMetrics creates the collectors on a dedicated registry, together with the
// standard Go and process collectors.
func NewCheckMetrics() *CheckMetrics {
	registry := prometheus.NewRegistry()

	m := &CheckMetrics{
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authz_check_requests_total",
				Help: "Total number of ext_authz check requests by result",
			},
			[]string{"result"},
		),
		checkDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authz_check_duration_seconds",
				Help:    "ext_authz check handling latency in seconds",
				Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
			},
			[]string{"result"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.checksTotal,
		m.checkDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveCheck records one handled check.
func (m *CheckMetrics) ObserveCheck(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.checksTotal.WithLabelValues(result).Inc()
	m.checkDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// Handler returns an HTTP handler exposing the registry.
func (m *CheckMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *CheckMetrics) Registry() *prometheus.Registry {
	return m.registry
}
