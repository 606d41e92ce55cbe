package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/polisai/polis-authz/pkg/domain"
)

var (
	metricsOnce       sync.Once
	metricsInitErr    error
	decisionCounter   metric.Int64Counter
	decisionHistogram metric.Float64Histogram
)

// RecordDecisionMetrics counts the decision by rule and verdict and records how long
// the evaluation took.
func RecordDecisionMetrics(ctx context.Context, decision domain.Decision, duration time.Duration) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.Bool("authz.allowed", decision.Allowed),
		attribute.String("authz.rule", decision.Rule),
	)

	decisionCounter.Add(ctx, 1, attrs)
	if duration > 0 {
		decisionHistogram.Record(ctx, float64(duration)/float64(time.Millisecond), attrs)
	}
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter(TracerName)

		decisionCounter, metricsInitErr = meter.Int64Counter(
			"authz.decisions_total",
			metric.WithDescription("Authorization decisions partitioned by verdict and deciding rule"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		decisionHistogram, metricsInitErr = meter.Float64Histogram(
			"authz.decision.duration_ms",
			metric.WithDescription("Observed policy evaluation latency"),
			metric.WithUnit("ms"),
		)
	})

	return metricsInitErr
}

// ResetMetricsForTest clears cached metric instruments so tests can reinitialize
// them against a fresh MeterProvider. This is intended for use in test code only.
func ResetMetricsForTest() {
	metricsOnce = sync.Once{}
	metricsInitErr = nil
	decisionCounter = nil
	decisionHistogram = nil
}
