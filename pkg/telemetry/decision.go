package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/polisai/polis-authz/pkg/domain"
)

// RecordDecision annotates the check span with the decision outcome.
func RecordDecision(span trace.Span, decisionID string, decision domain.Decision) {
	if span == nil || !span.IsRecording() {
		return
	}

	span.SetAttributes(
		attribute.String("authz.decision.id", decisionID),
		attribute.Bool("authz.decision.allowed", decision.Allowed),
		attribute.String("authz.decision.rule", decision.Rule),
		attribute.String("authz.decision.reason", decision.Reason),
	)

	if decision.Allowed {
		span.SetAttributes(
			attribute.StringSlice("authz.headers.set", decision.SetHeaderNames()),
			attribute.StringSlice("authz.headers.removed", decision.HeadersToRemove),
		)
		return
	}

	span.AddEvent("authz.denied", trace.WithAttributes(attribute.String("authz.decision.rule", decision.Rule)))
}

// RecordRequest attaches the non-sensitive request attributes to the check span.
// Header values are never recorded.
func RecordRequest(span trace.Span, ac domain.AttributeContext) {
	if span == nil || !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("http.request.method", ac.Request.Method),
		attribute.String("url.path", ac.Request.Path),
		attribute.String("server.address", ac.Request.Host),
	}
	if env, ok := ac.Extension("environment"); ok {
		attrs = append(attrs, attribute.String("authz.context.environment", env))
	}
	if sni := ac.SNI(); sni != "" {
		attrs = append(attrs, attribute.String("tls.server.name", sni))
	}
	span.SetAttributes(attrs...)
}

// RecordFailure marks the span as failed.
func RecordFailure(span trace.Span, err error) {
	if span == nil || !span.IsRecording() || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
