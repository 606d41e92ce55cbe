// Package telemetry wires OpenTelemetry tracing and metrics plus the Prometheus
// registry for the authorization service.
//
// It centralises trace provider setup, annotates check spans with the decision
// outcome, and records per-rule decision counters and check-level request metrics so
// operators can correlate denials with the rule that produced them.
package telemetry
