// Package domain defines the core types of the authorization decision service.
//
// This package contains pure domain logic with ZERO external dependencies outside the
// Go standard library. The request snapshot (AttributeContext) and the verdict
// (Decision) defined here are shared by the policy pipeline, the wire translator,
// and the telemetry helpers; none of them depend on the envoy protocol types.
//
// The dependency direction is always:
//
//	Transport → Domain (CORRECT)
//	Domain → Transport (FORBIDDEN)
package domain
