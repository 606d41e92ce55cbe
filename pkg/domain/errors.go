package domain

import "errors"

// Common domain errors
var (
	// ErrMissingAttributes is returned when a check request carries no attribute bundle.
	ErrMissingAttributes = errors.New("missing attributes")
	// ErrMissingHTTPRequest is returned when the attribute bundle has no HTTP request.
	ErrMissingHTTPRequest = errors.New("missing HTTP request")
	ErrPolicyEvalFailed   = errors.New("policy evaluation failed")
	ErrConfigInvalid      = errors.New("invalid configuration")
)

// IsPrecondition reports whether err is a caller error raised before any policy ran.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrMissingAttributes) || errors.Is(err, ErrMissingHTTPRequest)
}

// DomainError wraps errors with additional context.
//
//nolint:revive // Name is intentionally verbose to distinguish domain-layer errors
type DomainError struct {
	Err     error
	Code    string
	Message string
	Details map[string]any
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}
