// Package policy implements the authorization decision pipeline: an ordered,
// short-circuiting chain of rules evaluated against an AttributeContext, and the
// builder that turns the chain's outcome into a domain.Decision.
//
// The package is decoupled from the envoy wire protocol so that decisions can be
// simulated and tested without a transport. An Open Policy Agent backed evaluator can
// replace the builtin chain behind the same Decider contract; decision building is
// shared by both so header semantics never diverge.
package policy
