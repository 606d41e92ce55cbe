package policy

import (
	"context"
	"time"

	"github.com/polisai/polis-authz/pkg/domain"
)

// RuleAllow names the terminal allow outcome.
const RuleAllow = "allow"

// AllowReason is the fixed reason attached to every allow decision.
const AllowReason = "request meets all policy requirements"

// Request is the input of one rule evaluation: the context plus the instant the
// evaluation runs at. Rules never read the wall clock themselves.
type Request struct {
	Attributes domain.AttributeContext
	Now        time.Time
}

// Outcome is the result of a rule or of a whole chain.
type Outcome struct {
	Denied bool
	Rule   string
	Reason string
}

// Pass lets evaluation continue with the next rule.
func Pass() Outcome {
	return Outcome{}
}

// Deny stops evaluation with the given reason.
func Deny(rule, reason string) Outcome {
	return Outcome{Denied: true, Rule: rule, Reason: reason}
}

// Allow is the terminal outcome of a chain in which no rule denied.
func Allow() Outcome {
	return Outcome{Rule: RuleAllow, Reason: AllowReason}
}

// Rule is one independent policy predicate. Implementations must be pure functions of
// the request and must treat absent optional attributes as "condition not met".
type Rule interface {
	Name() string
	Evaluate(req Request) Outcome
}

// Decider produces the terminal outcome for a request. Chain is the builtin decider;
// RegoEvaluator is a declarative substitute.
type Decider interface {
	Decide(ctx context.Context, req Request) (Outcome, error)
}

// Chain composes rules, short-circuiting on the first deny.
type Chain struct {
	rules []Rule
}

// NewChain constructs a rule chain. The order of rules is fixed for its lifetime.
func NewChain(rules ...Rule) Chain {
	return Chain{rules: append([]Rule(nil), rules...)}
}

// Evaluate executes the chain until a rule denies. Rules after the denying rule never
// run. When every rule passes the terminal allow outcome is returned.
func (c Chain) Evaluate(req Request) Outcome {
	for _, rule := range c.rules {
		outcome := rule.Evaluate(req)
		if !outcome.Denied {
			continue
		}
		if outcome.Rule == "" {
			outcome.Rule = rule.Name()
		}
		return outcome
	}
	return Allow()
}

// Decide implements Decider. The builtin chain never fails.
func (c Chain) Decide(_ context.Context, req Request) (Outcome, error) {
	return c.Evaluate(req), nil
}

// Names returns the rule names in evaluation order.
func (c Chain) Names() []string {
	names := make([]string, 0, len(c.rules))
	for _, rule := range c.rules {
		names = append(names, rule.Name())
	}
	return names
}
