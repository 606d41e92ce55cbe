package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/polisai/polis-authz/pkg/domain"
)

func newDefaultRego(t testing.TB, cfg Config) *RegoEvaluator {
	t.Helper()
	evaluator, err := NewRegoEvaluator(context.Background(), RegoOptions{Config: cfg})
	require.NoError(t, err)
	return evaluator
}

func TestRegoEvaluator_DefaultModuleScenarios(t *testing.T) {
	evaluator := newDefaultRego(t, DefaultConfig())
	ctx := context.Background()

	tests := []struct {
		name       string
		ac         domain.AttributeContext
		hour       int
		wantRule   string
		wantReason string
	}{
		{"allow", httpContext("GET", "/api/users", map[string]string{}, nil), 10, RuleAllow, AllowReason},
		{"admin", httpContext("GET", "/admin/users", map[string]string{}, nil), 10, RulePathRestriction, "access denied to admin path: /admin/users"},
		{"post", httpContext("POST", "/api/orders", map[string]string{}, nil), 10, RuleMethodAuthz, "POST requests require Authorization header"},
		{"hours", httpContext("GET", "/api/data", map[string]string{}, nil), 20, RuleBusinessHours, "access restricted to business hours (9 AM - 5 PM), current time: 8:15 PM"},
		{"production", httpContext("GET", "/api/data", map[string]string{}, map[string]string{"environment": "production"}), 10, RuleEnvironmentAccess, "production environment requires x-production-access header"},
		{"bot", httpContext("GET", "/api", map[string]string{"user-agent": "Mozilla/5.0 GoogleBot"}, nil), 10, RuleUserAgentDenylist, "bot user agents are not allowed"},
		{"short circuit", httpContext("POST", "/admin/x", map[string]string{}, nil), 10, RulePathRestriction, "access denied to admin path: /admin/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := evaluator.Decide(ctx, Request{Attributes: tt.ac, Now: at(tt.hour)})
			require.NoError(t, err)
			assert.Equal(t, tt.wantRule != RuleAllow, outcome.Denied)
			assert.Equal(t, tt.wantRule, outcome.Rule)
			assert.Equal(t, tt.wantReason, outcome.Reason)
		})
	}
}

func TestRegoEvaluator_ParityWithBuiltinChain(t *testing.T) {
	cfg := DefaultConfig()
	chain := NewBaselineChain(cfg)
	evaluator := newDefaultRego(t, cfg)

	rapid.Check(t, func(t *rapid.T) {
		req := Request{Attributes: genContext(t), Now: genInstant(t)}

		want := chain.Evaluate(req)
		got, err := evaluator.Decide(context.Background(), req)
		if err != nil {
			t.Fatalf("rego decide: %v", err)
		}
		if want != got {
			t.Fatalf("builtin %+v != rego %+v", want, got)
		}
	})
}

func TestRegoEvaluator_PipelineHeadersMatchBuiltin(t *testing.T) {
	now := at(11)
	ac := httpContext("GET", "/api", map[string]string{"x-production-access": "true"},
		map[string]string{"environment": "production", "region": "ap-south-1"})

	builtin, err := NewPipeline(NewBaselineChain(DefaultConfig()), WithClock(fixedClock(now))).Evaluate(context.Background(), ac)
	require.NoError(t, err)
	viaRego, err := NewPipeline(newDefaultRego(t, DefaultConfig()), WithClock(fixedClock(now))).Evaluate(context.Background(), ac)
	require.NoError(t, err)

	assert.Equal(t, builtin, viaRego)
}

func TestRegoEvaluator_CustomModule(t *testing.T) {
	module := `package gate

default verdict := {"denied": true, "rule": "tenant", "reason": "unknown tenant"}

verdict := {"denied": false} if input.context_extensions.tenant
`
	evaluator, err := NewRegoEvaluator(context.Background(), RegoOptions{
		Module:     module,
		ModuleName: "gate.rego",
		Query:      "data.gate.verdict",
		Config:     DefaultConfig(),
	})
	require.NoError(t, err)

	outcome, err := evaluator.Decide(context.Background(), Request{Attributes: httpContext("GET", "/admin", nil, nil), Now: at(3)})
	require.NoError(t, err)
	assert.Equal(t, Deny("tenant", "unknown tenant"), outcome)

	outcome, err = evaluator.Decide(context.Background(), Request{
		Attributes: httpContext("GET", "/admin", nil, map[string]string{"tenant": "acme"}),
		Now:        at(3),
	})
	require.NoError(t, err)
	assert.Equal(t, Allow(), outcome)
}

func TestRegoEvaluator_InvalidModule(t *testing.T) {
	_, err := NewRegoEvaluator(context.Background(), RegoOptions{Module: "package broken\n\nallow if {", ModuleName: "broken.rego"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.rego")
}

func TestRegoEvaluator_UndefinedOutcome(t *testing.T) {
	evaluator, err := NewRegoEvaluator(context.Background(), RegoOptions{
		Module: "package authz\n\noutcome := {\"denied\": false} if input.never\n",
	})
	require.NoError(t, err)

	_, err = evaluator.Decide(context.Background(), Request{Attributes: httpContext("GET", "/", nil, nil), Now: at(10)})
	require.Error(t, err)
	var domainErr *domain.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "REGO_OUTCOME_INVALID", domainErr.Code)
}

func TestRegoEvaluator_DenyWithoutReason(t *testing.T) {
	evaluator, err := NewRegoEvaluator(context.Background(), RegoOptions{
		Module: "package authz\n\noutcome := {\"denied\": true, \"rule\": \"x\"}\n",
	})
	require.NoError(t, err)

	_, err = evaluator.Decide(context.Background(), Request{Attributes: httpContext("GET", "/", nil, nil), Now: at(10)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deny without reason")
}
