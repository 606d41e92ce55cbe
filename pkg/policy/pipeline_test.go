package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/polisai/polis-authz/pkg/domain"
)

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func newTestPipeline(now time.Time) *Pipeline {
	return NewPipeline(NewBaselineChain(DefaultConfig()), WithClock(fixedClock(now)))
}

func TestPipeline_ScenarioA_AllowPlainGet(t *testing.T) {
	now := at(10)
	decision, err := newTestPipeline(now).Evaluate(context.Background(), httpContext("GET", "/api/users", nil, nil))
	require.NoError(t, err)

	assert.True(t, decision.Allowed)
	assert.Equal(t, AllowReason, decision.Reason)
	assert.Equal(t, map[string]string{
		HeaderAuthorizedBy: AuthorizedByValue,
		HeaderDecisionTime: now.Format(time.RFC3339),
	}, decision.HeadersToSet)
	assert.Equal(t, []string{"authorization"}, decision.HeadersToRemove)
}

func TestPipeline_ScenarioB_AdminPath(t *testing.T) {
	decision, err := newTestPipeline(at(10)).Evaluate(context.Background(), httpContext("GET", "/admin/users", nil, nil))
	require.NoError(t, err)

	assert.False(t, decision.Allowed)
	assert.Equal(t, "access denied to admin path: /admin/users", decision.Reason)
	assert.Empty(t, decision.HeadersToSet)
	assert.Empty(t, decision.HeadersToRemove)
}

func TestPipeline_ScenarioC_PostWithoutAuthorization(t *testing.T) {
	decision, err := newTestPipeline(at(10)).Evaluate(context.Background(), httpContext("POST", "/api/orders", nil, nil))
	require.NoError(t, err)

	assert.False(t, decision.Allowed)
	assert.Equal(t, "POST requests require Authorization header", decision.Reason)
}

func TestPipeline_ScenarioD_OutsideBusinessHours(t *testing.T) {
	decision, err := newTestPipeline(at(20)).Evaluate(context.Background(), httpContext("GET", "/api/data", nil, nil))
	require.NoError(t, err)

	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "access restricted to business hours (9 AM - 5 PM)")
	assert.Equal(t, RuleBusinessHours, decision.Rule)
}

func TestPipeline_ScenarioE_ProductionAccess(t *testing.T) {
	p := newTestPipeline(at(10))
	ext := map[string]string{"environment": "production"}

	denied, err := p.Evaluate(context.Background(), httpContext("GET", "/api/data", nil, ext))
	require.NoError(t, err)
	assert.False(t, denied.Allowed)
	assert.Equal(t, "production environment requires x-production-access header", denied.Reason)

	allowed, err := p.Evaluate(context.Background(), httpContext("GET", "/api/data", map[string]string{"x-production-access": "true"}, ext))
	require.NoError(t, err)
	assert.True(t, allowed.Allowed)
	assert.Equal(t, "production", allowed.HeadersToSet[HeaderEnvironment])
	_, hasRegion := allowed.HeadersToSet[HeaderRegion]
	assert.False(t, hasRegion)
}

func TestPipeline_RegionCopied(t *testing.T) {
	decision, err := newTestPipeline(at(12)).Evaluate(context.Background(),
		httpContext("GET", "/api", nil, map[string]string{"region": "eu-central-1", "tenant": "acme"}))
	require.NoError(t, err)

	assert.True(t, decision.Allowed)
	assert.Equal(t, "eu-central-1", decision.HeadersToSet[HeaderRegion])
	assert.Len(t, decision.HeadersToSet, 3)
}

func TestPipeline_ReadsClockOncePerEvaluation(t *testing.T) {
	calls := 0
	clock := func() time.Time {
		calls++
		// A second read would cross the window boundary.
		return at(16).Add(time.Duration(calls-1) * time.Hour)
	}
	p := NewPipeline(NewBaselineChain(DefaultConfig()), WithClock(clock))

	decision, err := p.Evaluate(context.Background(), httpContext("GET", "/api", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, decision.Allowed)
	assert.Equal(t, at(16).Format(time.RFC3339), decision.HeadersToSet[HeaderDecisionTime])
}

type failingDecider struct{}

func (failingDecider) Decide(context.Context, Request) (Outcome, error) {
	return Outcome{}, errors.New("boom")
}

func TestPipeline_DeciderErrorIsWrapped(t *testing.T) {
	_, err := NewPipeline(failingDecider{}).Evaluate(context.Background(), httpContext("GET", "/", nil, nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPolicyEvalFailed))
	assert.Contains(t, err.Error(), "boom")
}

func TestBuildDecision_DenyCarriesNoMutations(t *testing.T) {
	decision := BuildDecision(Deny(RuleUserAgentDenylist, "bot user agents are not allowed"),
		httpContext("GET", "/", nil, map[string]string{"environment": "production", "region": "us"}), at(10))

	assert.False(t, decision.Allowed)
	assert.Equal(t, RuleUserAgentDenylist, decision.Rule)
	assert.NotNil(t, decision.HeadersToSet)
	assert.Empty(t, decision.HeadersToSet)
	assert.Empty(t, decision.HeadersToRemove)
}

func TestBuildDecision_AllowDefaults(t *testing.T) {
	decision := BuildDecision(Outcome{}, domain.AttributeContext{}, at(9))
	assert.True(t, decision.Allowed)
	assert.Equal(t, AllowReason, decision.Reason)
	assert.Equal(t, RuleAllow, decision.Rule)
}

// genContext draws request contexts that exercise every baseline rule.
func genContext(t *rapid.T) domain.AttributeContext {
	headers := map[string]string{}
	if rapid.Bool().Draw(t, "has_auth") {
		headers["authorization"] = rapid.SampledFrom([]string{"", "Bearer abc", "Basic Zm9v"}).Draw(t, "auth")
	}
	if rapid.Bool().Draw(t, "has_ua") {
		headers["user-agent"] = rapid.SampledFrom([]string{
			"Mozilla/5.0", "MOZILLA", "Googlebot/2.1", "Mozilla/5.0 GoogleBot", "curl/8.4", "ROBOT", "",
		}).Draw(t, "ua")
	}
	if rapid.Bool().Draw(t, "has_prod_access") {
		headers["x-production-access"] = rapid.SampledFrom([]string{"true", "false", "TRUE", ""}).Draw(t, "prod_access")
	}

	extensions := map[string]string{}
	if rapid.Bool().Draw(t, "has_env") {
		extensions["environment"] = rapid.SampledFrom([]string{"production", "staging", "Production"}).Draw(t, "env")
	}
	if rapid.Bool().Draw(t, "has_region") {
		extensions["region"] = rapid.SampledFrom([]string{"us-east-1", "eu-west-1"}).Draw(t, "region")
	}

	return httpContext(
		rapid.SampledFrom([]string{"GET", "POST", "post", "PUT", "DELETE"}).Draw(t, "method"),
		rapid.SampledFrom([]string{"/", "/admin", "/admin/users", "/administrator", "/api/admin", "/api/orders", ""}).Draw(t, "path"),
		headers,
		extensions,
	)
}

func genInstant(t *rapid.T) time.Time {
	hour := rapid.IntRange(0, 23).Draw(t, "hour")
	minute := rapid.IntRange(0, 59).Draw(t, "minute")
	return time.Date(2024, 6, 3, hour, minute, 0, 0, time.UTC)
}

func TestPipeline_PropertyDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ac := genContext(t)
		p := newTestPipeline(genInstant(t))

		first, err := p.Evaluate(context.Background(), ac)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		second, err := p.Evaluate(context.Background(), ac)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if !assert.ObjectsAreEqual(first, second) {
			t.Fatalf("decisions differ: %+v vs %+v", first, second)
		}
	})
}

func TestPipeline_PropertyDecisionShape(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ac := genContext(t)
		decision, err := newTestPipeline(genInstant(t)).Evaluate(context.Background(), ac)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}

		if decision.Reason == "" {
			t.Fatalf("reason must never be empty")
		}
		if !decision.Allowed {
			if len(decision.HeadersToSet) != 0 || len(decision.HeadersToRemove) != 0 {
				t.Fatalf("deny must not carry header mutations: %+v", decision)
			}
			return
		}

		if !decision.Removes("authorization") {
			t.Fatalf("allow must strip authorization: %+v", decision.HeadersToRemove)
		}
		if decision.HeadersToSet[HeaderAuthorizedBy] != AuthorizedByValue {
			t.Fatalf("allow must mark x-authorized-by")
		}
		_, hasEnvExt := ac.Extension("environment")
		_, hasEnvHeader := decision.HeadersToSet[HeaderEnvironment]
		if hasEnvExt != hasEnvHeader {
			t.Fatalf("x-environment present=%v but extension present=%v", hasEnvHeader, hasEnvExt)
		}
		_, hasRegionExt := ac.Extension("region")
		_, hasRegionHeader := decision.HeadersToSet[HeaderRegion]
		if hasRegionExt != hasRegionHeader {
			t.Fatalf("x-region present=%v but extension present=%v", hasRegionHeader, hasRegionExt)
		}
	})
}

func TestPipeline_PropertyDoesNotMutateContext(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ac := genContext(t)
		headers := make(map[string]string, len(ac.Request.Headers))
		for k, v := range ac.Request.Headers {
			headers[k] = v
		}
		extensions := make(map[string]string, len(ac.ContextExtensions))
		for k, v := range ac.ContextExtensions {
			extensions[k] = v
		}

		if _, err := newTestPipeline(genInstant(t)).Evaluate(context.Background(), ac); err != nil {
			t.Fatalf("evaluate: %v", err)
		}

		if !assert.ObjectsAreEqual(headers, ac.Request.Headers) || !assert.ObjectsAreEqual(extensions, ac.ContextExtensions) {
			t.Fatalf("context mutated during evaluation")
		}
	})
}
