package policy

import (
	"time"

	"github.com/polisai/polis-authz/pkg/domain"
)

// Headers the decision builder sets on allowed requests.
const (
	HeaderAuthorizedBy = "x-authorized-by"
	HeaderDecisionTime = "x-decision-time"
	HeaderEnvironment  = "x-environment"
	HeaderRegion       = "x-region"

	AuthorizedByValue = "policy-engine"
)

// BuildDecision turns a terminal outcome into a Decision. Deny decisions carry no
// header mutations. Allow decisions mark the request, stamp the decision time, copy
// the environment and region extensions when present, and always strip the
// authorization header so the credential never reaches the backend.
func BuildDecision(outcome Outcome, attrs domain.AttributeContext, now time.Time) domain.Decision {
	if outcome.Denied {
		return domain.Decision{
			Allowed:         false,
			Reason:          outcome.Reason,
			Rule:            outcome.Rule,
			HeadersToSet:    map[string]string{},
			HeadersToRemove: []string{},
		}
	}

	reason := outcome.Reason
	if reason == "" {
		reason = AllowReason
	}
	rule := outcome.Rule
	if rule == "" {
		rule = RuleAllow
	}

	headers := map[string]string{
		HeaderAuthorizedBy: AuthorizedByValue,
		HeaderDecisionTime: now.Format(time.RFC3339),
	}
	if env, ok := attrs.Extension(environmentKey); ok {
		headers[HeaderEnvironment] = env
	}
	if region, ok := attrs.Extension("region"); ok {
		headers[HeaderRegion] = region
	}

	return domain.Decision{
		Allowed:         true,
		Reason:          reason,
		Rule:            rule,
		HeadersToSet:    headers,
		HeadersToRemove: []string{authorizationHeader},
	}
}
