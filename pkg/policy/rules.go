package policy

import (
	"fmt"
	"net/textproto"
	"strings"
)

// Rule names, in baseline order.
const (
	RulePathRestriction   = "path_restriction"
	RuleMethodAuthz       = "method_authorization"
	RuleBusinessHours     = "business_hours"
	RuleEnvironmentAccess = "environment_access"
	RuleUserAgentDenylist = "user_agent_denylist"
)

const (
	authorizedMethod    = "POST"
	authorizationHeader = "authorization"
	environmentKey      = "environment"
	userAgentHeader     = "user-agent"
	timeDisplayLayout   = "3:04 PM"
)

// NewBaselineChain builds the fixed, ordered baseline rule chain from cfg.
func NewBaselineChain(cfg Config) Chain {
	cfg = cfg.normalized()
	return NewChain(
		PathRestriction{Prefix: cfg.RestrictedPathPrefix},
		MethodAuthorization{Method: authorizedMethod, Header: authorizationHeader},
		BusinessHours{Window: cfg.BusinessHours},
		EnvironmentAccess{
			Environment: cfg.ProductionEnvironment,
			Header:      cfg.ProductionAccessHeader,
			Value:       cfg.ProductionAccessValue,
		},
		UserAgentDenylist{Substrings: cfg.BotSubstrings},
	)
}

// PathRestriction denies requests whose path starts with Prefix.
type PathRestriction struct {
	Prefix string
}

func (PathRestriction) Name() string { return RulePathRestriction }

func (r PathRestriction) Evaluate(req Request) Outcome {
	path := req.Attributes.Request.Path
	if strings.HasPrefix(path, r.Prefix) {
		return Deny(RulePathRestriction, "access denied to admin path: "+path)
	}
	return Pass()
}

// MethodAuthorization requires a non-empty Header on requests with Method.
// The method match is exact and case-sensitive.
type MethodAuthorization struct {
	Method string
	Header string
}

func (MethodAuthorization) Name() string { return RuleMethodAuthz }

func (r MethodAuthorization) Evaluate(req Request) Outcome {
	if req.Attributes.Request.Method != r.Method {
		return Pass()
	}
	if value, ok := req.Attributes.Header(r.Header); ok && value != "" {
		return Pass()
	}
	return Deny(RuleMethodAuthz, fmt.Sprintf("%s requests require %s header", r.Method, textproto.CanonicalMIMEHeaderKey(r.Header)))
}

// BusinessHours denies requests evaluated outside Window. The hour is read from the
// evaluation instant in whatever location the pipeline clock returns; the default
// clock is server-local time.
type BusinessHours struct {
	Window HourWindow
}

func (BusinessHours) Name() string { return RuleBusinessHours }

func (r BusinessHours) Evaluate(req Request) Outcome {
	if r.Window.Contains(req.Now.Hour()) {
		return Pass()
	}
	return Deny(RuleBusinessHours, fmt.Sprintf("access restricted to business hours (%s), current time: %s",
		r.Window, req.Now.Format(timeDisplayLayout)))
}

// EnvironmentAccess requires Header to equal Value when the environment context
// extension equals Environment. Both comparisons are exact.
type EnvironmentAccess struct {
	Environment string
	Header      string
	Value       string
}

func (EnvironmentAccess) Name() string { return RuleEnvironmentAccess }

func (r EnvironmentAccess) Evaluate(req Request) Outcome {
	env, ok := req.Attributes.Extension(environmentKey)
	if !ok || env != r.Environment {
		return Pass()
	}
	if value, ok := req.Attributes.Header(r.Header); ok && value == r.Value {
		return Pass()
	}
	return Deny(RuleEnvironmentAccess, fmt.Sprintf("%s environment requires %s header", r.Environment, r.Header))
}

// UserAgentDenylist denies requests whose case-folded user agent contains any of
// Substrings. Substrings must already be lower-case.
type UserAgentDenylist struct {
	Substrings []string
}

func (UserAgentDenylist) Name() string { return RuleUserAgentDenylist }

func (r UserAgentDenylist) Evaluate(req Request) Outcome {
	ua, ok := req.Attributes.Header(userAgentHeader)
	if !ok {
		return Pass()
	}
	ua = strings.ToLower(ua)
	for _, s := range r.Substrings {
		if strings.Contains(ua, s) {
			return Deny(RuleUserAgentDenylist, "bot user agents are not allowed")
		}
	}
	return Pass()
}
