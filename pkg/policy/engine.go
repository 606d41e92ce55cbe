package policy

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/polisai/polis-authz/pkg/domain"
)

// DefaultRegoModule reproduces the baseline rule chain in Rego.
//
//go:embed default.rego
var DefaultRegoModule string

const (
	defaultRegoModuleName = "default.rego"
	defaultRegoQuery      = "data.authz.outcome"
)

// RegoOptions control RegoEvaluator construction.
type RegoOptions struct {
	// Module is the Rego source. Empty selects DefaultRegoModule.
	Module string
	// ModuleName is used in compile errors. Defaults to "default.rego".
	ModuleName string
	// Query must evaluate to an object {denied, rule, reason}. Defaults to
	// "data.authz.outcome".
	Query string
	// Config is exposed to the module as input.config.
	Config Config
}

// RegoEvaluator decides requests with an embedded OPA instance. The module is parsed
// and the query prepared once at construction; evaluation is safe for concurrent use.
type RegoEvaluator struct {
	query    rego.PreparedEvalQuery
	config   map[string]any
	queryRef string
}

// NewRegoEvaluator compiles the module and prepares the decision query.
func NewRegoEvaluator(ctx context.Context, opts RegoOptions) (*RegoEvaluator, error) {
	src := opts.Module
	if strings.TrimSpace(src) == "" {
		src = DefaultRegoModule
	}
	name := strings.TrimSpace(opts.ModuleName)
	if name == "" {
		name = defaultRegoModuleName
	}
	queryRef := strings.TrimSpace(opts.Query)
	if queryRef == "" {
		queryRef = defaultRegoQuery
	}

	module, err := ast.ParseModuleWithOpts(name, src, ast.ParserOptions{RegoVersion: ast.RegoV1})
	if err != nil {
		return nil, fmt.Errorf("parse rego module %q: %w", name, err)
	}

	prepared, err := rego.New(
		rego.Query(queryRef),
		rego.ParsedModule(module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile rego module %q: %w", name, err)
	}

	return &RegoEvaluator{
		query:    prepared,
		config:   configInput(opts.Config.normalized()),
		queryRef: queryRef,
	}, nil
}

// Decide implements Decider.
func (e *RegoEvaluator) Decide(ctx context.Context, req Request) (Outcome, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(e.input(req)))
	if err != nil {
		return Outcome{}, fmt.Errorf("opa decision: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Outcome{}, evalError(fmt.Sprintf("opa decision: %s is undefined", e.queryRef))
	}

	payload, ok := results[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return Outcome{}, evalError(fmt.Sprintf("opa decision: unexpected result type %T", results[0].Expressions[0].Value))
	}

	return parseOutcome(payload)
}

func (e *RegoEvaluator) input(req Request) map[string]any {
	httpReq := req.Attributes.Request
	headers := make(map[string]any, len(httpReq.Headers))
	for key, value := range httpReq.Headers {
		headers[key] = value
	}
	extensions := make(map[string]any, len(req.Attributes.ContextExtensions))
	for key, value := range req.Attributes.ContextExtensions {
		extensions[key] = value
	}

	return map[string]any{
		"request": map[string]any{
			"method":  httpReq.Method,
			"path":    httpReq.Path,
			"host":    httpReq.Host,
			"scheme":  httpReq.Scheme,
			"size":    httpReq.Size,
			"headers": headers,
		},
		"context_extensions": extensions,
		"tls_sni":            req.Attributes.SNI(),
		"clock": map[string]any{
			"hour":    req.Now.Hour(),
			"display": req.Now.Format(timeDisplayLayout),
			"time":    req.Now.Format(time.RFC3339),
		},
		"config": e.config,
	}
}

func configInput(cfg Config) map[string]any {
	bots := make([]any, 0, len(cfg.BotSubstrings))
	for _, s := range cfg.BotSubstrings {
		bots = append(bots, s)
	}
	return map[string]any{
		"restricted_path_prefix": cfg.RestrictedPathPrefix,
		"business_hours": map[string]any{
			"start":   cfg.BusinessHours.Start,
			"end":     cfg.BusinessHours.End,
			"display": cfg.BusinessHours.String(),
		},
		"production_environment": cfg.ProductionEnvironment,
		"production_access": map[string]any{
			"header": cfg.ProductionAccessHeader,
			"value":  cfg.ProductionAccessValue,
		},
		"bot_substrings": bots,
	}
}

func parseOutcome(payload map[string]any) (Outcome, error) {
	denied, ok := payload["denied"].(bool)
	if !ok {
		return Outcome{}, evalError(fmt.Sprintf("opa decision: denied must be bool, got %T", payload["denied"]))
	}
	reason, _ := payload["reason"].(string)
	rule, _ := payload["rule"].(string)

	if !denied {
		return Outcome{Rule: RuleAllow, Reason: AllowReason}, nil
	}
	if reason == "" {
		return Outcome{}, evalError("opa decision: deny without reason")
	}
	return Deny(rule, reason), nil
}

func evalError(msg string) error {
	return &domain.DomainError{
		Err:     errors.New(msg),
		Code:    "REGO_OUTCOME_INVALID",
		Message: msg,
	}
}
