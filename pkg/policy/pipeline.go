package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/polisai/polis-authz/pkg/domain"
)

// Evaluator produces a Decision for one request context.
type Evaluator interface {
	Evaluate(ctx context.Context, attrs domain.AttributeContext) (domain.Decision, error)
}

// Clock returns the current instant.
type Clock func() time.Time

// Pipeline couples a Decider with a clock and the decision builder. It holds no
// mutable state and is safe for concurrent use.
type Pipeline struct {
	decider Decider
	clock   Clock
}

// PipelineOption customizes a Pipeline.
type PipelineOption func(*Pipeline)

// WithClock overrides the wall clock. The default is time.Now, i.e. server-local time.
func WithClock(clock Clock) PipelineOption {
	return func(p *Pipeline) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// NewPipeline constructs a Pipeline around decider.
func NewPipeline(decider Decider, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{decider: decider, clock: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Evaluate reads the clock once and evaluates attrs at that instant.
func (p *Pipeline) Evaluate(ctx context.Context, attrs domain.AttributeContext) (domain.Decision, error) {
	return p.EvaluateAt(ctx, attrs, p.clock())
}

// EvaluateAt evaluates attrs as of now. The same instant drives time-based rules and
// the decision timestamp, so equal inputs always yield equal decisions.
func (p *Pipeline) EvaluateAt(ctx context.Context, attrs domain.AttributeContext, now time.Time) (domain.Decision, error) {
	outcome, err := p.decider.Decide(ctx, Request{Attributes: attrs, Now: now})
	if err != nil {
		return domain.Decision{}, fmt.Errorf("%w: %w", domain.ErrPolicyEvalFailed, err)
	}
	return BuildDecision(outcome, attrs, now), nil
}
