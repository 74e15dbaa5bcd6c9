package agents

import (
	"context"
	"fmt"

	"github.com/BaSui01/crewflow/workflow"
	"golang.org/x/time/rate"
)

// RateLimited throttles calls to an agent. Callers block until a token is
// available or ctx is done.
type RateLimited struct {
	agent   workflow.Agent
	limiter *rate.Limiter
}

// NewRateLimited allows rps calls per second with the given burst.
func NewRateLimited(agent workflow.Agent, rps float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		agent:   agent,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// WithLimiter shares an existing limiter, e.g. between agents backed by the
// same upstream quota.
func WithLimiter(agent workflow.Agent, limiter *rate.Limiter) *RateLimited {
	return &RateLimited{agent: agent, limiter: limiter}
}

// Execute implements workflow.Agent.
func (r *RateLimited) Execute(ctx context.Context, task *workflow.Task, ec *workflow.ExecutionContext) (any, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait for %s: %w", r.Name(), err)
	}
	return r.agent.Execute(ctx, task, ec)
}

// Name implements workflow.Named.
func (r *RateLimited) Name() string { return workflow.AgentName(r.agent) }
