package rate_limiter

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/rom8726/stepflow"
)

var _ stepflow.Plugin = (*RateLimiterPlugin)(nil)

// RateLimiterPlugin throttles step starts per workflow and step name. By
// default a start waits for a token; with WithReject it fails instead.
type RateLimiterPlugin struct {
	stepflow.BasePlugin

	limit    rate.Limit
	burst    int
	reject   bool
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
}

type Option func(*RateLimiterPlugin)

// WithReject fails a step start immediately when no token is available.
func WithReject() Option {
	return func(p *RateLimiterPlugin) {
		p.reject = true
	}
}

func New(limit rate.Limit, burst int, opts ...Option) *RateLimiterPlugin {
	plugin := &RateLimiterPlugin{
		BasePlugin: stepflow.NewBasePlugin("rate_limiter", stepflow.PriorityHigh),
		limit:      limit,
		burst:      max(burst, 1),
		limiters:   make(map[string]*rate.Limiter),
	}

	for _, opt := range opts {
		opt(plugin)
	}

	return plugin
}

func (p *RateLimiterPlugin) OnStepStart(ctx context.Context, wf *stepflow.Workflow, step *stepflow.Step) error {
	key := fmt.Sprintf("%s:%s", wf.Name, step.Name)
	limiter := p.limiter(key)

	if p.reject {
		if !limiter.Allow() {
			return fmt.Errorf("rate limit exceeded for %s", key)
		}

		return nil
	}

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", key, err)
	}

	return nil
}

func (p *RateLimiterPlugin) limiter(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	limiter, ok := p.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(p.limit, p.burst)
		p.limiters[key] = limiter
	}

	return limiter
}
