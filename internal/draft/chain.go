package draft

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dailyworker/newsroom/internal/resilience"
)

// ErrNoDrafter is returned when every drafter failed both the full and the
// simple prompt. Callers flag the article for manual drafting.
var ErrNoDrafter = eris.New("draft: all drafters failed")

// Chain tries each drafter in order. Each call runs under the retry policy
// and the drafter's own circuit breaker. When the full prompt fails on every
// drafter, the chain retries once more with the simple prompt.
type Chain struct {
	drafters []Drafter
	breakers *resilience.Breakers
	policy   resilience.Policy
}

// NewChain creates a fallback chain. breakers may be nil.
func NewChain(breakers *resilience.Breakers, policy resilience.Policy, drafters ...Drafter) *Chain {
	if breakers == nil {
		breakers = resilience.NewBreakers(resilience.BreakerConfig{})
	}
	return &Chain{drafters: drafters, breakers: breakers, policy: policy}
}

// Name implements Drafter.
func (c *Chain) Name() string {
	names := make([]string, len(c.drafters))
	for i, d := range c.drafters {
		names[i] = d.Name()
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// Draft implements Drafter.
func (c *Chain) Draft(ctx context.Context, req Request) (*Output, error) {
	if len(c.drafters) == 0 {
		return nil, ErrNoDrafter
	}

	var errs []string
	for _, simple := range []bool{req.Simple, true} {
		r := req
		r.Simple = simple
		for _, d := range c.drafters {
			out, err := c.try(ctx, d, r)
			if err == nil {
				return out, nil
			}
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "draft: chain")
			}
			zap.L().Warn("draft: drafter failed",
				zap.String("drafter", d.Name()),
				zap.Bool("simple_prompt", simple),
				zap.Error(err),
			)
			errs = append(errs, d.Name()+": "+err.Error())
		}
		if req.Simple {
			break
		}
	}
	return nil, eris.Wrapf(ErrNoDrafter, "draft: %s", strings.Join(errs, "; "))
}

func (c *Chain) try(ctx context.Context, d Drafter, req Request) (*Output, error) {
	p := c.policy
	if p.OnRetry == nil {
		p.OnRetry = resilience.LogRetry(d.Name(), "draft")
	}
	return resilience.Protect(ctx, c.breakers.Get(d.Name()), p, func(ctx context.Context) (*Output, error) {
		return d.Draft(ctx, req)
	})
}
