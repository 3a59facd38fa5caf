package embedding

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/m1520n/rag-chatbot/pkg/resilience"
)

// GuardOpts bounds the call rate to an encoder backend and trips a breaker
// when it keeps failing.
type GuardOpts struct {
	RPS     float64
	Burst   int
	Breaker resilience.BreakerOpts
}

// GuardedEncoder rate-limits and circuit-breaks calls to another encoder.
type GuardedEncoder struct {
	next    Encoder
	limiter *rate.Limiter
	breaker *resilience.Breaker
}

// NewGuardedEncoder wraps next. RPS <= 0 disables rate limiting.
func NewGuardedEncoder(next Encoder, opts GuardOpts) *GuardedEncoder {
	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return &GuardedEncoder{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
		breaker: resilience.NewBreaker(opts.Breaker),
	}
}

// Breaker exposes the breaker for health reporting.
func (g *GuardedEncoder) Breaker() *resilience.Breaker { return g.breaker }

func (g *GuardedEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding: rate limit: %w", err)
	}
	var out []float32
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		v, err := g.next.Encode(ctx, text)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DefaultGuardOpts allows 20 encodes per second with a short burst.
var DefaultGuardOpts = GuardOpts{
	RPS:   20,
	Burst: 5,
	Breaker: resilience.BreakerOpts{
		FailThreshold: 5,
		Timeout:       15 * time.Second,
	},
}
