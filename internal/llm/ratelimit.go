package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to an underlying Generator with a token
// bucket. Waiting honours the caller's context deadline.
type RateLimited struct {
	next   Generator
	bucket *rate.Limiter
}

var _ Generator = (*RateLimited)(nil)

// NewRateLimited wraps next. A non-positive rps disables throttling.
func NewRateLimited(next Generator, rps float64, burst int) *RateLimited {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{next: next, bucket: rate.NewLimiter(limit, burst)}
}

// Generate waits for a token, then delegates.
func (r *RateLimited) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	if err := r.bucket.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return r.next.Generate(ctx, prompt, opts)
}

// ModelName returns the wrapped model name.
func (r *RateLimited) ModelName() string {
	return r.next.ModelName()
}
