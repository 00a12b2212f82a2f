package pipeline

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"screening-pipeline/internal/llm"
)

// RateLimitedCompleter spaces outbound reasoning calls so a large batch stays within the
// provider's request quota. Waiting honours the caller's context, so a bounded call that
// is still queued here times out like any other.
type RateLimitedCompleter struct {
	next    llm.Completer
	limiter *rate.Limiter
}

// NewRateLimitedCompleter allows perMinute calls per minute with the given burst.
// perMinute <= 0 means unlimited.
func NewRateLimitedCompleter(next llm.Completer, perMinute, burst int) *RateLimitedCompleter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedCompleter{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (c *RateLimitedCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return c.next.Complete(ctx, req)
}

var _ llm.Completer = (*RateLimitedCompleter)(nil)
