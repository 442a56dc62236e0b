package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/Alterya/agents-sub000/internal/domain"
	"github.com/Alterya/agents-sub000/internal/infra/guard"
)

// RateLimiter is a fixed-window limiter backed by Redis INCR + EXPIRE. It
// implements guard.RateLimiter so it can stand in for the in-process window
// when multiple instances share one budget.
type RateLimiter struct {
	client RedisClient
	limit  int
	window time.Duration
}

var _ guard.RateLimiter = (*RateLimiter)(nil)

func NewRateLimiter(client RedisClient, rpm int) *RateLimiter {
	return &RateLimiter{client: client, limit: rpm, window: time.Minute}
}

func (r *RateLimiter) Allow(ctx context.Context, key string) error {
	count, err := r.client.Incr(ctx, "rate_limit:"+key)
	if err != nil {
		return fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, "rate_limit:"+key, r.window); err != nil {
			return fmt.Errorf("rate limit expire: %w", err)
		}
	}
	if count > int64(r.limit) {
		return fmt.Errorf("%w: key %s", domain.ErrRateLimited, key)
	}
	return nil
}
