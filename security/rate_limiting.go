package security

import (
	"context"
	"fmt"
	"time"

	"event-settlement/internal/status"

	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles checkout-session creation with fixed-window
// counters in Redis. The storage backend is opaque to callers; only
// allow/deny comes back.
type RateLimiter struct {
	redis  *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(redisClient *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		limit:  int64(limit),
		window: window,
	}
}

// Allow consumes one slot for the key (an attendance id or client IP).
// Redis outages fail open: throttling is protection, not correctness.
func (r *RateLimiter) Allow(ctx context.Context, key string) error {
	bucket := fmt.Sprintf("ratelimit:checkout:%s", key)

	count, err := r.redis.Incr(ctx, bucket).Result()
	if err != nil {
		return nil
	}
	if count == 1 {
		r.redis.Expire(ctx, bucket, r.window)
	}
	if count > r.limit {
		return status.ErrRateLimited
	}
	return nil
}
