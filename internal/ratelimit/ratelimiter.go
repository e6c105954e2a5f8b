package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter enforces per-user request rate limits.
type Limiter interface {
	Allow(ctx context.Context, userID string, limit int) (bool, error)
}

// NoopLimiter allows all requests. Used when Redis is not configured.
type NoopLimiter struct{}

func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

func (l *NoopLimiter) Allow(ctx context.Context, userID string, limit int) (bool, error) {
	return true, nil
}

// UserRateLimiter implements distributed per-user rate limiting using
// Redis sorted sets with a one-minute sliding window.
type UserRateLimiter struct {
	client *redis.Client
}

// NewUserRateLimiter creates a new user rate limiter.
func NewUserRateLimiter(client *redis.Client) *UserRateLimiter {
	return &UserRateLimiter{client: client}
}

// Allow checks if a request should be allowed for the given user.
func (rl *UserRateLimiter) Allow(ctx context.Context, userID string, limit int) (bool, error) {
	return rl.AllowN(ctx, userID, limit, 1)
}

// AllowN checks if N requests should be allowed for the given user.
func (rl *UserRateLimiter) AllowN(ctx context.Context, userID string, limit int, count int) (bool, error) {
	if limit <= 0 {
		// No limit configured
		return true, nil
	}

	key := fmt.Sprintf("ratelimit:user:%s", userID)
	now := time.Now()
	windowStart := now.Add(-1 * time.Minute)

	pipe := rl.client.Pipeline()

	// Remove old entries outside the window
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixMilli()))

	// Count current requests in window
	countCmd := pipe.ZCard(ctx, key)

	// Add current request(s) with timestamp as score
	for i := 0; i < count; i++ {
		timestamp := now.Add(time.Duration(i) * time.Microsecond).UnixMilli()
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(timestamp),
			Member: fmt.Sprintf("%d:%d", timestamp, i),
		})
	}

	// Set expiry on the key (cleanup old keys)
	pipe.Expire(ctx, key, 2*time.Minute)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	currentCount := countCmd.Val()

	return int(currentCount) < limit, nil
}

// GetCurrentUsage returns the current request count in the window.
func (rl *UserRateLimiter) GetCurrentUsage(ctx context.Context, userID string) (int64, error) {
	key := fmt.Sprintf("ratelimit:user:%s", userID)
	now := time.Now()
	windowStart := now.Add(-1 * time.Minute)

	if err := rl.client.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixMilli())).Err(); err != nil {
		return 0, fmt.Errorf("failed to clean old entries: %w", err)
	}

	count, err := rl.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get current usage: %w", err)
	}

	return count, nil
}

// Reset resets the rate limit for a user.
func (rl *UserRateLimiter) Reset(ctx context.Context, userID string) error {
	key := fmt.Sprintf("ratelimit:user:%s", userID)
	return rl.client.Del(ctx, key).Err()
}
