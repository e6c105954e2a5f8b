package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (*UserRateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewUserRateLimiter(client), mr
}

func TestAllowWithinLimit(t *testing.T) {
	rl, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := rl.Allow(ctx, "user-1", 5)
		require.NoError(t, err)
		assert.True(t, ok, "request %d should be allowed", i+1)
	}

	ok, err := rl.Allow(ctx, "user-1", 5)
	require.NoError(t, err)
	assert.False(t, ok, "sixth request in the window should be denied")
}

func TestAllowUnlimited(t *testing.T) {
	rl, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		ok, err := rl.Allow(ctx, "user-1", 0)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestAllowPerUserIsolation(t *testing.T) {
	rl, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "user-1", 3)
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := rl.Allow(ctx, "user-1", 3)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "user-2", 3)
	require.NoError(t, err)
	assert.True(t, ok, "another user's window must not be affected")
}

func TestWindowSlides(t *testing.T) {
	rl, mr := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "user-1", 3)
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := rl.Allow(ctx, "user-1", 3)
	require.NoError(t, err)
	require.False(t, ok)

	// Age the recorded entries out of the window by rewriting their
	// scores, then the user should be allowed again.
	key := "ratelimit:user:user-1"
	old := float64(time.Now().Add(-2 * time.Minute).UnixMilli())
	members, err := mr.ZMembers(key)
	require.NoError(t, err)
	for i, member := range members {
		mr.ZRem(key, member)
		_, err := mr.ZAdd(key, old+float64(i), fmt.Sprintf("old-%d", i))
		require.NoError(t, err)
	}

	ok, err = rl.Allow(ctx, "user-1", 3)
	require.NoError(t, err)
	assert.True(t, ok, "entries older than the window must not count")
}

func TestGetCurrentUsageAndReset(t *testing.T) {
	rl, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := rl.Allow(ctx, "user-1", 10)
		require.NoError(t, err)
	}

	count, err := rl.GetCurrentUsage(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	require.NoError(t, rl.Reset(ctx, "user-1"))

	count, err = rl.GetCurrentUsage(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}
