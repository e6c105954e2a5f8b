package keypool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSelector(store *fakeStore, now time.Time) *Selector {
	s := NewSelector(store)
	s.now = func() time.Time { return now }
	return s
}

func TestSelectSkipsInactiveAndRateLimited(t *testing.T) {
	store := newFakeStore()

	inactive := activeKey(testNow)
	inactive.IsActive = false
	store.add("gemini", inactive)

	limited := activeKey(testNow)
	limited.IsRateLimited = true
	store.add("gemini", limited)

	_, err := newTestSelector(store, testNow).Select(context.Background(), "gemini")
	assert.ErrorIs(t, err, ErrNoKeyAvailable)
}

func TestSelectSkipsExhaustedHigherPriority(t *testing.T) {
	store := newFakeStore()

	exhausted := activeKey(testNow)
	exhausted.Name = "A"
	exhausted.Priority = 5
	exhausted.DailyLimit = limit(10)
	exhausted.DailyUsed = 10
	store.add("gemini", exhausted)

	usable := activeKey(testNow)
	usable.Name = "B"
	usable.Priority = 3
	usable.DailyLimit = limit(10)
	usable.DailyUsed = 2
	store.add("gemini", usable)

	key, err := newTestSelector(store, testNow).Select(context.Background(), "gemini")
	require.NoError(t, err)
	assert.Equal(t, "B", key.Name)
}

func TestSelectPrefersHigherPriority(t *testing.T) {
	store := newFakeStore()

	low := activeKey(testNow)
	low.Name = "low"
	low.Priority = 1
	store.add("gemini", low)

	high := activeKey(testNow)
	high.Name = "high"
	high.Priority = 9
	store.add("gemini", high)

	key, err := newTestSelector(store, testNow).Select(context.Background(), "gemini")
	require.NoError(t, err)
	assert.Equal(t, "high", key.Name)
}

func TestSelectHeadroomBoundary(t *testing.T) {
	store := newFakeStore()
	key := activeKey(testNow)
	key.DailyLimit = limit(3)
	key.DailyUsed = 2
	store.add("gemini", key)

	sel := newTestSelector(store, testNow)
	rec := NewRecorder(store)
	rec.now = sel.now

	// N-1 uses recorded: still a candidate.
	got, err := sel.Select(context.Background(), "gemini")
	require.NoError(t, err)
	require.NoError(t, rec.Record(context.Background(), got.ID, 100))

	// N uses recorded: excluded.
	_, err = sel.Select(context.Background(), "gemini")
	assert.ErrorIs(t, err, ErrNoKeyAvailable)
}

func TestSelectEagerDailyRollover(t *testing.T) {
	store := newFakeStore()

	key := activeKey(testNow)
	key.DailyLimit = limit(5)
	key.DailyUsed = 5
	key.DailyTokenUsed = 9000
	key.IsRateLimited = true // demoted yesterday
	key.LastResetAt = StartOfDay(testNow).Add(-6 * time.Hour)
	store.add("gemini", key)

	got, err := newTestSelector(store, testNow).Select(context.Background(), "gemini")
	require.NoError(t, err, "stale key should be rolled over and become usable")
	assert.Equal(t, key.ID, got.ID)

	// Physical state was healed, not just the snapshot.
	stored := store.get(key.ID)
	assert.False(t, stored.IsRateLimited)
	assert.Zero(t, stored.DailyUsed)
	assert.Zero(t, stored.DailyTokenUsed)
	assert.Equal(t, testNow, stored.LastResetAt)
}

func TestDailyRolloverIdempotent(t *testing.T) {
	store := newFakeStore()

	key := activeKey(testNow)
	key.DailyUsed = 7
	key.LastResetAt = StartOfDay(testNow).Add(-time.Hour)
	store.add("gemini", key)

	sel := newTestSelector(store, testNow)
	rec := NewRecorder(store)
	rec.now = sel.now

	_, err := sel.Select(context.Background(), "gemini")
	require.NoError(t, err)
	require.NoError(t, rec.Record(context.Background(), key.ID, 50))

	// A later selection the same day must not zero today's counter, even
	// if the rollover write fires again.
	later := testNow.Add(10 * time.Minute)
	_, err = newTestSelector(store, later).Select(context.Background(), "gemini")
	require.NoError(t, err)

	assert.Equal(t, int64(1), store.get(key.ID).DailyUsed)
}

func TestDemotionClearsOnlyViaRollover(t *testing.T) {
	store := newFakeStore()
	key := activeKey(testNow)
	store.add("gemini", key)

	rec := NewRecorder(store)
	rec.now = func() time.Time { return testNow }
	require.NoError(t, rec.MarkRateLimited(context.Background(), key.ID))

	// Excluded for the rest of the day.
	for _, offset := range []time.Duration{time.Minute, 3 * time.Hour, 9 * time.Hour} {
		at := testNow.Add(offset)
		require.True(t, at.Day() == testNow.Day(), "offsets must stay within the day")
		_, err := newTestSelector(store, at).Select(context.Background(), "gemini")
		assert.ErrorIs(t, err, ErrNoKeyAvailable, "demoted key selectable at +%s", offset)
	}

	// Eligible again once the daily boundary is crossed.
	nextDay := StartOfDay(testNow).Add(24*time.Hour + time.Minute)
	got, err := newTestSelector(store, nextDay).Select(context.Background(), "gemini")
	require.NoError(t, err)
	assert.Equal(t, key.ID, got.ID)
}

func TestSelectThrottledKeyUnavailable(t *testing.T) {
	store := newFakeStore()
	key := activeKey(testNow)
	store.add("gemini", key)

	rec := NewRecorder(store)
	rec.now = func() time.Time { return testNow }
	require.NoError(t, rec.MarkRateLimited(context.Background(), key.ID))

	stored := store.get(key.ID)
	require.True(t, stored.IsRateLimited)
	require.NotNil(t, stored.RateLimitedAt)
	assert.Equal(t, testNow, *stored.RateLimitedAt)

	_, err := newTestSelector(store, testNow.Add(time.Minute)).Select(context.Background(), "gemini")
	assert.ErrorIs(t, err, ErrNoKeyAvailable)
}

func TestSelectProviderScoping(t *testing.T) {
	store := newFakeStore()

	// gemini has no keys, openai has plenty of capacity.
	openaiKey := activeKey(testNow)
	store.add("openai", openaiKey)

	_, err := newTestSelector(store, testNow).Select(context.Background(), "gemini")
	assert.ErrorIs(t, err, ErrNoKeyAvailable, "capacity must not leak across providers")

	key, err := newTestSelector(store, testNow).Select(context.Background(), "openai")
	require.NoError(t, err)
	assert.Equal(t, openaiKey.ID, key.ID)
}

func TestSelectDeterministicTieBreak(t *testing.T) {
	store := newFakeStore()

	older := activeKey(testNow)
	older.Name = "older"
	older.CreatedAt = testNow.Add(-2 * time.Hour)
	store.add("gemini", older)

	newer := activeKey(testNow)
	newer.Name = "newer"
	newer.CreatedAt = testNow.Add(-time.Minute)
	store.add("gemini", newer)

	for i := 0; i < 5; i++ {
		key, err := newTestSelector(store, testNow).Select(context.Background(), "gemini")
		require.NoError(t, err)
		assert.Equal(t, "newer", key.Name)
	}
}
