package keypool

import (
	"context"
	"fmt"
	"time"

	"ai_chat/internal/models"
	"ai_chat/internal/utils"
)

// Selector picks the best usable key for a provider.
type Selector struct {
	store  Store
	logger *utils.Logger
	now    func() time.Time
}

// NewSelector creates a selector over the given credential store.
func NewSelector(store Store) *Selector {
	return &Selector{
		store:  store,
		logger: utils.NewLogger("key-selector"),
		now:    time.Now,
	}
}

// Select returns the highest-priority active key with headroom for the
// provider, or ErrNoKeyAvailable.
//
// Candidates whose stored daily window is stale get an eager physical
// rollover before the headroom check, which also self-heals keys demoted
// the previous day. The returned key is usable at the instant of the read;
// no capacity is reserved, so a concurrent request may select the same key
// (accepted soft-limit behavior, see the package comment).
func (s *Selector) Select(ctx context.Context, providerName string) (*models.APIKey, error) {
	keys, err := s.store.ListActiveByProvider(ctx, providerName)
	if err != nil {
		return nil, fmt.Errorf("failed to load keys for provider %q: %w", providerName, err)
	}

	now := s.now()
	dayStart := StartOfDay(now)

	for _, key := range keys {
		if DailyWindowStale(key, now) {
			if err := s.store.ResetWindows(ctx, key.ID, dayStart, now); err != nil {
				s.logger.Error("Failed to roll over key windows", "key_id", key.ID, "error", err)
				continue
			}
			applyRollover(key, now)
		}

		if key.IsRateLimited {
			continue
		}
		if !HasHeadroom(key, now) {
			continue
		}

		return key, nil
	}

	return nil, ErrNoKeyAvailable
}

// applyRollover mirrors the physical reset on the in-memory snapshot so the
// headroom check below sees the rolled-over state.
func applyRollover(key *models.APIKey, now time.Time) {
	key.DailyUsed = 0
	key.MinuteUsed = 0
	key.DailyTokenUsed = 0
	key.MinuteTokenUsed = 0
	key.IsRateLimited = false
	key.RateLimitedAt = nil
	key.LastResetAt = now
	key.LastMinuteResetAt = now
}
