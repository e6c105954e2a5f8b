package keypool

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ai_chat/internal/models"
)

// fakeStore implements Store in memory with the same window semantics as
// the SQL repository: guarded daily reset, CASE-style minute rollover.
type fakeStore struct {
	mu         sync.Mutex
	keys       map[uuid.UUID]*models.APIKey
	providers  map[uuid.UUID]string
	resetCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		keys:      make(map[uuid.UUID]*models.APIKey),
		providers: make(map[uuid.UUID]string),
	}
}

func (s *fakeStore) add(providerName string, key *models.APIKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	s.keys[key.ID] = key
	s.providers[key.ID] = providerName
}

func (s *fakeStore) get(id uuid.UUID) models.APIKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.keys[id]
}

func (s *fakeStore) ListActiveByProvider(_ context.Context, providerName string) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.APIKey
	for id, key := range s.keys {
		if s.providers[id] != providerName || !key.IsActive {
			continue
		}
		snapshot := *key
		out = append(out, &snapshot)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out, nil
}

func (s *fakeStore) ResetWindows(_ context.Context, id uuid.UUID, dayStart, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetCalls++
	key, ok := s.keys[id]
	if !ok || !key.LastResetAt.Before(dayStart) {
		return nil
	}

	key.DailyUsed = 0
	key.MinuteUsed = 0
	key.DailyTokenUsed = 0
	key.MinuteTokenUsed = 0
	key.IsRateLimited = false
	key.RateLimitedAt = nil
	key.LastResetAt = now
	key.LastMinuteResetAt = now
	return nil
}

func (s *fakeStore) ApplyUsage(_ context.Context, id uuid.UUID, tokens int64, minuteStart, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[id]
	if !ok {
		return ErrNoKeyAvailable
	}

	key.DailyUsed++
	key.DailyTokenUsed += tokens
	if key.LastMinuteResetAt.Before(minuteStart) {
		key.MinuteUsed = 1
		key.MinuteTokenUsed = tokens
		key.LastMinuteResetAt = now
	} else {
		key.MinuteUsed++
		key.MinuteTokenUsed += tokens
	}
	used := now
	key.LastUsedAt = &used
	return nil
}

func (s *fakeStore) MarkRateLimited(_ context.Context, id uuid.UUID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[id]
	if !ok {
		return ErrNoKeyAvailable
	}
	key.IsRateLimited = true
	at := now
	key.RateLimitedAt = &at
	return nil
}

func limit(n int64) *int64 {
	return &n
}

// activeKey builds a key whose windows are current as of now.
func activeKey(now time.Time) *models.APIKey {
	return &models.APIKey{
		ID:                uuid.New(),
		Name:              "test-key",
		IsActive:          true,
		LastResetAt:       StartOfDay(now),
		LastMinuteResetAt: StartOfMinute(now),
		CreatedAt:         now.Add(-time.Hour),
	}
}
