// Package keypool selects upstream provider credentials and enforces their
// daily and per-minute request/token budgets.
//
// Limits are advisory soft caps meant to avoid upstream 429s, not hard
// admission control: the selector's headroom read and the recorder's usage
// write are deliberately not transactional together, so two concurrent
// requests admitted right at a boundary can push a key slightly over its
// configured limit. Strict enforcement would need a conditional atomic
// increment reserving capacity at selection time, with the selector falling
// through to the next-priority key on failure; the Store interface leaves
// room for that but it is not the default behavior.
package keypool

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"ai_chat/internal/models"
)

// ErrNoKeyAvailable is returned when a provider has no active,
// non-rate-limited key with headroom. Callers must treat this as a capacity
// condition, distinct from provider or network errors.
var ErrNoKeyAvailable = errors.New("no API key available")

// Store is the credential persistence the pool needs. All counter mutation
// happens inside these calls as atomic database updates; the pool never
// writes counters from values it read earlier.
type Store interface {
	// ListActiveByProvider returns active keys for a provider ordered by
	// priority descending then created-at descending. Rate-limited keys are
	// included so the daily rollover can clear stale demotions.
	ListActiveByProvider(ctx context.Context, providerName string) ([]*models.APIKey, error)

	// ResetWindows performs the physical daily rollover for one key: zero
	// all usage counters, clear the rate-limited flag, advance both window
	// timestamps. Must be a no-op when last_reset_at >= dayStart.
	ResetWindows(ctx context.Context, id uuid.UUID, dayStart, now time.Time) error

	// ApplyUsage atomically applies one call's cost. Minute counters reset
	// to exactly this call's amounts when the stored minute window predates
	// minuteStart, otherwise they accumulate.
	ApplyUsage(ctx context.Context, id uuid.UUID, tokens int64, minuteStart, now time.Time) error

	// MarkRateLimited demotes a key until the next daily rollover.
	MarkRateLimited(ctx context.Context, id uuid.UUID, now time.Time) error
}
