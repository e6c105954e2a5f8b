package keypool

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Recorder applies a completed call's cost to a key's counters. It is the
// only writer of the usage counters.
type Recorder struct {
	store Store
	now   func() time.Time
}

// NewRecorder creates a usage recorder over the given credential store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Record charges one request and tokenCount tokens to the key. The minute
// rollover is lazy: the store compares the key's current minute-window
// timestamp against the start of this minute and either resets the minute
// counters to exactly this call's amounts or accumulates, all inside one
// atomic update. Call exactly once per completed provider call.
//
// A storage failure here is an accounting loss the caller may log and
// swallow; the user-visible response must not be blocked on it.
func (r *Recorder) Record(ctx context.Context, keyID uuid.UUID, tokenCount int64) error {
	now := r.now()
	if err := r.store.ApplyUsage(ctx, keyID, tokenCount, StartOfMinute(now), now); err != nil {
		return fmt.Errorf("failed to record usage for key %s: %w", keyID, err)
	}
	return nil
}

// MarkRateLimited demotes a key after an upstream throttling signal. The
// key stays out of selection until the next daily rollover or a manual
// clear; there is no per-key backoff by design, since provider throttling
// tracks the same daily quota windows the pool already accounts for.
func (r *Recorder) MarkRateLimited(ctx context.Context, keyID uuid.UUID) error {
	if err := r.store.MarkRateLimited(ctx, keyID, r.now()); err != nil {
		return fmt.Errorf("failed to mark key %s rate limited: %w", keyID, err)
	}
	return nil
}
