package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey is one upstream provider credential with its quota bookkeeping.
//
// All limit fields are pointers: NULL means unlimited on that axis. Usage
// counters are only written by the usage recorder (atomic increments) and the
// selector's eager window rollover (resets). Application code must never
// read-modify-write them.
type APIKey struct {
	ID         uuid.UUID `db:"id" json:"id"`
	ProviderID uuid.UUID `db:"provider_id" json:"provider_id"`
	Name       string    `db:"name" json:"name"`

	// The provider credential, AES-GCM encrypted at rest. Decrypted only
	// transiently for an outbound call, never serialized to clients.
	EncryptedKey string `db:"encrypted_key" json:"-"`

	IsActive      bool       `db:"is_active" json:"is_active"`
	IsRateLimited bool       `db:"is_rate_limited" json:"is_rate_limited"`
	RateLimitedAt *time.Time `db:"rate_limited_at" json:"rate_limited_at,omitempty"`

	// Higher priority keys are preferred by the selector.
	Priority int `db:"priority" json:"priority"`

	DailyLimit       *int64 `db:"daily_limit" json:"daily_limit,omitempty"`
	DailyUsed        int64  `db:"daily_used" json:"daily_used"`
	MinuteLimit      *int64 `db:"minute_limit" json:"minute_limit,omitempty"`
	MinuteUsed       int64  `db:"minute_used" json:"minute_used"`
	DailyTokenLimit  *int64 `db:"daily_token_limit" json:"daily_token_limit,omitempty"`
	DailyTokenUsed   int64  `db:"daily_token_used" json:"daily_token_used"`
	MinuteTokenLimit *int64 `db:"minute_token_limit" json:"minute_token_limit,omitempty"`
	MinuteTokenUsed  int64  `db:"minute_token_used" json:"minute_token_used"`

	LastResetAt       time.Time  `db:"last_reset_at" json:"last_reset_at"`
	LastMinuteResetAt time.Time  `db:"last_minute_reset_at" json:"last_minute_reset_at"`
	LastUsedAt        *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
