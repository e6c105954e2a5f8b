package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ai_chat/internal/models"
)

const apiKeyColumns = `
	id, provider_id, name, encrypted_key, is_active, is_rate_limited,
	rate_limited_at, priority, daily_limit, daily_used, minute_limit,
	minute_used, daily_token_limit, daily_token_used, minute_token_limit,
	minute_token_used, last_reset_at, last_minute_reset_at, last_used_at,
	created_at, updated_at`

// APIKeyRepository handles the credential store. Usage counters are only
// mutated through ApplyUsage, ResetWindows and MarkRateLimited so all writes
// stay atomic on the database side.
type APIKeyRepository struct {
	db *DB
}

// NewAPIKeyRepository creates a new API key repository
func NewAPIKeyRepository(db *DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// GetByID retrieves a key by ID
func (r *APIKeyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.APIKey, error) {
	var key models.APIKey
	query := fmt.Sprintf("SELECT %s FROM api_keys WHERE id = $1", apiKeyColumns)

	err := r.db.conn.GetContext(ctx, &key, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}

	return &key, nil
}

// ListActiveByProvider returns all active keys for a provider, best first
// (priority descending, newest as tie-break). Rate-limited keys are included
// so the selector's eager daily rollover can clear yesterday's demotions.
func (r *APIKeyRepository) ListActiveByProvider(ctx context.Context, providerName string) ([]*models.APIKey, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM api_keys
		WHERE is_active = true
		  AND provider_id = (SELECT id FROM providers WHERE name = $1)
		ORDER BY priority DESC, created_at DESC
	`, apiKeyColumns)

	var keys []*models.APIKey
	if err := r.db.conn.SelectContext(ctx, &keys, query, providerName); err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}

	return keys, nil
}

// ListByProvider returns every key of a provider, for the admin console.
func (r *APIKeyRepository) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*models.APIKey, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM api_keys
		WHERE provider_id = $1
		ORDER BY priority DESC, created_at DESC
	`, apiKeyColumns)

	var keys []*models.APIKey
	if err := r.db.conn.SelectContext(ctx, &keys, query, providerID); err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}

	return keys, nil
}

// Create persists a new key. The credential must already be encrypted.
func (r *APIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	query := `
		INSERT INTO api_keys (id, provider_id, name, encrypted_key, is_active,
		                      priority, daily_limit, minute_limit,
		                      daily_token_limit, minute_token_limit,
		                      last_reset_at, last_minute_reset_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING last_reset_at, last_minute_reset_at, created_at, updated_at
	`

	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		key.ID, key.ProviderID, key.Name, key.EncryptedKey, key.IsActive,
		key.Priority, key.DailyLimit, key.MinuteLimit,
		key.DailyTokenLimit, key.MinuteTokenLimit,
	).Scan(&key.LastResetAt, &key.LastMinuteResetAt, &key.CreatedAt, &key.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}

	return nil
}

// SetActive enables or disables a key.
func (r *APIKeyRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	query := "UPDATE api_keys SET is_active = $2, updated_at = now() WHERE id = $1"
	result, err := r.db.conn.ExecContext(ctx, query, id, active)
	if err != nil {
		return fmt.Errorf("failed to update API key: %w", err)
	}
	return requireRowAffected(result, ErrAPIKeyNotFound)
}

// Delete removes a key.
func (r *APIKeyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.conn.ExecContext(ctx, "DELETE FROM api_keys WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete API key: %w", err)
	}
	return requireRowAffected(result, ErrAPIKeyNotFound)
}

// ResetWindows performs the physical daily rollover: zero every usage
// counter, clear the rate-limited flag and advance both window timestamps.
// The dayStart guard makes the rollover idempotent within a calendar day:
// a second call after counters were already reset (and possibly incremented
// again) is a no-op.
func (r *APIKeyRepository) ResetWindows(ctx context.Context, id uuid.UUID, dayStart, now time.Time) error {
	query := `
		UPDATE api_keys
		SET daily_used = 0,
		    minute_used = 0,
		    daily_token_used = 0,
		    minute_token_used = 0,
		    is_rate_limited = false,
		    rate_limited_at = NULL,
		    last_reset_at = $3,
		    last_minute_reset_at = $3,
		    updated_at = $3
		WHERE id = $1 AND last_reset_at < $2
	`

	if _, err := r.db.conn.ExecContext(ctx, query, id, dayStart, now); err != nil {
		return fmt.Errorf("failed to reset API key windows: %w", err)
	}

	return nil
}

// ApplyUsage records one completed call: the daily counters are always
// incremented, while the minute counters either roll over to exactly this
// call's amounts or accumulate, decided against the stored minute window
// inside a single UPDATE so concurrent recorders cannot lose updates.
func (r *APIKeyRepository) ApplyUsage(ctx context.Context, id uuid.UUID, tokens int64, minuteStart, now time.Time) error {
	query := `
		UPDATE api_keys
		SET daily_used = daily_used + 1,
		    daily_token_used = daily_token_used + $2,
		    minute_used = CASE WHEN last_minute_reset_at < $3 THEN 1 ELSE minute_used + 1 END,
		    minute_token_used = CASE WHEN last_minute_reset_at < $3 THEN $2 ELSE minute_token_used + $2 END,
		    last_minute_reset_at = CASE WHEN last_minute_reset_at < $3 THEN $4 ELSE last_minute_reset_at END,
		    last_used_at = $4,
		    updated_at = $4
		WHERE id = $1
	`

	result, err := r.db.conn.ExecContext(ctx, query, id, tokens, minuteStart, now)
	if err != nil {
		return fmt.Errorf("failed to apply API key usage: %w", err)
	}

	return requireRowAffected(result, ErrAPIKeyNotFound)
}

// MarkRateLimited demotes a key after upstream throttling. Usage counters
// are left untouched; the flag clears on the next daily rollover or a manual
// admin action.
func (r *APIKeyRepository) MarkRateLimited(ctx context.Context, id uuid.UUID, now time.Time) error {
	query := `
		UPDATE api_keys
		SET is_rate_limited = true, rate_limited_at = $2, updated_at = $2
		WHERE id = $1
	`

	result, err := r.db.conn.ExecContext(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("failed to mark API key rate limited: %w", err)
	}

	return requireRowAffected(result, ErrAPIKeyNotFound)
}

// ClearRateLimited restores a demoted key ahead of the daily rollover.
func (r *APIKeyRepository) ClearRateLimited(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE api_keys
		SET is_rate_limited = false, rate_limited_at = NULL, updated_at = now()
		WHERE id = $1
	`

	result, err := r.db.conn.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to clear API key rate limit: %w", err)
	}

	return requireRowAffected(result, ErrAPIKeyNotFound)
}

func requireRowAffected(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
