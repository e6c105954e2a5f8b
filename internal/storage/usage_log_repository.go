package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"ai_chat/internal/models"
)

// UsageLogRepository persists per-call usage and error records.
type UsageLogRepository struct {
	db *DB
}

// NewUsageLogRepository creates a new usage log repository
func NewUsageLogRepository(db *DB) *UsageLogRepository {
	return &UsageLogRepository{db: db}
}

// InsertBatch writes a batch of usage logs in one transaction.
func (r *UsageLogRepository) InsertBatch(ctx context.Context, logs []*models.UsageLog) error {
	if len(logs) == 0 {
		return nil
	}

	tx, err := r.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := `
		INSERT INTO usage_logs (id, user_id, conversation_id, api_key_id,
		                        provider, model, prompt_tokens, completion_tokens,
		                        total_tokens, latency_ms, success, error_type,
		                        error_detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	for _, l := range logs {
		if l.ID == uuid.Nil {
			l.ID = uuid.New()
		}
		if _, err := tx.ExecContext(ctx, query,
			l.ID, l.UserID, l.ConversationID, l.APIKeyID,
			l.Provider, l.Model, l.PromptTokens, l.CompletionTokens,
			l.TotalTokens, l.LatencyMs, l.Success, l.ErrorType,
			l.ErrorDetail, l.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert usage log: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit usage logs: %w", err)
	}

	return nil
}

// ListByUser returns a user's recent usage logs.
func (r *UsageLogRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.UsageLog, error) {
	query := `
		SELECT id, user_id, conversation_id, api_key_id, provider, model,
		       prompt_tokens, completion_tokens, total_tokens, latency_ms,
		       success, error_type, error_detail, created_at
		FROM usage_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	var logs []*models.UsageLog
	if err := r.db.conn.SelectContext(ctx, &logs, query, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to list usage logs: %w", err)
	}

	return logs, nil
}
