package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"ai_chat/internal/models"
)

// ConversationRepository handles conversation and message records.
type ConversationRepository struct {
	db *DB
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(db *DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Get retrieves a conversation owned by a user.
func (r *ConversationRepository) Get(ctx context.Context, id, userID uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	query := `
		SELECT id, user_id, title, model, created_at, updated_at
		FROM conversations
		WHERE id = $1 AND user_id = $2
	`

	err := r.db.conn.GetContext(ctx, &conv, query, id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return &conv, nil
}

// ListByUser returns a user's conversations, most recently updated first.
func (r *ConversationRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Conversation, error) {
	query := `
		SELECT id, user_id, title, model, created_at, updated_at
		FROM conversations
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`

	var convs []*models.Conversation
	if err := r.db.conn.SelectContext(ctx, &convs, query, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	return convs, nil
}

// Create creates a new conversation
func (r *ConversationRepository) Create(ctx context.Context, conv *models.Conversation) error {
	query := `
		INSERT INTO conversations (id, user_id, title, model)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`

	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		conv.ID, conv.UserID, conv.Title, conv.Model,
	).Scan(&conv.CreatedAt, &conv.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}

	return nil
}

// AppendMessage adds a message to a conversation and bumps its updated_at.
func (r *ConversationRepository) AppendMessage(ctx context.Context, msg *models.Message) error {
	query := `
		INSERT INTO messages (id, conversation_id, role, content, model,
		                      citations, prompt_tokens, output_tokens)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.Model,
		msg.Citations, msg.PromptTokens, msg.OutputTokens,
	).Scan(&msg.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	if _, err := r.db.conn.ExecContext(ctx,
		"UPDATE conversations SET updated_at = now() WHERE id = $1", msg.ConversationID); err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}

	return nil
}

// RecentMessages returns the last `limit` messages of a conversation in
// chronological order, for building provider-call context.
func (r *ConversationRepository) RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]*models.Message, error) {
	query := `
		SELECT id, conversation_id, role, content, model, citations,
		       prompt_tokens, output_tokens, created_at
		FROM (
			SELECT * FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`

	var msgs []*models.Message
	if err := r.db.conn.SelectContext(ctx, &msgs, query, conversationID, limit); err != nil {
		return nil, fmt.Errorf("failed to load recent messages: %w", err)
	}

	return msgs, nil
}
