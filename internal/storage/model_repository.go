package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"ai_chat/internal/models"
)

const modelColumns = `
	id, provider_id, name, display_name, is_active, is_default,
	created_at, updated_at`

// ModelRepository handles AI model records and default-model resolution.
type ModelRepository struct {
	db *DB
}

// NewModelRepository creates a new model repository
func NewModelRepository(db *DB) *ModelRepository {
	return &ModelRepository{db: db}
}

// GetActiveByName retrieves an active model by its callable name.
func (r *ModelRepository) GetActiveByName(ctx context.Context, name string) (*models.AIModel, error) {
	if cached, ok := r.db.modelCache.Get("name:" + name); ok {
		return cached.(*models.AIModel), nil
	}

	var model models.AIModel
	query := fmt.Sprintf("SELECT %s FROM ai_models WHERE name = $1 AND is_active = true", modelColumns)

	err := r.db.conn.GetContext(ctx, &model, query, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("failed to get model: %w", err)
	}

	r.db.modelCache.Set("name:"+name, &model)
	return &model, nil
}

// GetDefault returns the admin-configured default model, falling back to the
// first active model when no default is flagged.
func (r *ModelRepository) GetDefault(ctx context.Context) (*models.AIModel, error) {
	var model models.AIModel
	query := fmt.Sprintf(`
		SELECT %s FROM ai_models
		WHERE is_active = true
		ORDER BY is_default DESC, created_at ASC
		LIMIT 1
	`, modelColumns)

	err := r.db.conn.GetContext(ctx, &model, query)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("failed to get default model: %w", err)
	}

	return &model, nil
}

// List returns all models, optionally restricted to one provider.
func (r *ModelRepository) List(ctx context.Context, providerID *uuid.UUID) ([]*models.AIModel, error) {
	var aiModels []*models.AIModel
	var err error

	if providerID != nil {
		query := fmt.Sprintf("SELECT %s FROM ai_models WHERE provider_id = $1 ORDER BY name", modelColumns)
		err = r.db.conn.SelectContext(ctx, &aiModels, query, *providerID)
	} else {
		query := fmt.Sprintf("SELECT %s FROM ai_models ORDER BY name", modelColumns)
		err = r.db.conn.SelectContext(ctx, &aiModels, query)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	return aiModels, nil
}

// Create creates a new model
func (r *ModelRepository) Create(ctx context.Context, model *models.AIModel) error {
	query := `
		INSERT INTO ai_models (id, provider_id, name, display_name, is_active, is_default)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	if model.ID == uuid.Nil {
		model.ID = uuid.New()
	}

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		model.ID, model.ProviderID, model.Name, model.DisplayName,
		model.IsActive, model.IsDefault,
	).Scan(&model.CreatedAt, &model.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create model: %w", err)
	}

	return nil
}

// SetActive enables or disables a model.
func (r *ModelRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	result, err := r.db.conn.ExecContext(ctx,
		"UPDATE ai_models SET is_active = $2, updated_at = now() WHERE id = $1", id, active)
	if err != nil {
		return fmt.Errorf("failed to update model: %w", err)
	}
	r.db.modelCache.Clear()
	return requireRowAffected(result, ErrModelNotFound)
}

// SetDefault makes one model the system default, clearing any previous flag.
func (r *ModelRepository) SetDefault(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "UPDATE ai_models SET is_default = false WHERE is_default = true"); err != nil {
		return fmt.Errorf("failed to clear default model: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		"UPDATE ai_models SET is_default = true, updated_at = now() WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to set default model: %w", err)
	}
	if err := requireRowAffected(result, ErrModelNotFound); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit default model change: %w", err)
	}

	r.db.modelCache.Clear()
	return nil
}

// Delete deletes a model
func (r *ModelRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.conn.ExecContext(ctx, "DELETE FROM ai_models WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete model: %w", err)
	}
	r.db.modelCache.Clear()
	return requireRowAffected(result, ErrModelNotFound)
}
