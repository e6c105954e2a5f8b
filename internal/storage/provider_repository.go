package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"ai_chat/internal/models"
)

const providerColumns = `
	id, name, display_name, provider_type, config, enabled, priority,
	created_at, updated_at`

// ProviderRepository handles provider database operations
type ProviderRepository struct {
	db *DB
}

// NewProviderRepository creates a new provider repository
func NewProviderRepository(db *DB) *ProviderRepository {
	return &ProviderRepository{db: db}
}

// GetByName retrieves a provider by name, served from cache when possible.
func (r *ProviderRepository) GetByName(ctx context.Context, name string) (*models.Provider, error) {
	if cached, ok := r.db.providerCache.Get("name:" + name); ok {
		return cached.(*models.Provider), nil
	}

	var provider models.Provider
	query := fmt.Sprintf("SELECT %s FROM providers WHERE name = $1", providerColumns)

	err := r.db.conn.GetContext(ctx, &provider, query, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}

	r.db.providerCache.Set("name:"+name, &provider)
	return &provider, nil
}

// GetByID retrieves a provider by ID
func (r *ProviderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	var provider models.Provider
	query := fmt.Sprintf("SELECT %s FROM providers WHERE id = $1", providerColumns)

	err := r.db.conn.GetContext(ctx, &provider, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}

	return &provider, nil
}

// List returns all providers ordered by priority then name
func (r *ProviderRepository) List(ctx context.Context) ([]*models.Provider, error) {
	query := fmt.Sprintf("SELECT %s FROM providers ORDER BY priority DESC, name", providerColumns)

	var providers []*models.Provider
	if err := r.db.conn.SelectContext(ctx, &providers, query); err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}

	return providers, nil
}

// Create creates a new provider
func (r *ProviderRepository) Create(ctx context.Context, provider *models.Provider) error {
	query := `
		INSERT INTO providers (id, name, display_name, provider_type, config,
		                       enabled, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	if provider.ID == uuid.Nil {
		provider.ID = uuid.New()
	}

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		provider.ID, provider.Name, provider.DisplayName, provider.ProviderType,
		provider.Config, provider.Enabled, provider.Priority,
	).Scan(&provider.CreatedAt, &provider.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	return nil
}

// Update updates an existing provider
func (r *ProviderRepository) Update(ctx context.Context, provider *models.Provider) error {
	query := `
		UPDATE providers
		SET name = $2, display_name = $3, provider_type = $4, config = $5,
		    enabled = $6, priority = $7, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		provider.ID, provider.Name, provider.DisplayName, provider.ProviderType,
		provider.Config, provider.Enabled, provider.Priority,
	).Scan(&provider.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrProviderNotFound
		}
		return fmt.Errorf("failed to update provider: %w", err)
	}

	r.db.providerCache.Delete("name:" + provider.Name)
	return nil
}

// Delete deletes a provider and, via cascade, its keys and models.
func (r *ProviderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.conn.ExecContext(ctx, "DELETE FROM providers WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete provider: %w", err)
	}
	return requireRowAffected(result, ErrProviderNotFound)
}
