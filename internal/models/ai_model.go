package models

import (
	"time"

	"github.com/google/uuid"
)

// AIModel is a callable model name under a provider. Chat requests select a
// model, from which the provider (and therefore the key pool) is derived.
type AIModel struct {
	ID          uuid.UUID `db:"id" json:"id"`
	ProviderID  uuid.UUID `db:"provider_id" json:"provider_id"`
	Name        string    `db:"name" json:"name"`
	DisplayName string    `db:"display_name" json:"display_name"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	// At most one model is flagged as the system-wide default.
	IsDefault bool      `db:"is_default" json:"is_default"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
