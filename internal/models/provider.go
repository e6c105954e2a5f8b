package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ProviderType enumerates supported upstream vendors.
type ProviderType string

const (
	ProviderTypeGemini   ProviderType = "gemini"
	ProviderTypeOpenAI   ProviderType = "openai"
	ProviderTypeClaude   ProviderType = "claude"
	ProviderTypeGrok     ProviderType = "grok"
	ProviderTypeDeepSeek ProviderType = "deepseek"
)

// Provider is a named upstream LLM vendor. A provider groups one or more
// API keys plus the models it exposes.
type Provider struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	DisplayName  string          `db:"display_name" json:"display_name"`
	ProviderType string          `db:"provider_type" json:"provider_type"`
	Config       json.RawMessage `db:"config" json:"config,omitempty"` // e.g. {"base_url": "..."}
	Enabled      bool            `db:"enabled" json:"enabled"`
	Priority     int             `db:"priority" json:"priority"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// BaseURL extracts an optional base_url override from the provider config.
func (p *Provider) BaseURL() string {
	if len(p.Config) == 0 {
		return ""
	}
	var cfg struct {
		BaseURL string `json:"base_url"`
	}
	if err := json.Unmarshal(p.Config, &cfg); err != nil {
		return ""
	}
	return cfg.BaseURL
}
