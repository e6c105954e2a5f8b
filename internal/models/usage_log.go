package models

import (
	"time"

	"github.com/google/uuid"
)

// Error type codes recorded on failed calls.
const (
	ErrorTypeCapacity  = "CAPACITY_ERROR"
	ErrorTypeRateLimit = "RATE_LIMIT"
	ErrorTypeStreaming = "STREAMING_ERROR"
	ErrorTypeGeneral   = "GENERAL_ERROR"
)

// UsageLog is one structured record per completed or failed provider call.
type UsageLog struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	UserID           uuid.UUID  `db:"user_id" json:"user_id"`
	ConversationID   *uuid.UUID `db:"conversation_id" json:"conversation_id,omitempty"`
	APIKeyID         *uuid.UUID `db:"api_key_id" json:"api_key_id,omitempty"`
	Provider         string     `db:"provider" json:"provider"`
	Model            string     `db:"model" json:"model"`
	PromptTokens     int64      `db:"prompt_tokens" json:"prompt_tokens"`
	CompletionTokens int64      `db:"completion_tokens" json:"completion_tokens"`
	TotalTokens      int64      `db:"total_tokens" json:"total_tokens"`
	LatencyMs        int64      `db:"latency_ms" json:"latency_ms"`
	Success          bool       `db:"success" json:"success"`
	ErrorType        string     `db:"error_type" json:"error_type,omitempty"`
	ErrorDetail      string     `db:"error_detail" json:"error_detail,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}
