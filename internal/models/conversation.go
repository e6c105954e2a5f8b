package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message roles as stored in conversation history.
const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

// Conversation is a chat thread owned by one user.
type Conversation struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Title     string    `db:"title" json:"title"`
	Model     string    `db:"model" json:"model"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Citation is grounding metadata a provider attached to a response. Offsets
// index into the full response text; zero values mean the provider did not
// report offsets.
type Citation struct {
	Source     string `json:"source"`
	URL        string `json:"url,omitempty"`
	StartIndex int    `json:"start_index,omitempty"`
	EndIndex   int    `json:"end_index,omitempty"`
}

// CitationList stores citations as a JSONB column.
type CitationList []Citation

// Value implements driver.Valuer
func (c CitationList) Value() (driver.Value, error) {
	if len(c) == 0 {
		return nil, nil
	}
	return json.Marshal(c)
}

// Scan implements sql.Scanner
func (c *CitationList) Scan(src interface{}) error {
	if src == nil {
		*c = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into CitationList", src)
	}
	return json.Unmarshal(b, c)
}

// Message is one turn in a conversation.
type Message struct {
	ID             uuid.UUID    `db:"id" json:"id"`
	ConversationID uuid.UUID    `db:"conversation_id" json:"conversation_id"`
	Role           string       `db:"role" json:"role"`
	Content        string       `db:"content" json:"content"`
	Model          string       `db:"model" json:"model,omitempty"`
	Citations      CitationList `db:"citations" json:"citations,omitempty"`
	PromptTokens   int64        `db:"prompt_tokens" json:"prompt_tokens,omitempty"`
	OutputTokens   int64        `db:"output_tokens" json:"output_tokens,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
}
