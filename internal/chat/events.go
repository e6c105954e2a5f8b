package chat

import (
	"github.com/google/uuid"

	"ai_chat/internal/models"
)

// StartEvent opens a response stream, telling the client which
// conversation and model the reply belongs to.
type StartEvent struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Model          string    `json:"model"`
}

// ChunkEvent carries one streamed text fragment.
type ChunkEvent struct {
	Delta string `json:"delta"`
}

// DoneEvent closes a successful stream.
type DoneEvent struct {
	MessageID    uuid.UUID         `json:"message_id"`
	PromptTokens int64             `json:"prompt_tokens"`
	OutputTokens int64             `json:"output_tokens"`
	Citations    []models.Citation `json:"citations,omitempty"`
}

// ErrorEvent closes a failed stream.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Emitter delivers stream events to the client. Implementations must
// tolerate being called after the client disconnected.
type Emitter interface {
	Start(ev StartEvent) error
	Chunk(ev ChunkEvent) error
	Done(ev DoneEvent) error
	Error(ev ErrorEvent) error
}
