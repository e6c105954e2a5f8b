package providers

import (
	"context"
	"fmt"

	"ai_chat/internal/models"
)

// Role of a canonical chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Part is one piece of a message's content. Adapters convert parts to the
// provider's wire shape; nothing provider-shaped crosses this boundary.
type Part interface {
	isPart()
}

// TextPart is plain text content.
type TextPart struct {
	Text string
}

func (TextPart) isPart() {}

// ImagePart is inline binary image content.
type ImagePart struct {
	MIMEType string
	Data     []byte
}

func (ImagePart) isPart() {}

// Message is the canonical internal representation of one chat turn.
type Message struct {
	Role  Role
	Parts []Part
}

// Text concatenates the message's text parts.
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if t, ok := p.(TextPart); ok {
			out += t.Text
		}
	}
	return out
}

// TextMessage builds a single-part text message.
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Parts: []Part{TextPart{Text: text}}}
}

// Usage is the token accounting a provider reported for one call. All
// fields are 0 when the provider did not report usage.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// Request is one streaming completion call. APIKey is the already-selected,
// already-decrypted credential.
type Request struct {
	Model   string
	System  string
	History []Message
	Message Message
	APIKey  string
}

// Event is one element of a completion stream. Zero or more delta events
// are followed by exactly one terminal event: either Done (with final text,
// usage and citations) or Err. The channel is closed after the terminal
// event.
type Event struct {
	Delta     string
	Done      bool
	Text      string // full accumulated text, set on the Done event
	Usage     Usage
	Citations []models.Citation
	Err       error
}

// Adapter streams completions from one upstream vendor.
type Adapter interface {
	// Name returns the provider type this adapter serves.
	Name() string

	// Stream starts a completion and returns its event channel. Errors
	// returned directly mean the call never started; errors mid-stream
	// arrive as a terminal Err event, already classified (throttling
	// errors satisfy IsThrottle).
	Stream(ctx context.Context, req Request) (<-chan Event, error)

	// Verify checks that a credential is accepted upstream. Used before an
	// administrator persists a new key.
	Verify(ctx context.Context, apiKey string) error
}

// NewAdapter builds the adapter for a provider record.
func NewAdapter(p *models.Provider) (Adapter, error) {
	switch models.ProviderType(p.ProviderType) {
	case models.ProviderTypeGemini:
		return NewGeminiAdapter(), nil
	case models.ProviderTypeOpenAI, models.ProviderTypeClaude, models.ProviderTypeGrok, models.ProviderTypeDeepSeek:
		return NewOpenAIAdapter(p.ProviderType, p.BaseURL()), nil
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", p.ProviderType)
	}
}
