package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"ai_chat/internal/models"
)

// GeminiAdapter streams chat completions through the official Gemini SDK.
type GeminiAdapter struct{}

func NewGeminiAdapter() *GeminiAdapter {
	return &GeminiAdapter{}
}

func (a *GeminiAdapter) Name() string {
	return string(models.ProviderTypeGemini)
}

func toGenaiParts(msg Message) []genai.Part {
	parts := make([]genai.Part, 0, len(msg.Parts))
	for _, p := range msg.Parts {
		switch part := p.(type) {
		case TextPart:
			parts = append(parts, genai.Text(part.Text))
		case ImagePart:
			// The SDK wants the bare subtype, "png" not "image/png".
			format := strings.TrimPrefix(part.MIMEType, "image/")
			parts = append(parts, genai.ImageData(format, part.Data))
		}
	}
	return parts
}

// genaiRole maps canonical roles onto the SDK's "user"/"model" vocabulary.
func genaiRole(role Role) string {
	if role == RoleAssistant {
		return "model"
	}
	return "user"
}

func (a *GeminiAdapter) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(req.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(req.Model)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}

	session := model.StartChat()
	session.History = make([]*genai.Content, 0, len(req.History))
	for _, m := range req.History {
		session.History = append(session.History, &genai.Content{
			Role:  genaiRole(m.Role),
			Parts: toGenaiParts(m),
		})
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		defer client.Close()

		var (
			text      strings.Builder
			usage     Usage
			citations []models.Citation
		)

		iter := session.SendMessageStream(ctx, toGenaiParts(req.Message)...)
		for {
			resp, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				events <- Event{Err: fmt.Errorf("gemini stream failed: %w", err)}
				return
			}

			if resp.UsageMetadata != nil {
				usage = Usage{
					PromptTokens:     int64(resp.UsageMetadata.PromptTokenCount),
					CompletionTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
					TotalTokens:      int64(resp.UsageMetadata.TotalTokenCount),
				}
			}

			for _, cand := range resp.Candidates {
				if cand.CitationMetadata != nil {
					citations = append(citations, convertCitations(cand.CitationMetadata.CitationSources)...)
				}
				if cand.Content == nil {
					continue
				}
				for _, part := range cand.Content.Parts {
					if t, ok := part.(genai.Text); ok && t != "" {
						text.WriteString(string(t))
						events <- Event{Delta: string(t)}
					}
				}
			}
		}

		events <- Event{Done: true, Text: text.String(), Usage: usage, Citations: citations}
	}()

	return events, nil
}

func convertCitations(sources []*genai.CitationSource) []models.Citation {
	out := make([]models.Citation, 0, len(sources))
	for _, src := range sources {
		var c models.Citation
		if src.StartIndex != nil {
			c.StartIndex = int(*src.StartIndex)
		}
		if src.EndIndex != nil {
			c.EndIndex = int(*src.EndIndex)
		}
		if src.URI != nil {
			c.URL = *src.URI
			c.Source = *src.URI
		}
		out = append(out, c)
	}
	return out
}

// Verify lists available models with the given key.
func (a *GeminiAdapter) Verify(ctx context.Context, apiKey string) error {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return fmt.Errorf("failed to create gemini client: %w", err)
	}
	defer client.Close()

	iter := client.ListModels(ctx)
	if _, err := iter.Next(); err != nil && err != iterator.Done {
		return fmt.Errorf("failed to verify gemini key: %w", err)
	}
	return nil
}
