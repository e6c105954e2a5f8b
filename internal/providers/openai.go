package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const openAIStreamTimeout = 300 * time.Second

// defaultBaseURLs maps provider types to their OpenAI-compatible endpoints.
// A provider record's config may override these with a "base_url" entry.
var defaultBaseURLs = map[string]string{
	"openai":   "https://api.openai.com/v1",
	"grok":     "https://api.x.ai/v1",
	"deepseek": "https://api.deepseek.com/v1",
	"claude":   "https://api.anthropic.com/v1",
}

// OpenAIAdapter streams chat completions from any vendor exposing the
// OpenAI-compatible /chat/completions SSE protocol.
type OpenAIAdapter struct {
	providerType string
	baseURL      string
	client       *http.Client
}

// NewOpenAIAdapter builds an adapter for one OpenAI-compatible vendor.
// baseURL may be empty, in which case the vendor's well-known endpoint is
// used.
func NewOpenAIAdapter(providerType, baseURL string) *OpenAIAdapter {
	if baseURL == "" {
		baseURL = defaultBaseURLs[providerType]
	}
	return &OpenAIAdapter{
		providerType: providerType,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			Timeout: openAIStreamTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (a *OpenAIAdapter) Name() string {
	return a.providerType
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

func (a *OpenAIAdapter) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	messages := make([]openAIMessage, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.History {
		messages = append(messages, openAIMessage{Role: string(m.Role), Content: m.Text()})
	}
	messages = append(messages, openAIMessage{Role: string(req.Message.Role), Content: req.Message.Text()})

	payload := map[string]any{
		"model":    req.Model,
		"messages": messages,
		"stream":   true,
		"stream_options": map[string]any{
			"include_usage": true,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	events := make(chan Event)
	go a.consume(resp.Body, events)
	return events, nil
}

// consume reads SSE lines until the [DONE] marker or an error, forwarding
// deltas and finishing with exactly one terminal event.
func (a *OpenAIAdapter) consume(body io.ReadCloser, events chan<- Event) {
	defer close(events)
	defer body.Close()

	var (
		text  strings.Builder
		usage Usage
	)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		data := bytes.TrimPrefix(line, []byte("data: "))
		if bytes.Equal(data, []byte("[DONE]")) {
			break
		}

		var chunk openAIStreamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			continue
		}
		if chunk.Usage != nil {
			usage = Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			delta := chunk.Choices[0].Delta.Content
			text.WriteString(delta)
			events <- Event{Delta: delta}
		}
	}

	if err := scanner.Err(); err != nil {
		events <- Event{Err: fmt.Errorf("failed to read stream: %w", err)}
		return
	}

	events <- Event{Done: true, Text: text.String(), Usage: usage}
}

// Verify lists the vendor's models with the given key. Any authenticated
// 200 means the key works.
func (a *OpenAIAdapter) Verify(ctx context.Context, apiKey string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("invalid API key")
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	return nil
}
