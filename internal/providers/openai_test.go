package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIStream(t *testing.T) {
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		chunks := []string{
			`{"choices":[{"delta":{"content":"Hel"}}]}`,
			`{"choices":[{"delta":{"content":"lo"}}]}`,
			`{"choices":[],"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}}`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter("openai", server.URL)
	events, err := adapter.Stream(context.Background(), Request{
		Model:   "gpt-4o-mini",
		System:  "be brief",
		History: []Message{TextMessage(RoleUser, "hi"), TextMessage(RoleAssistant, "hey")},
		Message: TextMessage(RoleUser, "say hello"),
		APIKey:  "sk-test",
	})
	require.NoError(t, err)

	var deltas []string
	var done Event
	for ev := range events {
		require.NoError(t, ev.Err)
		if ev.Done {
			done = ev
			continue
		}
		deltas = append(deltas, ev.Delta)
	}

	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	assert.True(t, done.Done)
	assert.Equal(t, "Hello", done.Text)
	assert.Equal(t, int64(12), done.Usage.PromptTokens)
	assert.Equal(t, int64(3), done.Usage.CompletionTokens)
	assert.Equal(t, int64(15), done.Usage.TotalTokens)

	assert.Equal(t, true, gotBody["stream"])
	messages := gotBody["messages"].([]any)
	require.Len(t, messages, 4)
	first := messages[0].(map[string]any)
	assert.Equal(t, "system", first["role"])
	assert.Equal(t, "be brief", first["content"])
	last := messages[3].(map[string]any)
	assert.Equal(t, "user", last["role"])
	assert.Equal(t, "say hello", last["content"])
}

func TestOpenAIStreamRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limit reached"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter("openai", server.URL)
	_, err := adapter.Stream(context.Background(), Request{
		Model:   "gpt-4o-mini",
		Message: TextMessage(RoleUser, "hi"),
		APIKey:  "sk-test",
	})
	require.Error(t, err)
	assert.True(t, IsThrottle(err))
}

func TestOpenAIVerify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer sk-good" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter("openai", server.URL)
	assert.NoError(t, adapter.Verify(context.Background(), "sk-good"))
	assert.Error(t, adapter.Verify(context.Background(), "sk-bad"))
}

func TestNewOpenAIAdapterDefaultBaseURL(t *testing.T) {
	tests := []struct {
		providerType string
		want         string
	}{
		{"openai", "https://api.openai.com/v1"},
		{"grok", "https://api.x.ai/v1"},
		{"deepseek", "https://api.deepseek.com/v1"},
	}
	for _, tt := range tests {
		adapter := NewOpenAIAdapter(tt.providerType, "")
		assert.Equal(t, tt.want, adapter.baseURL)
	}

	custom := NewOpenAIAdapter("openai", "https://proxy.example.com/v1/")
	assert.Equal(t, "https://proxy.example.com/v1", custom.baseURL)
}
