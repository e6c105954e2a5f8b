package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai_chat/internal/auth"
	"ai_chat/internal/chat"
	"ai_chat/internal/middleware"
	"ai_chat/internal/models"
	"ai_chat/internal/providers"
	"ai_chat/internal/ratelimit"
)

type stubConversations struct {
	convs    map[uuid.UUID]*models.Conversation
	messages []*models.Message
}

func (s *stubConversations) Get(ctx context.Context, id, userID uuid.UUID) (*models.Conversation, error) {
	conv, ok := s.convs[id]
	if !ok || conv.UserID != userID {
		return nil, errors.New("not found")
	}
	return conv, nil
}

func (s *stubConversations) Create(ctx context.Context, conv *models.Conversation) error {
	s.convs[conv.ID] = conv
	return nil
}

func (s *stubConversations) AppendMessage(ctx context.Context, msg *models.Message) error {
	s.messages = append(s.messages, msg)
	return nil
}

func (s *stubConversations) RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]*models.Message, error) {
	return nil, nil
}

type stubModels struct {
	model *models.AIModel
}

func (s *stubModels) GetActiveByName(ctx context.Context, name string) (*models.AIModel, error) {
	if s.model == nil || s.model.Name != name {
		return nil, errors.New("not found")
	}
	return s.model, nil
}

func (s *stubModels) GetDefault(ctx context.Context) (*models.AIModel, error) {
	if s.model == nil {
		return nil, errors.New("not found")
	}
	return s.model, nil
}

type stubProviders struct {
	provider *models.Provider
}

func (s *stubProviders) GetByID(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	return s.provider, nil
}

type stubSelector struct {
	key *models.APIKey
}

func (s *stubSelector) Select(ctx context.Context, providerName string) (*models.APIKey, error) {
	return s.key, nil
}

type stubRecorder struct {
	mu       sync.Mutex
	recorded []int64
}

func (s *stubRecorder) Record(ctx context.Context, keyID uuid.UUID, tokenCount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded = append(s.recorded, tokenCount)
	return nil
}

func (s *stubRecorder) MarkRateLimited(ctx context.Context, keyID uuid.UUID) error { return nil }

type stubDecryptor struct{}

func (stubDecryptor) Decrypt(ciphertextBase64 string) ([]byte, error) {
	return []byte("plaintext"), nil
}

type stubUsageSink struct {
	mu      sync.Mutex
	records []*models.UsageLog
}

func (s *stubUsageSink) Enqueue(ctx context.Context, record *models.UsageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// slowAdapter emits one delta, then blocks on release before finishing. It
// finishes with a usage-bearing done event unless its stream context was
// cancelled in the meantime.
type slowAdapter struct {
	firstChunk chan struct{}
	release    chan struct{}
	sawCancel  bool
}

func newSlowAdapter() *slowAdapter {
	return &slowAdapter{
		firstChunk: make(chan struct{}),
		release:    make(chan struct{}),
	}
}

func (a *slowAdapter) Name() string { return "slow" }

func (a *slowAdapter) Stream(ctx context.Context, req providers.Request) (<-chan providers.Event, error) {
	ch := make(chan providers.Event)
	go func() {
		defer close(ch)
		ch <- providers.Event{Delta: "Hel"}
		close(a.firstChunk)
		<-a.release
		if ctx.Err() != nil {
			a.sawCancel = true
			ch <- providers.Event{Err: ctx.Err()}
			return
		}
		ch <- providers.Event{Done: true, Text: "Hello", Usage: providers.Usage{PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6}}
	}()
	return ch, nil
}

func (a *slowAdapter) Verify(ctx context.Context, apiKey string) error { return nil }

type handlerFixture struct {
	handler *ChatHandler
	convs   *stubConversations
	rec     *stubRecorder
	usage   *stubUsageSink
	adapter *slowAdapter
	userID  uuid.UUID
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	providerID := uuid.New()
	model := &models.AIModel{ID: uuid.New(), ProviderID: providerID, Name: "gemini-2.0-flash", IsActive: true}
	provider := &models.Provider{ID: providerID, Name: "gemini", ProviderType: "gemini", Enabled: true}
	key := &models.APIKey{ID: uuid.New(), ProviderID: providerID, EncryptedKey: "ciphertext", IsActive: true}

	f := &handlerFixture{
		convs:   &stubConversations{convs: make(map[uuid.UUID]*models.Conversation)},
		rec:     &stubRecorder{},
		usage:   &stubUsageSink{},
		adapter: newSlowAdapter(),
		userID:  uuid.New(),
	}

	orch := chat.NewOrchestrator(chat.Config{
		Conversations: f.convs,
		Models:        &stubModels{model: model},
		Providers:     &stubProviders{provider: provider},
		Selector:      &stubSelector{key: key},
		Recorder:      f.rec,
		Decryptor:     stubDecryptor{},
		Usage:         f.usage,
		AdapterFor:    func(p *models.Provider) (providers.Adapter, error) { return f.adapter, nil },
	})

	f.handler = NewChatHandler(orch, ratelimit.NewNoopLimiter(), 0)
	return f
}

func (f *handlerFixture) request(ctx context.Context, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	claims := &auth.Claims{UserID: f.userID, Email: "user@example.com", Role: models.RoleUser}
	return req.WithContext(context.WithValue(ctx, middleware.ClaimsKey, claims))
}

func TestSendSurvivesClientDisconnect(t *testing.T) {
	f := newHandlerFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.handler.Send(w, f.request(ctx, `{"content":"say hello"}`))
	}()

	// Disconnect after the first chunk, then let the provider continue.
	<-f.adapter.firstChunk
	cancel()
	close(f.adapter.release)
	<-done

	// The provider stream was not aborted by the disconnect.
	assert.False(t, f.adapter.sawCancel, "provider stream must finish naturally after a disconnect")

	// The full turn still landed: assistant reply persisted, key usage
	// accounted, successful usage record emitted.
	require.Len(t, f.convs.messages, 2)
	assert.Equal(t, models.MessageRoleAssistant, f.convs.messages[1].Role)
	assert.Equal(t, "Hello", f.convs.messages[1].Content)
	assert.Equal(t, []int64{6}, f.rec.recorded)
	require.Len(t, f.usage.records, 1)
	assert.True(t, f.usage.records[0].Success)

	assert.Contains(t, w.Body.String(), "event: done")
}

func TestSendUnknownModelReturnsNotFound(t *testing.T) {
	f := newHandlerFixture(t)

	w := httptest.NewRecorder()
	f.handler.Send(w, f.request(context.Background(), `{"content":"hi","model":"nope"}`))

	// No stream was opened, so the failure maps to a real status code.
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "Model not found", resp.Error)
}

func TestSendStreamStartsWithOK(t *testing.T) {
	f := newHandlerFixture(t)
	close(f.adapter.release)

	w := httptest.NewRecorder()
	f.handler.Send(w, f.request(context.Background(), `{"content":"hi"}`))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, "event: start")
	assert.Contains(t, body, "event: chunk")
	assert.Contains(t, body, "event: done")
}
