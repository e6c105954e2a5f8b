// Package chat drives one user message from request to streamed reply:
// resolve the conversation and model, select an upstream credential,
// stream the provider's response to the client, then persist the reply
// and account the usage.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ai_chat/internal/keypool"
	"ai_chat/internal/models"
	"ai_chat/internal/providers"
	"ai_chat/internal/utils"
)

const titleLimit = 60

// ErrConversationNotFound is returned when the conversation does not exist
// or belongs to another user.
var ErrConversationNotFound = errors.New("conversation not found")

// ErrModelNotFound is returned when neither the requested model nor a
// default model is available.
var ErrModelNotFound = errors.New("model not found")

// KeySelector picks a usable credential for a provider.
type KeySelector interface {
	Select(ctx context.Context, providerName string) (*models.APIKey, error)
}

// UsageRecorder accounts completed calls and demotes throttled keys.
type UsageRecorder interface {
	Record(ctx context.Context, keyID uuid.UUID, tokenCount int64) error
	MarkRateLimited(ctx context.Context, keyID uuid.UUID) error
}

// ConversationStore persists conversations and their messages.
type ConversationStore interface {
	Get(ctx context.Context, id, userID uuid.UUID) (*models.Conversation, error)
	Create(ctx context.Context, conv *models.Conversation) error
	AppendMessage(ctx context.Context, msg *models.Message) error
	RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]*models.Message, error)
}

// ModelStore resolves model names to records.
type ModelStore interface {
	GetActiveByName(ctx context.Context, name string) (*models.AIModel, error)
	GetDefault(ctx context.Context) (*models.AIModel, error)
}

// ProviderStore resolves provider records.
type ProviderStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Provider, error)
}

// Decryptor recovers plaintext credentials from stored ciphertext.
type Decryptor interface {
	Decrypt(ciphertextBase64 string) ([]byte, error)
}

// UsageSink receives one usage record per attempted call.
type UsageSink interface {
	Enqueue(ctx context.Context, record *models.UsageLog) error
}

// AdapterFactory builds the adapter for a provider record.
type AdapterFactory func(p *models.Provider) (providers.Adapter, error)

// SendRequest is one inbound user message.
type SendRequest struct {
	ConversationID *uuid.UUID
	Content        string
	Model          string
}

// Orchestrator coordinates one chat turn end to end.
type Orchestrator struct {
	conversations ConversationStore
	modelStore    ModelStore
	providerStore ProviderStore
	selector      KeySelector
	recorder      UsageRecorder
	decryptor     Decryptor
	usage         UsageSink
	adapterFor    AdapterFactory
	logger        *utils.Logger

	historyWindow int
	systemPrompt  string
	defaultModel  string

	now func() time.Time
}

// Config wires an Orchestrator.
type Config struct {
	Conversations ConversationStore
	Models        ModelStore
	Providers     ProviderStore
	Selector      KeySelector
	Recorder      UsageRecorder
	Decryptor     Decryptor
	Usage         UsageSink
	AdapterFor    AdapterFactory
	HistoryWindow int
	SystemPrompt  string
	DefaultModel  string
}

// NewOrchestrator creates a chat orchestrator.
func NewOrchestrator(cfg Config) *Orchestrator {
	adapterFor := cfg.AdapterFor
	if adapterFor == nil {
		adapterFor = providers.NewAdapter
	}
	historyWindow := cfg.HistoryWindow
	if historyWindow <= 0 {
		historyWindow = 20
	}
	return &Orchestrator{
		conversations: cfg.Conversations,
		modelStore:    cfg.Models,
		providerStore: cfg.Providers,
		selector:      cfg.Selector,
		recorder:      cfg.Recorder,
		decryptor:     cfg.Decryptor,
		usage:         cfg.Usage,
		adapterFor:    adapterFor,
		logger:        utils.NewLogger("chat"),
		historyWindow: historyWindow,
		systemPrompt:  cfg.SystemPrompt,
		defaultModel:  cfg.DefaultModel,
		now:           time.Now,
	}
}

// Send runs one chat turn, streaming the reply through the emitter. The
// returned error covers request-level failures the handler maps to HTTP
// status codes; provider failures after the stream opened are delivered
// as error events instead.
func (o *Orchestrator) Send(ctx context.Context, userID uuid.UUID, req SendRequest, emitter Emitter) error {
	start := o.now()

	conv, err := o.resolveConversation(ctx, userID, req)
	if err != nil {
		return err
	}

	model, err := o.resolveModel(ctx, req.Model)
	if err != nil {
		return err
	}

	provider, err := o.providerStore.GetByID(ctx, model.ProviderID)
	if err != nil {
		return fmt.Errorf("failed to resolve provider: %w", err)
	}
	// A disabled provider makes all of its models unavailable, whatever
	// their own active flags say.
	if !provider.Enabled {
		return ErrModelNotFound
	}

	// History is captured before the new message lands so the prompt is
	// not duplicated in it.
	history, err := o.conversations.RecentMessages(ctx, conv.ID, o.historyWindow)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	userMsg := &models.Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		Role:           models.MessageRoleUser,
		Content:        req.Content,
		CreatedAt:      o.now(),
	}
	if err := o.conversations.AppendMessage(ctx, userMsg); err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	key, err := o.selector.Select(ctx, provider.Name)
	if err != nil {
		if errors.Is(err, keypool.ErrNoKeyAvailable) {
			o.recordUsage(ctx, usageRecord{
				userID: userID, conv: conv, key: nil,
				provider: provider.Name, model: model.Name,
				start: start, errType: models.ErrorTypeCapacity,
				detail: err.Error(),
			})
			o.emitError(emitter, models.ErrorTypeCapacity,
				"All credentials for this provider are at capacity. Try again later.")
			return nil
		}
		return fmt.Errorf("failed to select key: %w", err)
	}

	plaintext, err := o.decryptor.Decrypt(key.EncryptedKey)
	if err != nil {
		return fmt.Errorf("failed to decrypt credential: %w", err)
	}

	adapter, err := o.adapterFor(provider)
	if err != nil {
		return fmt.Errorf("failed to build adapter: %w", err)
	}

	events, err := adapter.Stream(ctx, providers.Request{
		Model:   model.Name,
		System:  o.systemPrompt,
		History: toProviderHistory(history),
		Message: providers.TextMessage(providers.RoleUser, req.Content),
		APIKey:  string(plaintext),
	})
	if err != nil {
		o.failCall(ctx, emitter, provider, model, conv, userID, key, start, err)
		return nil
	}

	if err := emitter.Start(StartEvent{ConversationID: conv.ID, Model: model.Name}); err != nil {
		o.logger.Debug("Client gone before stream start", "conversation", conv.ID)
	}

	o.pump(ctx, emitter, events, callContext{
		userID: userID, conv: conv, key: key,
		provider: provider, model: model, start: start,
	})
	return nil
}

type callContext struct {
	userID   uuid.UUID
	conv     *models.Conversation
	key      *models.APIKey
	provider *models.Provider
	model    *models.AIModel
	start    time.Time
}

// pump forwards stream events to the client and finishes the call on the
// terminal event.
func (o *Orchestrator) pump(ctx context.Context, emitter Emitter, events <-chan providers.Event, call callContext) {
	for ev := range events {
		switch {
		case ev.Err != nil:
			// Partial output is discarded; the turn is recorded as failed.
			o.failCall(ctx, emitter, call.provider, call.model, call.conv, call.userID, call.key, call.start, ev.Err)
			return

		case ev.Done:
			o.completeCall(ctx, emitter, call, ev)
			return

		default:
			if err := emitter.Chunk(ChunkEvent{Delta: ev.Delta}); err != nil {
				// Client disconnected; keep draining so accounting still
				// happens on the terminal event.
				o.logger.Debug("Client disconnected mid-stream", "conversation", call.conv.ID)
			}
		}
	}
}

// completeCall persists the assistant reply and accounts the usage.
func (o *Orchestrator) completeCall(ctx context.Context, emitter Emitter, call callContext, ev providers.Event) {
	assistantMsg := &models.Message{
		ID:             uuid.New(),
		ConversationID: call.conv.ID,
		Role:           models.MessageRoleAssistant,
		Content:        ev.Text,
		Model:          call.model.Name,
		Citations:      models.CitationList(ev.Citations),
		PromptTokens:   ev.Usage.PromptTokens,
		OutputTokens:   ev.Usage.CompletionTokens,
		CreatedAt:      o.now(),
	}
	if err := o.conversations.AppendMessage(ctx, assistantMsg); err != nil {
		o.logger.Error("Failed to save assistant message", "conversation", call.conv.ID, "error", err)
	}

	// A failed accounting write loses one call's worth of counting but
	// must not fail the user's request.
	if err := o.recorder.Record(ctx, call.key.ID, ev.Usage.TotalTokens); err != nil {
		o.logger.Error("Failed to record key usage", "key", call.key.ID, "error", err)
	}

	o.recordUsage(ctx, usageRecord{
		userID: call.userID, conv: call.conv, key: call.key,
		provider: call.provider.Name, model: call.model.Name,
		start: call.start, usage: ev.Usage, success: true,
	})

	if err := emitter.Done(DoneEvent{
		MessageID:    assistantMsg.ID,
		PromptTokens: ev.Usage.PromptTokens,
		OutputTokens: ev.Usage.CompletionTokens,
		Citations:    ev.Citations,
	}); err != nil {
		o.logger.Debug("Client gone before stream end", "conversation", call.conv.ID)
	}
}

// failCall classifies a provider failure, demotes the key on throttling,
// records the failed call, and reports it to the client.
func (o *Orchestrator) failCall(ctx context.Context, emitter Emitter, provider *models.Provider, model *models.AIModel, conv *models.Conversation, userID uuid.UUID, key *models.APIKey, start time.Time, callErr error) {
	// A cancelled call means the caller went away, not that the provider
	// failed. Nothing to report, nothing to account.
	if errors.Is(callErr, context.Canceled) {
		o.logger.Debug("Call cancelled mid-stream", "conversation", conv.ID)
		return
	}

	errType := models.ErrorTypeStreaming
	if providers.IsThrottle(callErr) {
		errType = models.ErrorTypeRateLimit
		if key != nil {
			if err := o.recorder.MarkRateLimited(ctx, key.ID); err != nil {
				o.logger.Error("Failed to demote rate limited key", "key", key.ID, "error", err)
			}
		}
	}

	o.logger.Warn("Provider call failed", "provider", provider.Name, "model", model.Name, "type", errType, "error", callErr)

	o.recordUsage(ctx, usageRecord{
		userID: userID, conv: conv, key: key,
		provider: provider.Name, model: model.Name,
		start: start, errType: errType, detail: callErr.Error(),
	})

	o.emitError(emitter, errType, "The provider could not complete this request.")
}

func (o *Orchestrator) emitError(emitter Emitter, errType, message string) {
	if err := emitter.Error(ErrorEvent{Type: errType, Message: message}); err != nil {
		o.logger.Debug("Client gone before error event")
	}
}

type usageRecord struct {
	userID   uuid.UUID
	conv     *models.Conversation
	key      *models.APIKey
	provider string
	model    string
	start    time.Time
	usage    providers.Usage
	success  bool
	errType  string
	detail   string
}

func (o *Orchestrator) recordUsage(ctx context.Context, rec usageRecord) {
	record := &models.UsageLog{
		ID:               uuid.New(),
		UserID:           rec.userID,
		Provider:         rec.provider,
		Model:            rec.model,
		PromptTokens:     rec.usage.PromptTokens,
		CompletionTokens: rec.usage.CompletionTokens,
		TotalTokens:      rec.usage.TotalTokens,
		LatencyMs:        o.now().Sub(rec.start).Milliseconds(),
		Success:          rec.success,
		ErrorType:        rec.errType,
		ErrorDetail:      rec.detail,
		CreatedAt:        o.now(),
	}
	if rec.conv != nil {
		id := rec.conv.ID
		record.ConversationID = &id
	}
	if rec.key != nil {
		id := rec.key.ID
		record.APIKeyID = &id
	}

	if err := o.usage.Enqueue(ctx, record); err != nil {
		o.logger.Error("Failed to enqueue usage record", "error", err)
	}
}

// resolveConversation loads an existing conversation or starts a new one
// titled from the first message.
func (o *Orchestrator) resolveConversation(ctx context.Context, userID uuid.UUID, req SendRequest) (*models.Conversation, error) {
	if req.ConversationID != nil {
		conv, err := o.conversations.Get(ctx, *req.ConversationID, userID)
		if err != nil {
			return nil, ErrConversationNotFound
		}
		return conv, nil
	}

	conv := &models.Conversation{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     deriveTitle(req.Content),
		Model:     req.Model,
		CreatedAt: o.now(),
		UpdatedAt: o.now(),
	}
	if err := o.conversations.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// resolveModel returns the requested active model, falling back to the
// configured default when no model was named.
func (o *Orchestrator) resolveModel(ctx context.Context, name string) (*models.AIModel, error) {
	if name != "" {
		model, err := o.modelStore.GetActiveByName(ctx, name)
		if err != nil {
			return nil, ErrModelNotFound
		}
		return model, nil
	}

	model, err := o.modelStore.GetDefault(ctx)
	if err == nil {
		return model, nil
	}

	// No admin-flagged default. Fall back to the configured model name.
	if o.defaultModel != "" {
		model, err = o.modelStore.GetActiveByName(ctx, o.defaultModel)
		if err == nil {
			return model, nil
		}
	}
	return nil, ErrModelNotFound
}

func toProviderHistory(msgs []*models.Message) []providers.Message {
	history := make([]providers.Message, 0, len(msgs))
	for _, m := range msgs {
		role := providers.RoleUser
		if m.Role == models.MessageRoleAssistant {
			role = providers.RoleAssistant
		}
		history = append(history, providers.TextMessage(role, m.Content))
	}
	return history
}

func deriveTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= titleLimit {
		return content
	}
	return string(runes[:titleLimit]) + "..."
}
