package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"ai_chat/internal/chat"
	"ai_chat/internal/middleware"
	"ai_chat/internal/ratelimit"
	"ai_chat/internal/utils"
)

// ChatHandler serves the streaming chat endpoint.
type ChatHandler struct {
	orchestrator  *chat.Orchestrator
	limiter       ratelimit.Limiter
	ratePerMinute int
	logger        *utils.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(orchestrator *chat.Orchestrator, limiter ratelimit.Limiter, ratePerMinute int) *ChatHandler {
	return &ChatHandler{
		orchestrator:  orchestrator,
		limiter:       limiter,
		ratePerMinute: ratePerMinute,
		logger:        utils.NewLogger("chat-handler"),
	}
}

type sendMessageRequest struct {
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	Content        string     `json:"content"`
	Model          string     `json:"model,omitempty"`
}

// Send handles POST /api/chat - stream one chat turn
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	claims, ok := middleware.GetClaims(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Missing authentication")
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Content == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Content is required")
		return
	}

	allowed, err := h.limiter.Allow(r.Context(), claims.UserID.String(), h.ratePerMinute)
	if err != nil {
		// Fail open: a limiter outage must not take chat down.
		h.logger.Warn("Rate limiter check failed", "error", err)
		allowed = true
	}
	if !allowed {
		utils.RespondWithError(w, http.StatusTooManyRequests, "Too many requests, slow down")
		return
	}

	emitter, err := newSSEEmitter(w)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	// Detached from the request context: a client disconnect must let the
	// provider stream finish naturally so the turn is still accounted.
	ctx := context.WithoutCancel(r.Context())

	err = h.orchestrator.Send(ctx, claims.UserID, chat.SendRequest{
		ConversationID: req.ConversationID,
		Content:        req.Content,
		Model:          req.Model,
	}, emitter)
	if err != nil {
		status := http.StatusInternalServerError
		msg := "Failed to process message"
		switch {
		case errors.Is(err, chat.ErrConversationNotFound):
			status, msg = http.StatusNotFound, "Conversation not found"
		case errors.Is(err, chat.ErrModelNotFound):
			status, msg = http.StatusNotFound, "Model not found"
		default:
			h.logger.Error("Chat turn failed", "user", claims.UserID, "error", err)
		}
		if emitter.Committed() {
			// The stream is already open; the failure goes out as a
			// terminal error event.
			_ = emitter.Error(chat.ErrorEvent{Type: "REQUEST_ERROR", Message: msg})
			return
		}
		utils.RespondWithError(w, status, msg)
	}
}
