package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"ai_chat/internal/middleware"
	"ai_chat/internal/storage"
	"ai_chat/internal/utils"
)

// ConversationsHandler serves conversation listing and history.
type ConversationsHandler struct {
	conversations *storage.ConversationRepository
	usageLogs     *storage.UsageLogRepository
}

// NewConversationsHandler creates a new conversations handler.
func NewConversationsHandler(conversations *storage.ConversationRepository, usageLogs *storage.UsageLogRepository) *ConversationsHandler {
	return &ConversationsHandler{conversations: conversations, usageLogs: usageLogs}
}

// List handles GET /api/conversations
func (h *ConversationsHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	claims, ok := middleware.GetClaims(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Missing authentication")
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 200 {
			limit = l
		}
	}

	convs, err := h.conversations.ListByUser(r.Context(), claims.UserID, limit)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list conversations")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"items": convs,
	})
}

// Messages handles GET /api/conversations/{id}/messages
func (h *ConversationsHandler) Messages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	claims, ok := middleware.GetClaims(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Missing authentication")
		return
	}

	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid conversation ID")
		return
	}
	convID, err := uuid.Parse(pathParts[2])
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid conversation ID format")
		return
	}

	// Ownership check before returning any history.
	if _, err := h.conversations.Get(r.Context(), convID, claims.UserID); err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Conversation not found")
		return
	}

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 500 {
			limit = l
		}
	}

	msgs, err := h.conversations.RecentMessages(r.Context(), convID, limit)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to load messages")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"items": msgs,
	})
}

// Usage handles GET /api/usage - the caller's recent usage records
func (h *ConversationsHandler) Usage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	claims, ok := middleware.GetClaims(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Missing authentication")
		return
	}

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}

	logs, err := h.usageLogs.ListByUser(r.Context(), claims.UserID, limit)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to load usage")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"items": logs,
	})
}
