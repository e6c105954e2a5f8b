package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"ai_chat/internal/models"
	"ai_chat/internal/providers"
	"ai_chat/internal/storage"
	"ai_chat/internal/utils"
)

const keyVerifyTimeout = 15 * time.Second

// AdminKeysHandler handles provider credential management endpoints
type AdminKeysHandler struct {
	keys       *storage.APIKeyRepository
	providers  *storage.ProviderRepository
	encryption *storage.Encryption
	adapterFor func(p *models.Provider) (providers.Adapter, error)
}

// NewAdminKeysHandler creates a new admin keys handler
func NewAdminKeysHandler(keys *storage.APIKeyRepository, providerRepo *storage.ProviderRepository, encryption *storage.Encryption) *AdminKeysHandler {
	return &AdminKeysHandler{
		keys:       keys,
		providers:  providerRepo,
		encryption: encryption,
		adapterFor: providers.NewAdapter,
	}
}

// CreateKeyRequest represents the request to add a provider credential
type CreateKeyRequest struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Name       string    `json:"name"`
	Key        string    `json:"key"` // plaintext, encrypted before storage
	Priority   int       `json:"priority"`

	DailyLimit       *int64 `json:"daily_limit,omitempty"`
	MinuteLimit      *int64 `json:"minute_limit,omitempty"`
	DailyTokenLimit  *int64 `json:"daily_token_limit,omitempty"`
	MinuteTokenLimit *int64 `json:"minute_token_limit,omitempty"`

	// SkipVerify bypasses the upstream credential check, for air-gapped
	// setups or providers with no cheap verification call.
	SkipVerify bool `json:"skip_verify,omitempty"`
}

// Handle dispatches /admin/keys requests by method.
func (h *AdminKeysHandler) Handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.List(w, r)
	case http.MethodPost:
		h.Create(w, r)
	default:
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// HandleByID dispatches /admin/keys/{id}[/active|/clear-rate-limit] requests.
func (h *AdminKeysHandler) HandleByID(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid key ID")
		return
	}
	id, err := uuid.Parse(pathParts[2])
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid key ID format")
		return
	}

	if len(pathParts) == 4 {
		switch {
		case pathParts[3] == "active" && r.Method == http.MethodPost:
			h.SetActive(w, r, id)
		case pathParts[3] == "clear-rate-limit" && r.Method == http.MethodPost:
			h.ClearRateLimit(w, r, id)
		default:
			utils.RespondWithError(w, http.StatusNotFound, "Unknown key operation")
		}
		return
	}

	switch r.Method {
	case http.MethodDelete:
		h.Delete(w, r, id)
	default:
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// List handles GET /admin/keys?provider_id=... - counters included, the
// credential itself never leaves the server.
func (h *AdminKeysHandler) List(w http.ResponseWriter, r *http.Request) {
	providerIDStr := r.URL.Query().Get("provider_id")
	if providerIDStr == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "provider_id is required")
		return
	}
	providerID, err := uuid.Parse(providerIDStr)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid provider ID format")
		return
	}

	keys, err := h.keys.ListByProvider(r.Context(), providerID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list keys")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"items": keys,
	})
}

// Create handles POST /admin/keys - verify the credential upstream, then
// encrypt and store it.
func (h *AdminKeysHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if req.Name == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Name is required")
		return
	}
	if req.Key == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Key is required")
		return
	}

	provider, err := h.providers.GetByID(r.Context(), req.ProviderID)
	if err != nil {
		if err == storage.ErrProviderNotFound {
			utils.RespondWithError(w, http.StatusNotFound, "Provider not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get provider")
		return
	}

	if !req.SkipVerify {
		adapter, err := h.adapterFor(provider)
		if err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to build provider adapter")
			return
		}

		verifyCtx, cancel := context.WithTimeout(r.Context(), keyVerifyTimeout)
		defer cancel()
		if err := adapter.Verify(verifyCtx, req.Key); err != nil {
			utils.RespondWithError(w, http.StatusUnprocessableEntity, "Credential rejected by provider: "+err.Error())
			return
		}
	}

	encryptedKey, err := h.encryption.Encrypt([]byte(req.Key))
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to encrypt credential")
		return
	}

	now := time.Now()
	key := &models.APIKey{
		ID:                uuid.New(),
		ProviderID:        req.ProviderID,
		Name:              req.Name,
		EncryptedKey:      encryptedKey,
		IsActive:          true,
		Priority:          req.Priority,
		DailyLimit:        req.DailyLimit,
		MinuteLimit:       req.MinuteLimit,
		DailyTokenLimit:   req.DailyTokenLimit,
		MinuteTokenLimit:  req.MinuteTokenLimit,
		LastResetAt:       now,
		LastMinuteResetAt: now,
	}

	if err := h.keys.Create(r.Context(), key); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create key")
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, key)
}

// SetActive handles POST /admin/keys/{id}/active
func (h *AdminKeysHandler) SetActive(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.keys.SetActive(r.Context(), id, req.Active); err != nil {
		if err == storage.ErrAPIKeyNotFound {
			utils.RespondWithError(w, http.StatusNotFound, "Key not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to update key")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Key updated",
	})
}

// ClearRateLimit handles POST /admin/keys/{id}/clear-rate-limit - manual
// recovery before the daily rollover would do it.
func (h *AdminKeysHandler) ClearRateLimit(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if err := h.keys.ClearRateLimited(r.Context(), id); err != nil {
		if err == storage.ErrAPIKeyNotFound {
			utils.RespondWithError(w, http.StatusNotFound, "Key not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to clear rate limit")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Rate limit flag cleared",
	})
}

// Delete handles DELETE /admin/keys/{id}
func (h *AdminKeysHandler) Delete(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if err := h.keys.Delete(r.Context(), id); err != nil {
		if err == storage.ErrAPIKeyNotFound {
			utils.RespondWithError(w, http.StatusNotFound, "Key not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to delete key")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Key deleted successfully",
	})
}
