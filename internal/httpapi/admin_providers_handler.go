package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"ai_chat/internal/models"
	"ai_chat/internal/storage"
	"ai_chat/internal/utils"
)

// AdminProvidersHandler handles provider management endpoints
type AdminProvidersHandler struct {
	providers *storage.ProviderRepository
}

// NewAdminProvidersHandler creates a new admin providers handler
func NewAdminProvidersHandler(providers *storage.ProviderRepository) *AdminProvidersHandler {
	return &AdminProvidersHandler{providers: providers}
}

// CreateProviderRequest represents the request to register a provider
type CreateProviderRequest struct {
	Name         string          `json:"name"`
	DisplayName  string          `json:"display_name"`
	ProviderType string          `json:"provider_type"`
	Config       json.RawMessage `json:"config,omitempty"`
	Enabled      *bool           `json:"enabled,omitempty"`
	Priority     int             `json:"priority"`
}

// UpdateProviderRequest represents the request to update a provider
type UpdateProviderRequest struct {
	DisplayName *string         `json:"display_name,omitempty"`
	Config      json.RawMessage `json:"config,omitempty"`
	Enabled     *bool           `json:"enabled,omitempty"`
	Priority    *int            `json:"priority,omitempty"`
}

var validProviderTypes = map[string]bool{
	string(models.ProviderTypeGemini):   true,
	string(models.ProviderTypeOpenAI):   true,
	string(models.ProviderTypeClaude):   true,
	string(models.ProviderTypeGrok):     true,
	string(models.ProviderTypeDeepSeek): true,
}

// Handle dispatches /admin/providers requests by method.
func (h *AdminProvidersHandler) Handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.List(w, r)
	case http.MethodPost:
		h.Create(w, r)
	default:
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// HandleByID dispatches /admin/providers/{id} requests by method.
func (h *AdminProvidersHandler) HandleByID(w http.ResponseWriter, r *http.Request) {
	id, ok := providerIDFromPath(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPut:
		h.Update(w, r, id)
	case http.MethodDelete:
		h.Delete(w, r, id)
	default:
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// List handles GET /admin/providers
func (h *AdminProvidersHandler) List(w http.ResponseWriter, r *http.Request) {
	providers, err := h.providers.List(r.Context())
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list providers")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"items": providers,
	})
}

// Create handles POST /admin/providers
func (h *AdminProvidersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if req.Name == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Name is required")
		return
	}
	if !validProviderTypes[req.ProviderType] {
		utils.RespondWithError(w, http.StatusBadRequest, "Unsupported provider type")
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	provider := &models.Provider{
		ID:           uuid.New(),
		Name:         req.Name,
		DisplayName:  req.DisplayName,
		ProviderType: req.ProviderType,
		Config:       req.Config,
		Enabled:      enabled,
		Priority:     req.Priority,
	}

	if err := h.providers.Create(r.Context(), provider); err != nil {
		if strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "unique") {
			utils.RespondWithError(w, http.StatusConflict, "Provider already exists")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create provider")
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, provider)
}

// Update handles PUT /admin/providers/{id}
func (h *AdminProvidersHandler) Update(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var req UpdateProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	provider, err := h.providers.GetByID(r.Context(), id)
	if err != nil {
		if err == storage.ErrProviderNotFound {
			utils.RespondWithError(w, http.StatusNotFound, "Provider not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get provider")
		return
	}

	if req.DisplayName != nil {
		provider.DisplayName = *req.DisplayName
	}
	if req.Config != nil {
		provider.Config = req.Config
	}
	if req.Enabled != nil {
		provider.Enabled = *req.Enabled
	}
	if req.Priority != nil {
		provider.Priority = *req.Priority
	}

	if err := h.providers.Update(r.Context(), provider); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to update provider")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, provider)
}

// Delete handles DELETE /admin/providers/{id}
func (h *AdminProvidersHandler) Delete(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if err := h.providers.Delete(r.Context(), id); err != nil {
		if err == storage.ErrProviderNotFound {
			utils.RespondWithError(w, http.StatusNotFound, "Provider not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to delete provider")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Provider deleted successfully",
	})
}

func providerIDFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid provider ID")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(pathParts[2])
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid provider ID format")
		return uuid.Nil, false
	}
	return id, true
}
