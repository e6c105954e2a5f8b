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

// AdminModelsHandler handles model management endpoints
type AdminModelsHandler struct {
	models *storage.ModelRepository
}

// NewAdminModelsHandler creates a new admin models handler
func NewAdminModelsHandler(modelRepo *storage.ModelRepository) *AdminModelsHandler {
	return &AdminModelsHandler{models: modelRepo}
}

// CreateModelRequest represents the request to register a model
type CreateModelRequest struct {
	ProviderID  uuid.UUID `json:"provider_id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	IsActive    *bool     `json:"is_active,omitempty"`
	IsDefault   bool      `json:"is_default"`
}

// Handle dispatches /admin/models requests by method.
func (h *AdminModelsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.List(w, r)
	case http.MethodPost:
		h.Create(w, r)
	default:
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// HandleByID dispatches /admin/models/{id}[/default|/active] requests.
func (h *AdminModelsHandler) HandleByID(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid model ID")
		return
	}
	id, err := uuid.Parse(pathParts[2])
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid model ID format")
		return
	}

	if len(pathParts) == 4 {
		switch {
		case pathParts[3] == "default" && r.Method == http.MethodPost:
			h.SetDefault(w, r, id)
		case pathParts[3] == "active" && r.Method == http.MethodPost:
			h.SetActive(w, r, id)
		default:
			utils.RespondWithError(w, http.StatusNotFound, "Unknown model operation")
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

// List handles GET /admin/models?provider_id=...
func (h *AdminModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	var providerID *uuid.UUID
	if providerIDStr := r.URL.Query().Get("provider_id"); providerIDStr != "" {
		id, err := uuid.Parse(providerIDStr)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid provider ID format")
			return
		}
		providerID = &id
	}

	items, err := h.models.List(r.Context(), providerID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list models")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}

// Create handles POST /admin/models
func (h *AdminModelsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if req.Name == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Name is required")
		return
	}
	if req.ProviderID == uuid.Nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Provider ID is required")
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	model := &models.AIModel{
		ID:          uuid.New(),
		ProviderID:  req.ProviderID,
		Name:        req.Name,
		DisplayName: req.DisplayName,
		IsActive:    active,
	}

	if err := h.models.Create(r.Context(), model); err != nil {
		if strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "unique") {
			utils.RespondWithError(w, http.StatusConflict, "Model already exists")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create model")
		return
	}

	if req.IsDefault {
		if err := h.models.SetDefault(r.Context(), model.ID); err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to set default model")
			return
		}
		model.IsDefault = true
	}

	utils.RespondWithJSON(w, http.StatusCreated, model)
}

// SetDefault handles POST /admin/models/{id}/default
func (h *AdminModelsHandler) SetDefault(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if err := h.models.SetDefault(r.Context(), id); err != nil {
		if err == storage.ErrModelNotFound {
			utils.RespondWithError(w, http.StatusNotFound, "Model not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to set default model")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Default model updated",
	})
}

// SetActive handles POST /admin/models/{id}/active
func (h *AdminModelsHandler) SetActive(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.models.SetActive(r.Context(), id, req.Active); err != nil {
		if err == storage.ErrModelNotFound {
			utils.RespondWithError(w, http.StatusNotFound, "Model not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to update model")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Model updated",
	})
}

// Delete handles DELETE /admin/models/{id}
func (h *AdminModelsHandler) Delete(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if err := h.models.Delete(r.Context(), id); err != nil {
		if err == storage.ErrModelNotFound {
			utils.RespondWithError(w, http.StatusNotFound, "Model not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to delete model")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Model deleted successfully",
	})
}
