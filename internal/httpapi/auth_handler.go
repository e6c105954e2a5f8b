package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"ai_chat/internal/auth"
	"ai_chat/internal/models"
	"ai_chat/internal/storage"
	"ai_chat/internal/utils"
)

const sessionTTL = 24 * time.Hour

// AuthHandler serves login and registration.
type AuthHandler struct {
	users     *storage.UserRepository
	jwtSecret []byte
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(users *storage.UserRepository, jwtSecret []byte) *AuthHandler {
	return &AuthHandler{users: users, jwtSecret: jwtSecret}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt int64        `json:"expires_at"`
	User      *models.User `json:"user"`
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	user, err := h.users.GetByEmail(r.Context(), strings.ToLower(req.Email))
	if err != nil || !user.IsActive || !auth.CheckPassword(user.PasswordHash, req.Password) {
		// One message for every failure mode so the endpoint does not
		// reveal which accounts exist.
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	token, expiresAt, err := auth.GenerateJWT(user, h.jwtSecret, sessionTTL)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
	})
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		utils.RespondWithError(w, http.StatusBadRequest, "A valid email is required")
		return
	}
	if len(req.Password) < 8 {
		utils.RespondWithError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create account")
		return
	}

	user := &models.User{
		ID:           uuid.New(),
		Email:        strings.ToLower(req.Email),
		PasswordHash: hash,
		DisplayName:  req.DisplayName,
		Role:         models.RoleUser,
		IsActive:     true,
	}

	if err := h.users.Create(r.Context(), user); err != nil {
		if strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "unique") {
			utils.RespondWithError(w, http.StatusConflict, "Email already registered")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create account")
		return
	}

	token, expiresAt, err := auth.GenerateJWT(user, h.jwtSecret, sessionTTL)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
	})
}
