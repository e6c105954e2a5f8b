package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		message string
	}{
		{
			name:    "bad request",
			code:    http.StatusBadRequest,
			message: "Invalid input",
		},
		{
			name:    "unauthorized",
			code:    http.StatusUnauthorized,
			message: "Authentication required",
		},
		{
			name:    "too many requests",
			code:    http.StatusTooManyRequests,
			message: "Rate limit exceeded",
		},
		{
			name:    "internal server error",
			code:    http.StatusInternalServerError,
			message: "Something went wrong",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			RespondWithError(w, tt.code, tt.message)

			if w.Code != tt.code {
				t.Errorf("RespondWithError() status = %d, want %d", w.Code, tt.code)
			}

			contentType := w.Header().Get("Content-Type")
			if contentType != "application/json" {
				t.Errorf("RespondWithError() Content-Type = %s, want application/json", contentType)
			}

			var response ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}

			if response.Error != tt.message {
				t.Errorf("RespondWithError() message = %s, want %s", response.Error, tt.message)
			}
		})
	}
}

func TestRespondWithJSON(t *testing.T) {
	t.Run("simple struct", func(t *testing.T) {
		w := httptest.NewRecorder()

		payload := struct {
			Name  string `json:"name"`
			Model string `json:"model"`
		}{
			Name:  "primary",
			Model: "gemini-2.0-flash",
		}

		err := RespondWithJSON(w, http.StatusOK, payload)
		if err != nil {
			t.Errorf("RespondWithJSON() error = %v, want nil", err)
		}

		if w.Code != http.StatusOK {
			t.Errorf("RespondWithJSON() status = %d, want %d", w.Code, http.StatusOK)
		}

		contentType := w.Header().Get("Content-Type")
		if contentType != "application/json" {
			t.Errorf("RespondWithJSON() Content-Type = %s, want application/json", contentType)
		}

		var response struct {
			Name  string `json:"name"`
			Model string `json:"model"`
		}
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}

		if response.Name != payload.Name {
			t.Errorf("RespondWithJSON() name = %s, want %s", response.Name, payload.Name)
		}
	})

	t.Run("map payload", func(t *testing.T) {
		w := httptest.NewRecorder()

		payload := map[string]any{
			"success": true,
			"count":   42,
		}

		err := RespondWithJSON(w, http.StatusCreated, payload)
		if err != nil {
			t.Errorf("RespondWithJSON() error = %v, want nil", err)
		}

		if w.Code != http.StatusCreated {
			t.Errorf("RespondWithJSON() status = %d, want %d", w.Code, http.StatusCreated)
		}

		var response map[string]any
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}

		if response["success"] != true {
			t.Errorf("RespondWithJSON() success = %v, want true", response["success"])
		}
		if int(response["count"].(float64)) != 42 {
			t.Errorf("RespondWithJSON() count = %v, want 42", response["count"])
		}
	})

	t.Run("nil payload", func(t *testing.T) {
		w := httptest.NewRecorder()

		err := RespondWithJSON(w, http.StatusOK, nil)
		if err != nil {
			t.Errorf("RespondWithJSON() error = %v, want nil", err)
		}
	})
}
