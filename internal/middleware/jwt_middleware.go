package middleware

import (
	"context"
	"net/http"
	"strings"

	"ai_chat/internal/auth"
	"ai_chat/internal/utils"
)

// ContextKey is the type for context values set by middleware
type ContextKey string

// Context keys for storing authentication data
const (
	ClaimsKey ContextKey = "claims"
	UserIDKey ContextKey = "userID"
)

// JWTMiddleware validates session tokens and embeds the claims into the
// request context.
func JWTMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := r.Header.Get("Authorization")
			if tokenString == "" {
				utils.RespondWithError(w, http.StatusUnauthorized, "Missing authentication token")
				return
			}
			tokenString = strings.TrimPrefix(tokenString, "Bearer ")

			claims, err := auth.ValidateJWT(tokenString, secret)
			if err != nil {
				utils.RespondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			ctx = context.WithValue(ctx, UserIDKey, claims.UserID.String())

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminMiddleware validates session tokens and additionally requires the
// admin role.
func AdminMiddleware(secret []byte) func(http.Handler) http.Handler {
	jwt := JWTMiddleware(secret)
	return func(next http.Handler) http.Handler {
		return jwt(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetClaims(r.Context())
			if !ok || !claims.IsAdmin() {
				utils.RespondWithError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// GetClaims retrieves the session claims from the request context
func GetClaims(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*auth.Claims)
	return claims, ok
}
