package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"ai_chat/internal/models"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims are the identity claims carried in a session token.
type Claims struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

// IsAdmin reports whether the token belongs to an administrator.
func (c *Claims) IsAdmin() bool {
	return c.Role == models.RoleAdmin
}

// GenerateJWT creates a session token for a user.
func GenerateJWT(user *models.User, secret []byte, ttl time.Duration) (string, int64, error) {
	expirationTime := time.Now().Add(ttl).Unix()
	claims := jwt.MapClaims{
		"sub":   user.ID.String(),
		"email": user.Email,
		"role":  user.Role,
		"exp":   expirationTime,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedToken, err := token.SignedString(secret)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign token: %w", err)
	}
	return signedToken, expirationTime, nil
}

// ValidateJWT verifies a session token and extracts its claims.
func ValidateJWT(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	sub, _ := mapClaims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, ErrInvalidToken
	}

	email, _ := mapClaims["email"].(string)
	role, _ := mapClaims["role"].(string)

	return &Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
	}, nil
}
