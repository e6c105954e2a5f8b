package providers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsThrottle(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		throttle bool
	}{
		{"nil", nil, false},
		{"status 429", &StatusError{StatusCode: http.StatusTooManyRequests, Message: "slow down"}, true},
		{"status 500", &StatusError{StatusCode: http.StatusInternalServerError, Message: "boom"}, false},
		{"wrapped 429", fmt.Errorf("call failed: %w", &StatusError{StatusCode: 429}), true},
		{"rate limit text", errors.New("Rate Limit exceeded for model"), true},
		{"quota text", errors.New("googleapi: Error 403: quota exceeded"), true},
		{"resource exhausted", errors.New("rpc error: code = ResourceExhausted desc = RESOURCE_EXHAUSTED"), true},
		{"too many requests", errors.New("Too Many Requests"), true},
		{"plain failure", errors.New("connection refused"), false},
		{"auth failure", &StatusError{StatusCode: http.StatusUnauthorized, Message: "bad key"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.throttle, IsThrottle(tt.err))
		})
	}
}
