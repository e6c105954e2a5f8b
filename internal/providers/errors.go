package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// StatusError is a non-2xx provider response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Message)
}

// throttleMarkers are message fragments providers use to signal quota or
// rate-limit exhaustion.
var throttleMarkers = []string{
	"429",
	"rate limit",
	"ratelimit",
	"quota",
	"resource_exhausted",
	"resource has been exhausted",
	"too many requests",
}

// IsThrottle reports whether an error is an upstream throttling or
// quota-exhaustion signal. Keys used on such calls must be demoted before
// the error is surfaced; any other provider error leaves the key untouched.
func IsThrottle(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range throttleMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return false
}
