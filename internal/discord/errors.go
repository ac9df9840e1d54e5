package discord

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrUnauthorized means there is no usable grant, or Discord rejected the
	// credentials with 401/403.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrMalformedResponse means a Discord payload lacked a required field.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrInvalidParameter means a caller-supplied value broke a documented
	// constraint. It is returned before any network call.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// HTTPError is a non-2xx response from Discord.
type HTTPError struct {
	StatusCode int
	Code       int    // Discord JSON error code, when present
	Message    string // Discord JSON error message, when present
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("discord: http %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("discord: http %d", e.StatusCode)
}

// Is makes 401 and 403 responses match ErrUnauthorized.
func (e *HTTPError) Is(target error) bool {
	return target == ErrUnauthorized &&
		(e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden)
}

// RateLimitedError is a 429 response. Callers decide whether to retry.
type RateLimitedError struct {
	RetryAfter time.Duration
	Global     bool
	Message    string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("discord: rate limited, retry after %s", e.RetryAfter)
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("discord: %w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}
