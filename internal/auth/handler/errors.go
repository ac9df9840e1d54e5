package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"discord-auth/internal/auth"
	"discord-auth/internal/discord"
	"discord-auth/internal/logger"

	"github.com/gin-gonic/gin"
)

// writeError maps lifecycle and Discord errors onto HTTP responses.
func writeError(c *gin.Context, err error) {
	var limited *discord.RateLimitedError
	if errors.As(err, &limited) {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(limited.RetryAfter.Seconds()))))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "rate limited",
			"retry_after": limited.RetryAfter.Seconds(),
			"global":      limited.Global,
		})
		return
	}

	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", map[string]any{
			"path":   c.Request.URL.Path,
			"status": status,
			"error":  err.Error(),
		})
	}
	c.JSON(status, gin.H{"error": msg})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrStateMismatch):
		return http.StatusBadRequest, "invalid state"
	case errors.Is(err, auth.ErrMissingCode):
		return http.StatusBadRequest, "missing code"
	case errors.Is(err, auth.ErrAccessDenied):
		return http.StatusForbidden, "access denied"
	case errors.Is(err, auth.ErrAuthorizationFailed):
		return http.StatusBadRequest, "authorization failed"
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, discord.ErrInvalidParameter):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, discord.ErrNoBotToken):
		return http.StatusServiceUnavailable, "guild joins are not configured"
	case errors.Is(err, discord.ErrMalformedResponse):
		return http.StatusBadGateway, "malformed discord response"
	}

	var httpErr *discord.HTTPError
	if errors.As(err, &httpErr) {
		return http.StatusBadGateway, "discord request failed"
	}
	return http.StatusInternalServerError, "internal error"
}
