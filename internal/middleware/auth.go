package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"discord-auth/internal/auth"
	"discord-auth/internal/discord"
	"discord-auth/internal/logger"
	"discord-auth/internal/session"
)

// Guarder is satisfied by *auth.Manager.
type Guarder interface {
	Guard(ctx context.Context, sessionID string, op func(ctx context.Context) error) error
}

type AuthMiddleware struct {
	Tokens Guarder
}

func NewAuthMiddleware(tokens Guarder) *AuthMiddleware {
	return &AuthMiddleware{Tokens: tokens}
}

// gateFailure is the response for a request the gate turned away.
type gateFailure struct {
	status     int
	message    string
	retryAfter string
}

// authorize runs the request's session through the guard and returns the
// context the protected handler runs with.
func (a *AuthMiddleware) authorize(r *http.Request) (context.Context, *gateFailure) {
	sessionID, ok := session.IDFromRequest(r)
	if !ok {
		return nil, failureFor(auth.ErrUnauthorized)
	}

	var authorized context.Context
	err := a.Tokens.Guard(r.Context(), sessionID, func(ctx context.Context) error {
		authorized = ctx
		return nil
	})
	if err != nil {
		return nil, failureFor(err)
	}
	return authorized, nil
}

func failureFor(err error) *gateFailure {
	if errors.Is(err, auth.ErrUnauthorized) {
		return &gateFailure{status: http.StatusUnauthorized, message: "unauthorized"}
	}

	var limited *discord.RateLimitedError
	if errors.As(err, &limited) {
		return &gateFailure{
			status:     http.StatusTooManyRequests,
			message:    "rate limited",
			retryAfter: strconv.Itoa(int(math.Ceil(limited.RetryAfter.Seconds()))),
		}
	}

	logger.Error("token validation failed", map[string]any{
		"error": err.Error(),
	})
	return &gateFailure{status: http.StatusBadGateway, message: "authorization unavailable"}
}

// RequireAuthorization is the gate for plain net/http servers. It rejects
// requests whose session has no valid grant and refreshes expired grants
// before calling next.
func (a *AuthMiddleware) RequireAuthorization(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, failure := a.authorize(r)
		if failure != nil {
			if failure.retryAfter != "" {
				w.Header().Set("Retry-After", failure.retryAfter)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(failure.status)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": failure.message})
			return
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
