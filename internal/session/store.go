package session

import (
	"context"
	"errors"
)

// ErrMissingID is returned when a store operation is called without a session ID.
var ErrMissingID = errors.New("session: missing session_id")

// Store holds small named values scoped to one browser session.
// Set overwrites every given key in a single atomic write.
type Store interface {
	Get(ctx context.Context, sessionID, key string) (string, bool, error)
	Set(ctx context.Context, sessionID string, values map[string]string) error
	// Delete removes the given keys, or the whole session when no key is given.
	Delete(ctx context.Context, sessionID string, keys ...string) error
}
