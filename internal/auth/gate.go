package auth

import "context"

type tokenContextKey struct{}
type sessionContextKey struct{}

// ContextWithToken returns ctx carrying a validated access token.
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the access token placed by Guard or the HTTP gate.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenContextKey{}).(string)
	return token, ok && token != ""
}

func ContextWithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sessionID)
}

func SessionFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionContextKey{}).(string)
	return id, ok && id != ""
}

// Guard runs op only once the session holds a valid token, which op reads
// with TokenFromContext. Errors from EnsureValidToken are returned as is and
// op is not called.
func (m *Manager) Guard(ctx context.Context, sessionID string, op func(ctx context.Context) error) error {
	token, err := m.EnsureValidToken(ctx, sessionID)
	if err != nil {
		return err
	}

	ctx = ContextWithSession(ContextWithToken(ctx, token), sessionID)
	return op(ctx)
}
