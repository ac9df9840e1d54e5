package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"discord-auth/internal/discord"
	"discord-auth/internal/session"
)

// Session keys owned by this package.
const (
	keyGrant    = "oauth2_token"
	keySubject  = "user_id"
	keyState    = "oauth2_state"
	keyVerifier = "oauth2_verifier"
	keyRevoked  = "oauth2_revoked"
)

// Grant is the token pair Discord issued for one session.
type Grant struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
	Scopes       []string  `json:"scopes"`
}

// Expired reports whether the grant must be refreshed at now. The skew
// treats a token as expired slightly early. A zero Expiry never expires.
func (g Grant) Expired(now time.Time, skew time.Duration) bool {
	if g.Expiry.IsZero() {
		return false
	}
	return !now.Before(g.Expiry.Add(-skew))
}

// HasScope reports whether scope was granted.
func (g Grant) HasScope(scope string) bool {
	return slices.Contains(g.Scopes, scope)
}

// GrantStore persists grants and the bound subject in the session store.
// Every method touches only the given session.
type GrantStore struct {
	store session.Store
}

func NewGrantStore(store session.Store) *GrantStore {
	return &GrantStore{store: store}
}

// Put stores g and records subject in the same write. A zero subject marks
// the identity as not yet known.
func (s *GrantStore) Put(ctx context.Context, sessionID string, g Grant, subject discord.Snowflake) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("auth: encode grant: %w", err)
	}

	values := map[string]string{
		keyGrant:   string(data),
		keySubject: "",
		keyRevoked: "",
	}
	if subject != 0 {
		values[keySubject] = subject.String()
	}

	return s.store.Set(ctx, sessionID, values)
}

func (s *GrantStore) Get(ctx context.Context, sessionID string) (Grant, bool, error) {
	raw, ok, err := s.store.Get(ctx, sessionID, keyGrant)
	if err != nil || !ok || raw == "" {
		return Grant{}, false, err
	}

	var g Grant
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return Grant{}, false, fmt.Errorf("auth: decode grant: %w", err)
	}
	if g.AccessToken == "" {
		return Grant{}, false, nil
	}

	return g, true, nil
}

// Clear removes the grant and subject and marks the session revoked.
func (s *GrantStore) Clear(ctx context.Context, sessionID string) error {
	return s.store.Set(ctx, sessionID, map[string]string{
		keyGrant:   "",
		keySubject: "",
		keyRevoked: "1",
	})
}

func (s *GrantStore) Revoked(ctx context.Context, sessionID string) (bool, error) {
	v, _, err := s.store.Get(ctx, sessionID, keyRevoked)
	return v == "1", err
}

// BindSubject records which Discord user the session belongs to.
func (s *GrantStore) BindSubject(ctx context.Context, sessionID string, subject discord.Snowflake) error {
	return s.store.Set(ctx, sessionID, map[string]string{keySubject: subject.String()})
}

func (s *GrantStore) Subject(ctx context.Context, sessionID string) (discord.Snowflake, bool, error) {
	raw, ok, err := s.store.Get(ctx, sessionID, keySubject)
	if err != nil || !ok || raw == "" {
		return 0, false, err
	}

	id, err := discord.ParseSnowflake(raw)
	if err != nil {
		return 0, false, fmt.Errorf("auth: decode subject: %w", err)
	}
	return id, true, nil
}

// SavePending records the state and PKCE verifier of a started authorization.
func (s *GrantStore) SavePending(ctx context.Context, sessionID, state, verifier string) error {
	return s.store.Set(ctx, sessionID, map[string]string{
		keyState:    state,
		keyVerifier: verifier,
	})
}

// HasPending reports whether an authorization was started and not yet completed.
func (s *GrantStore) HasPending(ctx context.Context, sessionID string) (bool, error) {
	v, _, err := s.store.Get(ctx, sessionID, keyState)
	return v != "", err
}

// TakePending returns and removes the pending state and verifier. A state
// can be used at most once.
func (s *GrantStore) TakePending(ctx context.Context, sessionID string) (state, verifier string, err error) {
	state, _, err = s.store.Get(ctx, sessionID, keyState)
	if err != nil {
		return "", "", err
	}
	verifier, _, err = s.store.Get(ctx, sessionID, keyVerifier)
	if err != nil {
		return "", "", err
	}
	if state == "" {
		return "", "", nil
	}

	if err := s.store.Delete(ctx, sessionID, keyState, keyVerifier); err != nil {
		return "", "", err
	}
	return state, verifier, nil
}
