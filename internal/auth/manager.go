package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"discord-auth/internal/discord"
	"discord-auth/internal/logger"
	"discord-auth/internal/session"

	"golang.org/x/oauth2"
)

var (
	// ErrUnauthorized is discord.ErrUnauthorized, re-exported for callers
	// that only deal with this package.
	ErrUnauthorized = discord.ErrUnauthorized
	// ErrStateMismatch means the callback state does not match the one issued
	// by StartAuthorization. The user has to start over.
	ErrStateMismatch = errors.New("auth: authorization state mismatch")
	// ErrAccessDenied means the user declined the authorization prompt.
	ErrAccessDenied = errors.New("auth: access denied")
	// ErrMissingCode means the callback carried neither a code nor an error.
	ErrMissingCode = errors.New("auth: callback missing code")
	// ErrAuthorizationFailed is any other error Discord sent to the callback.
	ErrAuthorizationFailed = errors.New("auth: authorization failed")
)

// State is where a session sits in the token lifecycle.
type State int

const (
	StateUnauthenticated State = iota
	StatePendingExchange
	StateAuthorized
	StateExpired
	StateRevoked
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StatePendingExchange:
		return "pending_exchange"
	case StateAuthorized:
		return "authorized"
	case StateExpired:
		return "expired"
	case StateRevoked:
		return "revoked"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// UserCache is the slice of the resource cache the lifecycle needs.
type UserCache interface {
	Get(id discord.Snowflake) (*discord.User, bool)
	Put(u *discord.User)
	Invalidate(id discord.Snowflake)
	Update(id discord.Snowflake, fn func(*discord.User) *discord.User) bool
}

type Options struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	AuthURL   string
	TokenURL  string
	RevokeURL string // empty disables remote revocation on logout

	// ExpirySkew makes tokens count as expired this long before Discord's expiry.
	ExpirySkew time.Duration
	HTTPClient *http.Client
	Now        func() time.Time
}

// AuthorizationOptions tune the Discord consent screen.
type AuthorizationOptions struct {
	// Scopes overrides the configured scopes when non-empty.
	Scopes []string
	// Prompt is "consent" to always show the screen or "none" to skip it.
	Prompt string
	// Permissions, GuildID and DisableGuildSelect apply to the bot scope.
	Permissions        discord.Permissions
	GuildID            discord.Snowflake
	DisableGuildSelect bool
}

// CallbackParams are the query parameters of Discord's redirect.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// Manager owns the token lifecycle of every session: it starts the
// authorization, exchanges the code, refreshes expired grants and revokes
// them. EnsureValidToken is the only way to get an access token.
type Manager struct {
	oauth      *oauth2.Config
	grants     *GrantStore
	users      UserCache
	revokeURL  string
	httpClient *http.Client
	skew       time.Duration
	now        func() time.Time
}

func NewManager(store session.Store, users UserCache, opts Options) (*Manager, error) {
	if opts.ClientID == "" || opts.ClientSecret == "" || opts.RedirectURL == "" {
		return nil, errors.New("auth: discord oauth config missing required fields")
	}
	if opts.AuthURL == "" || opts.TokenURL == "" {
		return nil, errors.New("auth: discord oauth endpoints missing")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	oauthCfg := &oauth2.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		RedirectURL:  opts.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  opts.AuthURL,
			TokenURL: opts.TokenURL,
			// Fixed style: auto-detection retries failed requests, which
			// would turn one refresh into two.
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: opts.Scopes,
	}

	return &Manager{
		oauth:      oauthCfg,
		grants:     NewGrantStore(store),
		users:      users,
		revokeURL:  opts.RevokeURL,
		httpClient: opts.HTTPClient,
		skew:       opts.ExpirySkew,
		now:        opts.Now,
	}, nil
}

// Grants exposes the underlying store.
func (m *Manager) Grants() *GrantStore {
	return m.grants
}

func (m *Manager) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

// StartAuthorization issues a fresh CSRF state and PKCE verifier for the
// session and returns the Discord URL to redirect the user to.
func (m *Manager) StartAuthorization(ctx context.Context, sessionID string, opts AuthorizationOptions) (string, error) {
	state, err := session.NewToken(32)
	if err != nil {
		return "", err
	}
	verifier := oauth2.GenerateVerifier()

	if err := m.grants.SavePending(ctx, sessionID, state, verifier); err != nil {
		return "", fmt.Errorf("auth: save pending authorization: %w", err)
	}

	params := []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(verifier)}
	if len(opts.Scopes) > 0 {
		params = append(params, oauth2.SetAuthURLParam("scope", strings.Join(opts.Scopes, " ")))
	}
	if opts.Prompt != "" {
		params = append(params, oauth2.SetAuthURLParam("prompt", opts.Prompt))
	}
	if opts.Permissions != 0 {
		params = append(params, oauth2.SetAuthURLParam("permissions", strconv.FormatUint(uint64(opts.Permissions), 10)))
	}
	if opts.GuildID != 0 {
		params = append(params, oauth2.SetAuthURLParam("guild_id", opts.GuildID.String()))
	}
	if opts.DisableGuildSelect {
		params = append(params, oauth2.SetAuthURLParam("disable_guild_select", "true"))
	}

	return m.oauth.AuthCodeURL(state, params...), nil
}

// HandleCallback validates the redirect against the pending authorization
// and exchanges the code for a grant. The pending state is consumed even
// when validation fails.
func (m *Manager) HandleCallback(ctx context.Context, sessionID string, p CallbackParams) error {
	state, verifier, err := m.grants.TakePending(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("auth: load pending authorization: %w", err)
	}

	if state == "" || p.State == "" || subtle.ConstantTimeCompare([]byte(state), []byte(p.State)) != 1 {
		return ErrStateMismatch
	}

	if p.Error != "" {
		logger.Warn("discord callback returned error", map[string]any{
			"error": p.Error,
			"desc":  p.ErrorDescription,
		})
		if p.Error == "access_denied" {
			return ErrAccessDenied
		}
		return fmt.Errorf("%w: %s", ErrAuthorizationFailed, p.Error)
	}

	if p.Code == "" {
		return ErrMissingCode
	}

	issued := m.now()
	token, err := m.oauth.Exchange(m.clientContext(ctx), p.Code, oauth2.VerifierOption(verifier))
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) {
			_, err := tokenEndpointError("token exchange", rErr)
			return err
		}
		return fmt.Errorf("auth: token exchange failed: %w", err)
	}

	prev, hadSubject, err := m.grants.Subject(ctx, sessionID)
	if err != nil {
		return err
	}

	grant := grantFromToken(token, issued, "")
	if err := m.grants.Put(ctx, sessionID, grant, 0); err != nil {
		return fmt.Errorf("auth: store grant: %w", err)
	}
	if hadSubject {
		m.users.Invalidate(prev)
	}

	logger.Info("discord authorization completed", map[string]any{
		"scopes":      grant.Scopes,
		"expiry_unix": grant.Expiry.Unix(),
	})

	return nil
}

// EnsureValidToken returns a usable access token for the session,
// refreshing it once when it has expired. It fails with ErrUnauthorized
// when the session has no grant or Discord rejects the refresh token; in
// the latter case the session is revoked. A throttled or failing token
// endpoint leaves the grant in place.
func (m *Manager) EnsureValidToken(ctx context.Context, sessionID string) (string, error) {
	grant, ok, err := m.grants.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrUnauthorized
	}

	if !grant.Expired(m.now(), m.skew) {
		return grant.AccessToken, nil
	}

	refreshed, err := m.refresh(ctx, sessionID, grant)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

func (m *Manager) refresh(ctx context.Context, sessionID string, grant Grant) (Grant, error) {
	if grant.RefreshToken == "" {
		m.revokeLocal(ctx, sessionID, "no refresh token")
		return Grant{}, fmt.Errorf("%w: grant expired without refresh token", ErrUnauthorized)
	}

	issued := m.now()
	src := m.oauth.TokenSource(m.clientContext(ctx), &oauth2.Token{RefreshToken: grant.RefreshToken})
	token, err := src.Token()
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) {
			rejected, err := tokenEndpointError("refresh", rErr)
			if rejected {
				m.revokeLocal(ctx, sessionID, rErr.ErrorCode)
			}
			return Grant{}, err
		}
		return Grant{}, fmt.Errorf("auth: refresh failed: %w", err)
	}

	subject, _, err := m.grants.Subject(ctx, sessionID)
	if err != nil {
		return Grant{}, err
	}

	refreshed := grantFromToken(token, issued, grant.RefreshToken)
	if len(refreshed.Scopes) == 0 {
		refreshed.Scopes = grant.Scopes
	}
	if err := m.grants.Put(ctx, sessionID, refreshed, subject); err != nil {
		return Grant{}, fmt.Errorf("auth: store refreshed grant: %w", err)
	}

	logger.Info("discord token refreshed", map[string]any{
		"expiry_unix":     refreshed.Expiry.Unix(),
		"refresh_rotated": refreshed.RefreshToken != grant.RefreshToken,
		"subject_present": subject != 0,
	})

	return refreshed, nil
}

// Revoke logs the session out: the grant is revoked at Discord when
// possible, then removed along with the cached user. Calling it on a
// session without a grant is a no-op apart from the revoked marker.
func (m *Manager) Revoke(ctx context.Context, sessionID string) error {
	grant, ok, err := m.grants.Get(ctx, sessionID)
	if err != nil {
		logger.Warn("unreadable grant cleared without remote revocation", map[string]any{
			"error": err.Error(),
		})
		ok = false
	}

	if ok && m.revokeURL != "" {
		if err := m.revokeRemote(ctx, grant); err != nil {
			logger.Warn("discord token revocation failed", map[string]any{
				"error": err.Error(),
			})
		}
	}

	return m.clear(ctx, sessionID)
}

func (m *Manager) revokeLocal(ctx context.Context, sessionID, reason string) {
	logger.Warn("discord grant revoked", map[string]any{"reason": reason})
	if err := m.clear(ctx, sessionID); err != nil {
		logger.Error("failed to clear revoked grant", map[string]any{
			"error": err.Error(),
		})
	}
}

func (m *Manager) clear(ctx context.Context, sessionID string) error {
	subject, hadSubject, err := m.grants.Subject(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := m.grants.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("auth: clear grant: %w", err)
	}
	if hadSubject {
		m.users.Invalidate(subject)
	}
	return nil
}

func (m *Manager) revokeRemote(ctx context.Context, grant Grant) error {
	form := url.Values{
		"token":           {grant.AccessToken},
		"token_type_hint": {"access_token"},
		"client_id":       {m.oauth.ClientID},
		"client_secret":   {m.oauth.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &discord.HTTPError{StatusCode: resp.StatusCode}
	}
	return nil
}

// State reports the lifecycle state of the session.
func (m *Manager) State(ctx context.Context, sessionID string) (State, error) {
	grant, ok, err := m.grants.Get(ctx, sessionID)
	if err != nil {
		return StateUnauthenticated, err
	}
	if ok {
		if grant.Expired(m.now(), m.skew) {
			return StateExpired, nil
		}
		return StateAuthorized, nil
	}

	pending, err := m.grants.HasPending(ctx, sessionID)
	if err != nil {
		return StateUnauthenticated, err
	}
	if pending {
		return StatePendingExchange, nil
	}

	revoked, err := m.grants.Revoked(ctx, sessionID)
	if err != nil {
		return StateUnauthenticated, err
	}
	if revoked {
		return StateRevoked, nil
	}
	return StateUnauthenticated, nil
}

// Authorized reports whether the session holds a grant, expired or not.
func (m *Manager) Authorized(ctx context.Context, sessionID string) bool {
	_, ok, err := m.grants.Get(ctx, sessionID)
	return err == nil && ok
}

// tokenEndpointError classifies a failed token request. rejected is true
// only when Discord refused the grant or client; a 429 becomes a
// *discord.RateLimitedError and other statuses a *discord.HTTPError.
func tokenEndpointError(action string, rErr *oauth2.RetrieveError) (rejected bool, err error) {
	var (
		status int
		header http.Header
	)
	if rErr.Response != nil {
		status = rErr.Response.StatusCode
		header = rErr.Response.Header
	}

	switch {
	case status == http.StatusTooManyRequests:
		return false, fmt.Errorf("auth: %s: %w", action, discord.RateLimitFromResponse(header, rErr.Body))
	case status == http.StatusBadRequest, status == http.StatusUnauthorized,
		rErr.ErrorCode == "invalid_grant", rErr.ErrorCode == "unauthorized_client":
		return true, fmt.Errorf("%w: %s rejected: %v", ErrUnauthorized, action, rErr)
	}

	return false, fmt.Errorf("auth: %s failed: %w", action, &discord.HTTPError{
		StatusCode: status,
		Message:    rErr.ErrorDescription,
	})
}

// grantFromToken snapshots the expiry against issued, the time taken just
// before the token request.
func grantFromToken(token *oauth2.Token, issued time.Time, previousRefresh string) Grant {
	g := Grant{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.Type(),
		Expiry:       token.Expiry,
	}
	if g.RefreshToken == "" {
		g.RefreshToken = previousRefresh
	}
	if ttl := expiresIn(token); ttl > 0 {
		g.Expiry = issued.Add(ttl)
	}
	if scope, ok := token.Extra("scope").(string); ok {
		g.Scopes = strings.Fields(scope)
	}
	return g
}

func expiresIn(token *oauth2.Token) time.Duration {
	if token.ExpiresIn > 0 {
		return time.Duration(token.ExpiresIn) * time.Second
	}

	var secs float64
	switch v := token.Extra("expires_in").(type) {
	case float64:
		secs = v
	case json.Number:
		secs, _ = v.Float64()
	case string:
		secs, _ = strconv.ParseFloat(v, 64)
	}
	return time.Duration(secs * float64(time.Second))
}
