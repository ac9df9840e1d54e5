package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"discord-auth/internal/cache"
	"discord-auth/internal/discord"
	"discord-auth/internal/session"

	"github.com/stretchr/testify/require"
)

// fakeDiscord serves the token, revoke and REST endpoints a session uses.
type fakeDiscord struct {
	t   *testing.T
	srv *httptest.Server

	mu            sync.Mutex
	accessToken   string
	refreshToken  string
	issued        int
	rotate        bool // issue a new refresh token on every refresh
	rejectRefresh bool
	// tokenFailure, when set, answers token requests of that grant type
	tokenFailure map[string]func(w http.ResponseWriter)
	userBody      string
	scope         string
	calls         map[string]int
	revoked       []string
}

func newFakeDiscord(t *testing.T) *fakeDiscord {
	f := &fakeDiscord{
		t:        t,
		calls:    map[string]int{},
		userBody: `{"id":"80351110224678912","username":"nelly","discriminator":"0","avatar":null}`,
		scope:    "identify guilds connections guilds.join",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth2/token", f.token)
	mux.HandleFunc("POST /oauth2/token/revoke", f.revoke)
	mux.HandleFunc("GET /api/users/@me", f.authed("user", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		body := f.userBody
		f.mu.Unlock()
		_, _ = w.Write([]byte(body))
	}))
	mux.HandleFunc("GET /api/users/@me/guilds", f.authed("guilds", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"1","name":"one","owner":true,"permissions":"8"},{"id":"2","name":"two","permissions":"0"}]`))
	}))
	mux.HandleFunc("GET /api/users/@me/connections", f.authed("connections", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"gh-1","name":"nelly","type":"github","verified":true}]`))
	}))
	mux.HandleFunc("PUT /api/guilds/{guild}/members/{user}", func(w http.ResponseWriter, r *http.Request) {
		f.count("join")
		if r.Header.Get("Authorization") != "Bot bot-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprintf(w, `{"user":{"id":%q},"roles":[]}`, r.PathValue("user"))
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeDiscord) count(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeDiscord) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeDiscord) Revoked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.revoked...)
}

func (f *fakeDiscord) set(fn func(f *fakeDiscord)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeDiscord) token(w http.ResponseWriter, r *http.Request) {
	require.NoError(f.t, r.ParseForm())

	f.mu.Lock()
	defer f.mu.Unlock()

	if r.PostForm.Get("client_id") != "client" || r.PostForm.Get("client_secret") != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
		return
	}

	if fail := f.tokenFailure[r.PostForm.Get("grant_type")]; fail != nil {
		f.calls["token_failure"]++
		fail(w)
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		f.calls["exchange"]++
		if r.PostForm.Get("code") != "abc" || r.PostForm.Get("code_verifier") == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		f.issued++
		f.accessToken = fmt.Sprintf("access-%d", f.issued)
		f.refreshToken = "refresh-1"
		f.writeToken(w, f.refreshToken)
	case "refresh_token":
		f.calls["refresh"]++
		if f.rejectRefresh || r.PostForm.Get("refresh_token") != f.refreshToken {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		f.issued++
		f.accessToken = fmt.Sprintf("access-%d", f.issued)
		newRefresh := ""
		if f.rotate {
			f.refreshToken = fmt.Sprintf("refresh-%d", f.issued)
			newRefresh = f.refreshToken
		}
		f.writeToken(w, newRefresh)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (f *fakeDiscord) writeToken(w http.ResponseWriter, refresh string) {
	w.Header().Set("Content-Type", "application/json")
	body := fmt.Sprintf(`{"access_token":%q,"token_type":"Bearer","expires_in":3600,"scope":%q`, f.accessToken, f.scope)
	if refresh != "" {
		body += fmt.Sprintf(`,"refresh_token":%q`, refresh)
	}
	_, _ = w.Write([]byte(body + "}"))
}

func (f *fakeDiscord) revoke(w http.ResponseWriter, r *http.Request) {
	require.NoError(f.t, r.ParseForm())
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["revoke"]++
	f.revoked = append(f.revoked, r.PostForm.Get("token"))
	if r.PostForm.Get("token") == f.accessToken {
		f.accessToken = ""
	}
}

func (f *fakeDiscord) authed(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.count(name)
		f.mu.Lock()
		current := f.accessToken
		f.mu.Unlock()
		if current == "" || r.Header.Get("Authorization") != "Bearer "+current {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"401: Unauthorized","code":0}`))
			return
		}
		h(w, r)
	}
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	discord   *fakeDiscord
	store     *session.MemoryStore
	users     *cache.Users
	clock     *clock
	manager   *Manager
	resources *Resources
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithStore(t, nil)
}

// newHarnessWithStore lets wrap put a different store in front of the
// memory store the harness inspects.
func newHarnessWithStore(t *testing.T, wrap func(session.Store) session.Store) *harness {
	t.Helper()

	fake := newFakeDiscord(t)
	h := &harness{
		discord: fake,
		store:   session.NewMemoryStore(0),
		users:   cache.NewUsers(),
		clock:   &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}

	var store session.Store = h.store
	if wrap != nil {
		store = wrap(h.store)
	}

	m, err := NewManager(store, h.users, Options{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://app.example/oauth/callback",
		Scopes:       []string{"identify", "guilds"},
		AuthURL:      fake.srv.URL + "/oauth2/authorize",
		TokenURL:     fake.srv.URL + "/oauth2/token",
		RevokeURL:    fake.srv.URL + "/oauth2/token/revoke",
		ExpirySkew:   10 * time.Second,
		HTTPClient:   fake.srv.Client(),
		Now:          h.clock.Now,
	})
	require.NoError(t, err)
	h.manager = m
	h.resources = NewResources(m, discord.NewClient(fake.srv.URL+"/api", fake.srv.Client(), "bot-token"), h.users)

	return h
}

// authorize runs the full login flow for sessionID and returns the issued state.
func (h *harness) authorize(t *testing.T, sessionID string) string {
	t.Helper()
	ctx := context.Background()

	authURL, err := h.manager.StartAuthorization(ctx, sessionID, AuthorizationOptions{})
	require.NoError(t, err)
	state := queryParam(t, authURL, "state")

	require.NoError(t, h.manager.HandleCallback(ctx, sessionID, CallbackParams{Code: "abc", State: state}))
	return state
}

func queryParam(t *testing.T, rawURL, name string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return u.Query().Get(name)
}
