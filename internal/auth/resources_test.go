package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"discord-auth/internal/discord"
	"discord-auth/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentIdentity_FetchesOnceThenServesCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.authorize(t, "sid")

	u, err := h.resources.CurrentIdentity(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, discord.Snowflake(80351110224678912), u.ID)
	assert.Equal(t, 1, h.discord.Calls("user"))

	again, err := h.resources.CurrentIdentity(ctx, "sid")
	require.NoError(t, err)
	assert.True(t, again.Equal(u))
	assert.Equal(t, 1, h.discord.Calls("user"), "second call is served from cache")

	subject, ok, err := h.manager.Grants().Subject(ctx, "sid")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, u.ID, subject)
}

func TestCurrentIdentity_Unauthenticated(t *testing.T) {
	h := newHarness(t)

	_, err := h.resources.CurrentIdentity(context.Background(), "sid")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 0, h.discord.Calls("user"))
}

func TestCurrentIdentity_RefreshesExpiredTokenBeforeFetch(t *testing.T) {
	h := newHarness(t)
	h.authorize(t, "sid")
	h.clock.Advance(2 * time.Hour)

	_, err := h.resources.CurrentIdentity(context.Background(), "sid")
	require.NoError(t, err)
	assert.Equal(t, 1, h.discord.Calls("refresh"))
	assert.Equal(t, 1, h.discord.Calls("user"))
}

func TestCache_SharedAcrossSessionsOfSameSubject(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.authorize(t, "laptop")
	_, err := h.resources.CurrentIdentity(ctx, "laptop")
	require.NoError(t, err)

	h.authorize(t, "phone")
	_, err = h.resources.CurrentIdentity(ctx, "phone")
	require.NoError(t, err)

	assert.Equal(t, 1, h.users.Len())
	assert.Equal(t, 2, h.discord.Calls("user"), "each session binds its subject with one fetch")
}

func TestFetchUser_WithoutCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.authorize(t, "sid")

	u, err := h.resources.FetchUser(ctx, "sid", FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "nelly", u.Username)
	assert.Equal(t, 0, h.users.Len())

	_, ok, err := h.resources.UserFromCache(ctx, "sid")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFetchUser_WithGuildsAndConnections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.authorize(t, "sid")

	u, err := h.resources.FetchUser(ctx, "sid", FetchOptions{Cache: true, Guilds: true, Connections: true})
	require.NoError(t, err)

	guilds, ok := u.Guilds()
	require.True(t, ok)
	assert.Len(t, guilds, 2)
	conns, ok := u.Connections()
	require.True(t, ok)
	assert.Equal(t, "github", conns[0].Type)

	cached, ok, err := h.resources.UserFromCache(ctx, "sid")
	require.NoError(t, err)
	require.True(t, ok)
	_, ok = cached.Guilds()
	assert.True(t, ok)
}

func TestFetchUser_MalformedKeepsCachedEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.authorize(t, "sid")
	old, err := h.resources.CurrentIdentity(ctx, "sid")
	require.NoError(t, err)

	h.discord.set(func(f *fakeDiscord) { f.userBody = `{"username":"no-id"}` })
	_, err = h.resources.FetchUser(ctx, "sid", FetchOptions{Cache: true})
	assert.ErrorIs(t, err, discord.ErrMalformedResponse)

	cached, ok := h.users.Get(old.ID)
	require.True(t, ok)
	assert.Same(t, old, cached)
}

func TestFetchUser_FailureCachesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.authorize(t, "sid")

	h.discord.set(func(f *fakeDiscord) { f.accessToken = "rotated-elsewhere" })
	_, err := h.resources.FetchUser(ctx, "sid", FetchOptions{Cache: true, Guilds: true})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 0, h.users.Len())
}

// subjectWriteFails rejects any write that binds a user to the session.
type subjectWriteFails struct {
	session.Store
}

func (s subjectWriteFails) Set(ctx context.Context, sessionID string, values map[string]string) error {
	if v, ok := values[keySubject]; ok && v != "" {
		return errors.New("session store unavailable")
	}
	return s.Store.Set(ctx, sessionID, values)
}

func TestFetchUser_SessionWriteFailureCachesNothing(t *testing.T) {
	h := newHarnessWithStore(t, func(s session.Store) session.Store { return subjectWriteFails{Store: s} })
	ctx := context.Background()
	h.authorize(t, "sid")

	_, err := h.resources.FetchUser(ctx, "sid", FetchOptions{Cache: true})
	require.Error(t, err)
	assert.Equal(t, 0, h.users.Len(), "cache untouched when the session cannot be bound")

	_, bound, err := h.manager.Grants().Subject(ctx, "sid")
	require.NoError(t, err)
	assert.False(t, bound)
}

func TestFetchUser_ProviderUnauthorizedPropagates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.authorize(t, "sid")
	h.discord.set(func(f *fakeDiscord) { f.accessToken = "" })

	_, err := h.resources.CurrentIdentity(ctx, "sid")
	assert.ErrorIs(t, err, ErrUnauthorized)

	var httpErr *discord.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, 401, httpErr.StatusCode)
	assert.Equal(t, 0, h.discord.Calls("refresh"), "a 401 is not retried")
}

func TestGuilds_CachedAfterFirstFetch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.authorize(t, "sid")

	guilds, err := h.resources.Guilds(ctx, "sid")
	require.NoError(t, err)
	assert.Len(t, guilds, 2)

	again, err := h.resources.Guilds(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, guilds, again)
	assert.Equal(t, 1, h.discord.Calls("guilds"))
	assert.Equal(t, 1, h.discord.Calls("user"))

	fresh, err := h.resources.FetchGuilds(ctx, "sid", false)
	require.NoError(t, err)
	assert.Len(t, fresh, 2)
	assert.Equal(t, 2, h.discord.Calls("guilds"))
}

func TestConnections_CachedAfterFirstFetch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.authorize(t, "sid")

	conns, err := h.resources.Connections(ctx, "sid")
	require.NoError(t, err)
	assert.Len(t, conns, 1)

	_, err = h.resources.Connections(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, 1, h.discord.Calls("connections"))
}

func TestReauthorization_InvalidatesCachedUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.authorize(t, "sid")
	_, err := h.resources.Guilds(ctx, "sid")
	require.NoError(t, err)

	h.authorize(t, "sid")
	assert.Equal(t, 0, h.users.Len())

	_, err = h.resources.CurrentIdentity(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, 2, h.discord.Calls("user"))
}

func TestLogout_ClearsIdentity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.authorize(t, "sid")
	_, err := h.resources.CurrentIdentity(ctx, "sid")
	require.NoError(t, err)

	require.NoError(t, h.manager.Revoke(ctx, "sid"))

	_, ok, err := h.resources.UserFromCache(ctx, "sid")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = h.resources.CurrentIdentity(ctx, "sid")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestJoinGuild(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.authorize(t, "sid")

	member, err := h.resources.JoinGuild(ctx, "sid", 555)
	require.NoError(t, err)
	assert.Contains(t, member, "user")
	assert.Equal(t, 1, h.discord.Calls("join"))
}

func TestJoinGuild_RequiresScope(t *testing.T) {
	h := newHarness(t)
	h.discord.set(func(f *fakeDiscord) { f.scope = "identify guilds" })
	h.authorize(t, "sid")

	_, err := h.resources.JoinGuild(context.Background(), "sid", 555)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 0, h.discord.Calls("join"))
}

func TestJoinGuild_InvalidGuild(t *testing.T) {
	h := newHarness(t)
	h.authorize(t, "sid")

	_, err := h.resources.JoinGuild(context.Background(), "sid", 0)
	assert.ErrorIs(t, err, discord.ErrInvalidParameter)
}
