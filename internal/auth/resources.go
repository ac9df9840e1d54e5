package auth

import (
	"context"
	"fmt"

	"discord-auth/internal/discord"
)

// DiscordAPI is the REST surface Resources calls.
type DiscordAPI interface {
	GetUser(ctx context.Context, accessToken string) (*discord.User, error)
	GetGuilds(ctx context.Context, accessToken string) ([]discord.Guild, error)
	GetConnections(ctx context.Context, accessToken string) ([]discord.UserConnection, error)
	AddGuildMember(ctx context.Context, guildID, userID discord.Snowflake, accessToken string) (map[string]any, error)
}

// FetchOptions select what FetchUser loads besides the user itself.
type FetchOptions struct {
	// Cache stores the result in the user cache and binds it to the session.
	Cache       bool
	Guilds      bool
	Connections bool
}

// Resources reads the authorized user's Discord data through the gate and
// keeps the user cache in step with it. Nothing is cached until every
// request of a fetch has succeeded.
type Resources struct {
	tokens *Manager
	api    DiscordAPI
	users  UserCache
}

func NewResources(tokens *Manager, api DiscordAPI, users UserCache) *Resources {
	return &Resources{tokens: tokens, api: api, users: users}
}

// CurrentIdentity returns the session's user from the cache, fetching and
// caching it when the session has no cached user yet.
func (r *Resources) CurrentIdentity(ctx context.Context, sessionID string) (*discord.User, error) {
	u, ok, err := r.UserFromCache(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if ok {
		return u, nil
	}
	return r.FetchUser(ctx, sessionID, FetchOptions{Cache: true})
}

// UserFromCache looks up the user bound to the session without any request.
func (r *Resources) UserFromCache(ctx context.Context, sessionID string) (*discord.User, bool, error) {
	subject, ok, err := r.tokens.grants.Subject(ctx, sessionID)
	if err != nil || !ok {
		return nil, false, err
	}
	u, ok := r.users.Get(subject)
	return u, ok, nil
}

// FetchUser always asks Discord for the user.
func (r *Resources) FetchUser(ctx context.Context, sessionID string, opts FetchOptions) (*discord.User, error) {
	var u *discord.User
	err := r.tokens.Guard(ctx, sessionID, func(ctx context.Context) error {
		token, _ := TokenFromContext(ctx)

		fetched, err := r.api.GetUser(ctx, token)
		if err != nil {
			return err
		}
		if opts.Guilds {
			guilds, err := r.api.GetGuilds(ctx, token)
			if err != nil {
				return err
			}
			fetched = fetched.WithGuilds(guilds)
		}
		if opts.Connections {
			conns, err := r.api.GetConnections(ctx, token)
			if err != nil {
				return err
			}
			fetched = fetched.WithConnections(conns)
		}
		u = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}

	if opts.Cache {
		if err := r.tokens.grants.BindSubject(ctx, sessionID, u.ID); err != nil {
			return nil, fmt.Errorf("auth: bind subject: %w", err)
		}
		r.users.Put(u)
	}
	return u, nil
}

// Guilds returns the cached guild list when one was fetched, otherwise it
// fetches and caches it.
func (r *Resources) Guilds(ctx context.Context, sessionID string) ([]discord.Guild, error) {
	if u, ok, err := r.UserFromCache(ctx, sessionID); err != nil {
		return nil, err
	} else if ok {
		if guilds, fetched := u.Guilds(); fetched {
			return guilds, nil
		}
	}
	return r.FetchGuilds(ctx, sessionID, true)
}

// FetchGuilds asks Discord for the guild list. With cache set, the list is
// attached to the session's cached user, fetching the user first if needed.
func (r *Resources) FetchGuilds(ctx context.Context, sessionID string, cache bool) ([]discord.Guild, error) {
	var guilds []discord.Guild
	err := r.tokens.Guard(ctx, sessionID, func(ctx context.Context) error {
		token, _ := TokenFromContext(ctx)
		var err error
		guilds, err = r.api.GetGuilds(ctx, token)
		return err
	})
	if err != nil {
		return nil, err
	}

	if cache {
		if err := r.attach(ctx, sessionID, func(u *discord.User) *discord.User {
			return u.WithGuilds(guilds)
		}); err != nil {
			return nil, err
		}
	}
	return guilds, nil
}

// Connections returns the cached connection list or fetches and caches it.
func (r *Resources) Connections(ctx context.Context, sessionID string) ([]discord.UserConnection, error) {
	if u, ok, err := r.UserFromCache(ctx, sessionID); err != nil {
		return nil, err
	} else if ok {
		if conns, fetched := u.Connections(); fetched {
			return conns, nil
		}
	}
	return r.FetchConnections(ctx, sessionID, true)
}

func (r *Resources) FetchConnections(ctx context.Context, sessionID string, cache bool) ([]discord.UserConnection, error) {
	var conns []discord.UserConnection
	err := r.tokens.Guard(ctx, sessionID, func(ctx context.Context) error {
		token, _ := TokenFromContext(ctx)
		var err error
		conns, err = r.api.GetConnections(ctx, token)
		return err
	})
	if err != nil {
		return nil, err
	}

	if cache {
		if err := r.attach(ctx, sessionID, func(u *discord.User) *discord.User {
			return u.WithConnections(conns)
		}); err != nil {
			return nil, err
		}
	}
	return conns, nil
}

func (r *Resources) attach(ctx context.Context, sessionID string, fn func(*discord.User) *discord.User) error {
	u, err := r.CurrentIdentity(ctx, sessionID)
	if err != nil {
		return err
	}
	r.users.Update(u.ID, fn)
	return nil
}

// JoinGuild adds the session's user to a guild through the bot. The grant
// must include the guilds.join scope.
func (r *Resources) JoinGuild(ctx context.Context, sessionID string, guildID discord.Snowflake) (map[string]any, error) {
	if guildID == 0 {
		return nil, fmt.Errorf("auth: %w: guild id required", discord.ErrInvalidParameter)
	}

	u, err := r.CurrentIdentity(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	grant, ok, err := r.tokens.grants.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnauthorized
	}
	if len(grant.Scopes) > 0 && !grant.HasScope("guilds.join") {
		return nil, fmt.Errorf("%w: guilds.join scope not granted", ErrUnauthorized)
	}

	var member map[string]any
	err = r.tokens.Guard(ctx, sessionID, func(ctx context.Context) error {
		token, _ := TokenFromContext(ctx)
		var err error
		member, err = r.api.AddGuildMember(ctx, guildID, u.ID, token)
		return err
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}
