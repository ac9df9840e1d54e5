package discord

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// GuildsRoute lists the guilds of the authorized user.
const GuildsRoute = "/users/@me/guilds"

// Permissions is a Discord permission bitmask.
type Permissions uint64

const (
	PermissionCreateInstantInvite Permissions = 1 << 0
	PermissionKickMembers         Permissions = 1 << 1
	PermissionBanMembers          Permissions = 1 << 2
	PermissionAdministrator       Permissions = 1 << 3
	PermissionManageChannels      Permissions = 1 << 4
	PermissionManageGuild         Permissions = 1 << 5
)

// Has reports whether every bit of p is set. Administrator implies all.
func (perms Permissions) Has(p Permissions) bool {
	if perms&PermissionAdministrator != 0 {
		return true
	}
	return perms&p == p
}

// UnmarshalJSON accepts the string form used by API v8+ and the legacy number.
func (perms *Permissions) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*perms = 0
		return nil
	}
	v, err := strconv.ParseUint(string(bytes.Trim(data, `"`)), 10, 64)
	if err != nil {
		return err
	}
	*perms = Permissions(v)
	return nil
}

// Guild is a guild the authorized user is a member of.
type Guild struct {
	ID          Snowflake
	Name        string
	IconHash    string
	Owner       bool
	Permissions Permissions
}

type guildPayload struct {
	ID          *Snowflake  `json:"id"`
	Name        *string     `json:"name"`
	Icon        *string     `json:"icon"`
	Owner       bool        `json:"owner"`
	Permissions Permissions `json:"permissions"`
}

// DecodeGuilds decodes a /users/@me/guilds payload. Every entry needs an id
// and a name; one bad entry fails the whole list.
func DecodeGuilds(data []byte) ([]Guild, error) {
	var payload []guildPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, malformed("guilds: %v", err)
	}

	guilds := make([]Guild, 0, len(payload))
	for i, p := range payload {
		if p.ID == nil {
			return nil, malformed("guilds[%d]: missing id", i)
		}
		if p.Name == nil {
			return nil, malformed("guilds[%d]: missing name", i)
		}
		g := Guild{
			ID:          *p.ID,
			Name:        *p.Name,
			Owner:       p.Owner,
			Permissions: p.Permissions,
		}
		if p.Icon != nil {
			g.IconHash = *p.Icon
		}
		guilds = append(guilds, g)
	}

	return guilds, nil
}

func (g Guild) String() string {
	return g.Name
}

// IconURL returns the guild icon, or "" when the guild has none.
func (g Guild) IconURL(images ImageConfig, size int) (string, error) {
	if err := CheckSize(size); err != nil {
		return "", err
	}
	if g.IconHash == "" {
		return "", nil
	}

	return expand(images.GuildIcon,
		"guild_id", g.ID.String(),
		"icon_hash", g.IconHash,
		"format", images.format(g.IconHash),
		"size", sizeString(size),
	), nil
}
