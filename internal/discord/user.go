package discord

import (
	"encoding/json"
	"strconv"
)

// UserRoute is the REST route of the authorized user.
const UserRoute = "/users/@me"

// User is the Discord account the session is authorized for. A *User is
// never modified after decoding; WithGuilds and WithConnections return copies.
type User struct {
	ID            Snowflake
	Username      string
	DisplayName   string
	Discriminator int
	AvatarHash    string
	Bot           bool
	MFAEnabled    bool
	Locale        string
	Verified      bool
	Email         string
	Flags         int
	PremiumType   int

	guilds      []Guild
	guildsSet   bool
	connections []UserConnection
	connsSet    bool
}

type userPayload struct {
	ID            *Snowflake `json:"id"`
	Username      *string    `json:"username"`
	GlobalName    *string    `json:"global_name"`
	Discriminator *string    `json:"discriminator"`
	Avatar        *string    `json:"avatar"`
	Bot           bool       `json:"bot"`
	MFAEnabled    bool       `json:"mfa_enabled"`
	Locale        string     `json:"locale"`
	Verified      bool       `json:"verified"`
	Email         *string    `json:"email"`
	Flags         int        `json:"flags"`
	PremiumType   int        `json:"premium_type"`
}

// DecodeUser decodes a /users/@me payload. id and username are required.
func DecodeUser(data []byte) (*User, error) {
	var p userPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, malformed("user: %v", err)
	}
	if p.ID == nil {
		return nil, malformed("user: missing id")
	}
	if p.Username == nil {
		return nil, malformed("user: missing username")
	}

	u := &User{
		ID:          *p.ID,
		Username:    *p.Username,
		Bot:         p.Bot,
		MFAEnabled:  p.MFAEnabled,
		Locale:      p.Locale,
		Verified:    p.Verified,
		Flags:       p.Flags,
		PremiumType: p.PremiumType,
	}
	if p.GlobalName != nil {
		u.DisplayName = *p.GlobalName
	}
	if p.Avatar != nil {
		u.AvatarHash = *p.Avatar
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Discriminator != nil && *p.Discriminator != "" {
		d, err := strconv.Atoi(*p.Discriminator)
		if err != nil || d < 0 {
			return nil, malformed("user: discriminator %q", *p.Discriminator)
		}
		u.Discriminator = d
	}

	return u, nil
}

func (u *User) String() string {
	return u.Username
}

// Equal reports whether both records describe the same Discord account.
func (u *User) Equal(other *User) bool {
	return u != nil && other != nil && u.ID == other.ID
}

// Name returns the display name, falling back to the username.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

func (u *User) HasAvatar() bool {
	return u.AvatarHash != ""
}

func (u *User) IsAvatarAnimated() bool {
	return isAnimated(u.AvatarHash)
}

// AvatarURL returns the CDN URL of the custom avatar, or "" when the user
// has none.
func (u *User) AvatarURL(images ImageConfig, size int) (string, error) {
	if err := CheckSize(size); err != nil {
		return "", err
	}
	if !u.HasAvatar() {
		return "", nil
	}

	return expand(images.UserAvatar,
		"user_id", u.ID.String(),
		"avatar_hash", u.AvatarHash,
		"format", images.format(u.AvatarHash),
		"size", sizeString(size),
	), nil
}

// DefaultAvatarIndex selects one of Discord's built-in avatars. Legacy
// tagged users use discriminator mod 5; migrated users (discriminator 0)
// use (id >> 22) mod 6.
func (u *User) DefaultAvatarIndex() int {
	if u.Discriminator != 0 {
		return u.Discriminator % 5
	}
	return int((uint64(u.ID) >> 22) % 6)
}

// DefaultAvatarURL returns the built-in avatar Discord shows when none is set.
func (u *User) DefaultAvatarURL(images ImageConfig, size int) (string, error) {
	if err := CheckSize(size); err != nil {
		return "", err
	}

	return expand(images.DefaultUserAvatar,
		"index", strconv.Itoa(u.DefaultAvatarIndex()),
		"size", sizeString(size),
	), nil
}

// DisplayAvatarURL returns the custom avatar when set, otherwise the default one.
func (u *User) DisplayAvatarURL(images ImageConfig, size int) (string, error) {
	if u.HasAvatar() {
		return u.AvatarURL(images, size)
	}
	return u.DefaultAvatarURL(images, size)
}

// Guilds returns the attached guild list; ok is false until one is attached.
func (u *User) Guilds() (guilds []Guild, ok bool) {
	return u.guilds, u.guildsSet
}

// Connections returns the attached connection list; ok is false until one is attached.
func (u *User) Connections() (connections []UserConnection, ok bool) {
	return u.connections, u.connsSet
}

// WithGuilds returns a copy of u carrying guilds. A nil slice still marks
// the list as fetched.
func (u *User) WithGuilds(guilds []Guild) *User {
	c := *u
	c.guilds = append([]Guild{}, guilds...)
	c.guildsSet = true
	return &c
}

// WithConnections returns a copy of u carrying connections.
func (u *User) WithConnections(connections []UserConnection) *User {
	c := *u
	c.connections = append([]UserConnection{}, connections...)
	c.connsSet = true
	return &c
}

// Guild looks up an attached guild by ID.
func (u *User) Guild(id Snowflake) (Guild, bool) {
	for _, g := range u.guilds {
		if g.ID == id {
			return g, true
		}
	}
	return Guild{}, false
}
