package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"discord-auth/internal/auth"
	"discord-auth/internal/discord"

	"github.com/gin-gonic/gin"
)

type userView struct {
	ID               discord.Snowflake `json:"id"`
	Username         string            `json:"username"`
	DisplayName      string            `json:"display_name,omitempty"`
	Discriminator    int               `json:"discriminator,omitempty"`
	Email            string            `json:"email,omitempty"`
	Verified         bool              `json:"verified"`
	MFAEnabled       bool              `json:"mfa_enabled"`
	Locale           string            `json:"locale,omitempty"`
	AvatarURL        string            `json:"avatar_url,omitempty"`
	DefaultAvatarURL string            `json:"default_avatar_url"`
	Guilds           []guildView       `json:"guilds,omitempty"`
	Connections      []connectionView  `json:"connections,omitempty"`
}

type guildView struct {
	ID          discord.Snowflake `json:"id"`
	Name        string            `json:"name"`
	IconURL     string            `json:"icon_url,omitempty"`
	Owner       bool              `json:"owner"`
	Permissions string            `json:"permissions"`
}

type connectionView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Verified bool   `json:"verified"`
	Revoked  bool   `json:"revoked"`
}

func imageSize(c *gin.Context) (int, error) {
	v := c.Query("size")
	if v == "" {
		return defaultImageSize, nil
	}
	size, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: size %q", discord.ErrInvalidParameter, v)
	}
	return size, discord.CheckSize(size)
}

func (h *Handler) newUserView(u *discord.User, size int) (userView, error) {
	avatar, err := u.AvatarURL(h.images, size)
	if err != nil {
		return userView{}, err
	}
	defaultAvatar, err := u.DefaultAvatarURL(h.images, size)
	if err != nil {
		return userView{}, err
	}

	view := userView{
		ID:               u.ID,
		Username:         u.Username,
		DisplayName:      u.DisplayName,
		Discriminator:    u.Discriminator,
		Email:            u.Email,
		Verified:         u.Verified,
		MFAEnabled:       u.MFAEnabled,
		Locale:           u.Locale,
		AvatarURL:        avatar,
		DefaultAvatarURL: defaultAvatar,
	}
	if guilds, ok := u.Guilds(); ok {
		if view.Guilds, err = h.guildViews(guilds, size); err != nil {
			return userView{}, err
		}
	}
	if conns, ok := u.Connections(); ok {
		view.Connections = connectionViews(conns)
	}
	return view, nil
}

func (h *Handler) guildViews(guilds []discord.Guild, size int) ([]guildView, error) {
	views := make([]guildView, 0, len(guilds))
	for _, g := range guilds {
		icon, err := g.IconURL(h.images, size)
		if err != nil {
			return nil, err
		}
		views = append(views, guildView{
			ID:          g.ID,
			Name:        g.Name,
			IconURL:     icon,
			Owner:       g.Owner,
			Permissions: strconv.FormatUint(uint64(g.Permissions), 10),
		})
	}
	return views, nil
}

func connectionViews(conns []discord.UserConnection) []connectionView {
	views := make([]connectionView, 0, len(conns))
	for _, conn := range conns {
		views = append(views, connectionView{
			ID:       conn.ID,
			Name:     conn.Name,
			Type:     conn.Type,
			Verified: conn.Verified,
			Revoked:  conn.Revoked,
		})
	}
	return views
}

func (h *Handler) me(c *gin.Context) {
	size, err := imageSize(c)
	if err != nil {
		writeError(c, err)
		return
	}

	ctx, sid := c.Request.Context(), gatedSession(c)

	var u *discord.User
	if forceRefresh(c) {
		u, err = h.resources.FetchUser(ctx, sid, auth.FetchOptions{Cache: true})
	} else {
		u, err = h.resources.CurrentIdentity(ctx, sid)
	}
	if err != nil {
		writeError(c, err)
		return
	}

	view, err := h.newUserView(u, size)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) guilds(c *gin.Context) {
	size, err := imageSize(c)
	if err != nil {
		writeError(c, err)
		return
	}

	ctx, sid := c.Request.Context(), gatedSession(c)

	var guilds []discord.Guild
	if forceRefresh(c) {
		guilds, err = h.resources.FetchGuilds(ctx, sid, true)
	} else {
		guilds, err = h.resources.Guilds(ctx, sid)
	}
	if err != nil {
		writeError(c, err)
		return
	}

	views, err := h.guildViews(guilds, size)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (h *Handler) connections(c *gin.Context) {
	ctx, sid := c.Request.Context(), gatedSession(c)

	var (
		conns []discord.UserConnection
		err   error
	)
	if forceRefresh(c) {
		conns, err = h.resources.FetchConnections(ctx, sid, true)
	} else {
		conns, err = h.resources.Connections(ctx, sid)
	}
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, connectionViews(conns))
}

func (h *Handler) joinGuild(c *gin.Context) {
	guildID, err := discord.ParseSnowflake(c.Param("guild_id"))
	if err != nil {
		writeError(c, fmt.Errorf("%w: guild_id %q", discord.ErrInvalidParameter, c.Param("guild_id")))
		return
	}

	member, err := h.resources.JoinGuild(c.Request.Context(), gatedSession(c), guildID)
	if err != nil {
		writeError(c, err)
		return
	}

	if len(member) == 0 {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, member)
}
