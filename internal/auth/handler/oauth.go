package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"discord-auth/internal/auth"
	"discord-auth/internal/discord"
	"discord-auth/internal/logger"
	"discord-auth/internal/session"

	"github.com/gin-gonic/gin"
)

func (h *Handler) login(c *gin.Context) {
	opts, err := authorizationOptions(c)
	if err != nil {
		writeError(c, err)
		return
	}

	sid, err := h.sessionID(c)
	if err != nil {
		h.abortInternal(c, "failed to create session", err)
		return
	}

	authURL, err := h.tokens.StartAuthorization(c.Request.Context(), sid, opts)
	if err != nil {
		h.abortInternal(c, "failed to start authorization", err)
		return
	}

	c.Redirect(http.StatusFound, authURL)
}

func authorizationOptions(c *gin.Context) (auth.AuthorizationOptions, error) {
	var opts auth.AuthorizationOptions

	if scope := c.Query("scope"); scope != "" {
		opts.Scopes = strings.FieldsFunc(scope, func(r rune) bool {
			return r == ' ' || r == ','
		})
	}

	switch prompt := c.Query("prompt"); prompt {
	case "", "consent", "none":
		opts.Prompt = prompt
	default:
		return opts, fmt.Errorf("%w: prompt must be consent or none", discord.ErrInvalidParameter)
	}

	if v := c.Query("permissions"); v != "" {
		perms, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return opts, fmt.Errorf("%w: permissions %q", discord.ErrInvalidParameter, v)
		}
		opts.Permissions = discord.Permissions(perms)
	}

	if v := c.Query("guild_id"); v != "" {
		id, err := discord.ParseSnowflake(v)
		if err != nil {
			return opts, fmt.Errorf("%w: guild_id %q", discord.ErrInvalidParameter, v)
		}
		opts.GuildID = id
	}

	opts.DisableGuildSelect = c.Query("disable_guild_select") == "true"
	return opts, nil
}

func (h *Handler) callback(c *gin.Context) {
	sid, ok := session.IDFromRequest(c.Request)
	if !ok {
		writeError(c, auth.ErrStateMismatch)
		return
	}

	err := h.tokens.HandleCallback(c.Request.Context(), sid, auth.CallbackParams{
		Code:             c.Query("code"),
		State:            c.Query("state"),
		Error:            c.Query("error"),
		ErrorDescription: c.Query("error_description"),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	logger.Info("login succeeded", map[string]any{
		"ip": c.ClientIP(),
	})

	c.JSON(http.StatusOK, gin.H{
		"status": "authenticated",
	})
}

func (h *Handler) logout(c *gin.Context) {
	if sid, ok := session.IDFromRequest(c.Request); ok {
		if err := h.tokens.Revoke(c.Request.Context(), sid); err != nil {
			logger.Warn("logout failed to clear session", map[string]any{
				"error": err.Error(),
			})
		}
	}

	session.ClearCookie(c.Writer, h.cookie)

	c.Status(http.StatusNoContent)
}
