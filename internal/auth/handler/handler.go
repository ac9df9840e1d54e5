package handler

import (
	"net/http"
	"time"

	"discord-auth/internal/auth"
	"discord-auth/internal/discord"
	"discord-auth/internal/logger"
	"discord-auth/internal/session"

	"github.com/gin-gonic/gin"
)

// defaultImageSize is the CDN size used when a request names none.
const defaultImageSize = 1024

type Handler struct {
	tokens     *auth.Manager
	resources  *auth.Resources
	images     discord.ImageConfig
	cookie     session.CookieOptions
	sessionTTL time.Duration
}

func NewHandler(
	tokens *auth.Manager,
	resources *auth.Resources,
	images discord.ImageConfig,
	cookie session.CookieOptions,
	sessionTTL time.Duration,
) *Handler {
	return &Handler{
		tokens:     tokens,
		resources:  resources,
		images:     images,
		cookie:     cookie,
		sessionTTL: sessionTTL,
	}
}

// RegisterRoutes mounts the OAuth flow on r and the user API behind gate.
func (h *Handler) RegisterRoutes(r *gin.Engine, gate gin.HandlerFunc) {
	r.GET("/oauth/login", h.login)
	r.GET("/oauth/callback", h.callback)
	r.POST("/oauth/logout", h.logout)

	api := r.Group("/api/me", gate)
	api.GET("", h.me)
	api.GET("/guilds", h.guilds)
	api.GET("/connections", h.connections)
	api.PUT("/guilds/:guild_id", h.joinGuild)

	for _, route := range r.Routes() {
		logger.Debug("route registered", map[string]any{
			"method": route.Method,
			"path":   route.Path,
		})
	}
}

// sessionID returns the request's session, issuing a new cookie when the
// client has none.
func (h *Handler) sessionID(c *gin.Context) (string, error) {
	if sid, ok := session.IDFromRequest(c.Request); ok {
		return sid, nil
	}

	sid, err := session.GenerateID()
	if err != nil {
		return "", err
	}
	session.SetCookie(c.Writer, sid, time.Now().Add(h.sessionTTL), h.cookie)
	return sid, nil
}

func gatedSession(c *gin.Context) string {
	sid, _ := auth.SessionFromContext(c.Request.Context())
	return sid
}

func forceRefresh(c *gin.Context) bool {
	return c.Query("refresh") == "true"
}

func (h *Handler) abortInternal(c *gin.Context, msg string, err error) {
	logger.Error(msg, map[string]any{
		"path":  c.Request.URL.Path,
		"error": err.Error(),
	})
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
