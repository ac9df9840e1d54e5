package app

import (
	"context"
	"net/http"
	"time"

	"discord-auth/internal/auth"
	"discord-auth/internal/auth/handler"
	"discord-auth/internal/cache"
	"discord-auth/internal/config"
	"discord-auth/internal/discord"
	"discord-auth/internal/middleware"
	"discord-auth/internal/session"

	"github.com/gin-gonic/gin"
)

func setupHTTP(ctx context.Context, cfg *config.Config) (*gin.Engine, func() error, error) {
	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	router, err := newRouter(cfg, session.NewRedisStore(infra.Redis.Client, cfg.SessionTTL))
	if err != nil {
		_ = infra.Close()
		return nil, nil, err
	}

	return router, infra.Close, nil
}

func newRouter(cfg *config.Config, store session.Store) (*gin.Engine, error) {
	httpClient := &http.Client{Timeout: 10 * time.Second}

	// ----------------------------
	// Dependencies
	// ----------------------------

	users := cache.NewUsers()

	tokens, err := auth.NewManager(store, users, auth.Options{
		ClientID:     cfg.DiscordClientID,
		ClientSecret: cfg.DiscordClientSecret,
		RedirectURL:  cfg.DiscordRedirectURI,
		Scopes:       cfg.Scopes(),
		AuthURL:      cfg.DiscordAuthorizationURL,
		TokenURL:     cfg.DiscordTokenURL,
		RevokeURL:    cfg.DiscordRevokeURL,
		ExpirySkew:   cfg.TokenExpirySkew,
		HTTPClient:   httpClient,
	})
	if err != nil {
		return nil, err
	}

	api := discord.NewClient(cfg.DiscordAPIBaseURL, httpClient, cfg.DiscordBotToken)

	authHandler := handler.NewHandler(
		tokens,
		auth.NewResources(tokens, api, users),
		discord.DefaultImageConfig(cfg.DiscordImageBaseURL),
		session.CookieOptions{
			Secure:   cfg.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		},
		cfg.SessionTTL,
	)

	authMiddleware := middleware.NewAuthMiddleware(tokens)

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(gin.Recovery(), middleware.GinRequestLog())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authHandler.RegisterRoutes(router, middleware.GinRequireAuthorization(authMiddleware))

	return router, nil
}
