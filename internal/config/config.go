// Package config loads the service configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	AppPort string `mapstructure:"APP_PORT"`

	DiscordClientID     string `mapstructure:"DISCORD_CLIENT_ID"`
	DiscordClientSecret string `mapstructure:"DISCORD_CLIENT_SECRET"`
	DiscordRedirectURI  string `mapstructure:"DISCORD_REDIRECT_URI"`
	// DiscordBotToken is only needed for adding users to guilds.
	DiscordBotToken string `mapstructure:"DISCORD_BOT_TOKEN"`
	// DiscordScopes is a space or comma separated scope list.
	DiscordScopes string `mapstructure:"DISCORD_SCOPES"`

	DiscordAPIBaseURL       string `mapstructure:"DISCORD_API_BASE_URL"`
	DiscordAuthorizationURL string `mapstructure:"DISCORD_AUTHORIZATION_URL"`
	DiscordTokenURL         string `mapstructure:"DISCORD_TOKEN_URL"`
	DiscordRevokeURL        string `mapstructure:"DISCORD_REVOKE_URL"`
	DiscordImageBaseURL     string `mapstructure:"DISCORD_IMAGE_BASE_URL"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	SessionTTL      time.Duration `mapstructure:"SESSION_TTL"`
	CookieSecure    bool          `mapstructure:"COOKIE_SECURE"`
	TokenExpirySkew time.Duration `mapstructure:"TOKEN_EXPIRY_SKEW"`
}

// Load reads .env when present, then the process environment. Environment
// variables win over .env entries. A missing .env is fine; an unreadable
// one is an error.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: read .env: %w", err)
		}
	}

	v.AutomaticEnv()

	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("DISCORD_CLIENT_ID", "")
	v.SetDefault("DISCORD_CLIENT_SECRET", "")
	v.SetDefault("DISCORD_REDIRECT_URI", "")
	v.SetDefault("DISCORD_BOT_TOKEN", "")
	v.SetDefault("DISCORD_SCOPES", "identify email guilds")
	v.SetDefault("DISCORD_API_BASE_URL", "https://discord.com/api/v10")
	v.SetDefault("DISCORD_AUTHORIZATION_URL", "https://discord.com/oauth2/authorize")
	v.SetDefault("DISCORD_TOKEN_URL", "https://discord.com/api/oauth2/token")
	v.SetDefault("DISCORD_REVOKE_URL", "https://discord.com/api/oauth2/token/revoke")
	v.SetDefault("DISCORD_IMAGE_BASE_URL", "https://cdn.discordapp.com/")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("SESSION_TTL", 168*time.Hour)
	v.SetDefault("COOKIE_SECURE", true)
	v.SetDefault("TOKEN_EXPIRY_SKEW", 10*time.Second)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if cfg.DiscordClientID == "" || cfg.DiscordClientSecret == "" {
		return nil, errors.New("config: DISCORD_CLIENT_ID and DISCORD_CLIENT_SECRET must be set")
	}
	if cfg.DiscordRedirectURI == "" {
		return nil, errors.New("config: DISCORD_REDIRECT_URI must be set")
	}
	if len(cfg.Scopes()) == 0 {
		return nil, errors.New("config: DISCORD_SCOPES must name at least one scope")
	}
	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("config: SESSION_TTL must be positive, got %s", cfg.SessionTTL)
	}
	if cfg.TokenExpirySkew < 0 {
		return nil, fmt.Errorf("config: TOKEN_EXPIRY_SKEW must not be negative, got %s", cfg.TokenExpirySkew)
	}

	return &cfg, nil
}

// Scopes splits DiscordScopes on spaces and commas.
func (c *Config) Scopes() []string {
	return strings.FieldsFunc(c.DiscordScopes, func(r rune) bool {
		return r == ' ' || r == ','
	})
}
