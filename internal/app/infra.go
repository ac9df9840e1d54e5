package app

import (
	"context"
	"time"

	"discord-auth/internal/config"
	"discord-auth/internal/logger"
	"discord-auth/internal/redis"
)

type Infra struct {
	Redis *redis.Client
}

func setupInfra(ctx context.Context, cfg *config.Config) (*Infra, error) {
	redisClient, err := redis.New(ctx, cfg.RedisAddr, cfg.RedisPassword, 5*time.Second)
	if err != nil {
		return nil, err
	}

	logger.Info("redis ready", map[string]any{
		"addr": cfg.RedisAddr,
	})

	return &Infra{
		Redis: redisClient,
	}, nil
}

func (i *Infra) Close() error {
	return i.Redis.Close()
}
