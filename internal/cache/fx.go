package cache

import (
	"strings"

	"github.com/prompthive/costlens/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// NewRedisClient builds the shared redis client. Returns nil when no
// address is configured so redis-backed components degrade gracefully.
func NewRedisClient(cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
}

var Module = fx.Module("cache",
	fx.Provide(NewRedisClient),
	fx.Provide(NewPlanCache),
)
