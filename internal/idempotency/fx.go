package idempotency

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/serene/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("idempotency",
	fx.Provide(
		providePrimaryStore,
		NewMemoryStore,
		NewGuard,
	),
)

// providePrimaryStore returns nil when redis is not configured, and
// the guard runs purely on the in-process store.
func providePrimaryStore(cfg config.Config) Store {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return NewRedisStore(client)
}
