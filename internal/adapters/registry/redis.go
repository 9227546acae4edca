package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/larriantoniy/tg_license_bot/internal/domain"
)

// снимаем ключ, только если его значение: наш session ID
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRegistry shares the active set between several bot replicas. Every
// key carries a TTL so a crashed replica cannot hold it forever.
type RedisRegistry struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisRegistry(rdb redis.UniversalClient, prefix string, ttl time.Duration, logger *slog.Logger) *RedisRegistry {
	return &RedisRegistry{rdb: rdb, prefix: prefix, ttl: ttl, logger: logger}
}

func (r *RedisRegistry) TryAcquire(ctx context.Context, s *domain.Session) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, r.prefix+s.Key, s.ID, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", s.Key, err)
	}
	return ok, nil
}

func (r *RedisRegistry) Release(ctx context.Context, s *domain.Session) error {
	n, err := releaseScript.Run(ctx, r.rdb, []string{r.prefix + s.Key}, s.ID).Int()
	if err != nil {
		return fmt.Errorf("redis release %s: %w", s.Key, err)
	}
	if n == 0 {
		// ключ уже истёк по TTL или перехвачен другой сессией
		r.logger.Warn("session lock was not held on release", "key", s.Key, "flow_id", s.ID)
	}
	return nil
}

// Ping проверяет доступность Redis при старте
func (r *RedisRegistry) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}
