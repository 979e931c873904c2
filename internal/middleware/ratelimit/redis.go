package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisLimiter shares fixed-window counters between processes with
// INCR and EXPIRE. Redis errors fail open.
type RedisLimiter struct {
	client  *redis.Client
	store   counterStore
	prefix  string
	limit   int
	window  time.Duration
	timeout time.Duration
}

// counterStore is the subset of Redis commands the limiter issues.
type counterStore interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, d time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
}

type redisStore struct{ client *redis.Client }

func (s redisStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, key).Result()
}

func (s redisStore) Expire(ctx context.Context, key string, d time.Duration) error {
	return s.client.Expire(ctx, key, d).Err()
}

func (s redisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	return s.client.TTL(ctx, key).Result()
}

type RedisConfig struct {
	Addr              string
	Password          string
	DB                int
	RequestsPerMinute int
}

func NewRedisLimiter(ctx context.Context, cfg RedisConfig) (*RedisLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	limit := cfg.RequestsPerMinute
	if limit <= 0 {
		limit = DefaultConfig().RequestsPerMinute
	}
	return &RedisLimiter{
		client:  client,
		store:   redisStore{client: client},
		prefix:  "finassist:ratelimit:",
		limit:   limit,
		window:  time.Minute,
		timeout: 250 * time.Millisecond,
	}, nil
}

func (rl *RedisLimiter) Allow(ctx context.Context, key string) Decision {
	ctx, cancel := context.WithTimeout(ctx, rl.timeout)
	defer cancel()

	redisKey := rl.prefix + key
	counter, err := rl.store.Incr(ctx, redisKey)
	if err != nil {
		slog.ErrorContext(ctx, "Redis rate limiter error", "op", "incr", "error", err)
		return Decision{Allowed: true}
	}
	ttl, err := rl.store.TTL(ctx, redisKey)
	if err != nil {
		slog.ErrorContext(ctx, "Redis rate limiter error", "op", "ttl", "error", err)
		ttl = rl.window
	}
	// A key without expiry (first hit, or an earlier EXPIRE that failed)
	// would throttle the client forever.
	if ttl < 0 {
		if err := rl.store.Expire(ctx, redisKey, rl.window); err != nil {
			slog.ErrorContext(ctx, "Redis rate limiter error", "op", "expire", "error", err)
		}
		ttl = rl.window
	}
	return Decision{
		Allowed:   int(counter) <= rl.limit,
		Count:     int(counter),
		Limit:     rl.limit,
		WindowEnd: time.Now().Add(ttl),
	}
}

func (rl *RedisLimiter) Close() error {
	if rl.client == nil {
		return nil
	}
	return rl.client.Close()
}
