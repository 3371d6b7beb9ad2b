package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis is a Cache backed by a shared Redis instance.
type Redis struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds Redis cache configuration.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// NewRedis creates a Redis-backed cache and verifies connectivity.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.Address == "" {
		cfg.Address = "localhost:6379"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "compwatch:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Redis{client: client, prefix: cfg.Prefix}, nil
}

// Seen reports whether key was marked and has not expired.
func (r *Redis) Seen(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+key).Result()
	if err != nil {
		cacheErrors.Inc()
		return false, fmt.Errorf("cache exists error: %w", err)
	}
	if n == 0 {
		cacheMisses.Inc()
		return false, nil
	}
	cacheHits.Inc()
	return true, nil
}

// Mark records key for ttl.
func (r *Redis) Mark(ctx context.Context, key string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, "1", ttl).Err(); err != nil {
		cacheErrors.Inc()
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
