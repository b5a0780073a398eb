package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "world:latest:"

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects to Redis and pings it with a short timeout.
// It returns nil when the server cannot be reached, so callers can fall
// back to a MemoryIndex.
func NewRedisClient(opts RedisOptions) *redis.Client {
	if opts.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil
	}
	return client
}

// RedisIndex stores one string key per username, expiring with the World.
type RedisIndex struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisIndex(rdb *redis.Client) *RedisIndex {
	return &RedisIndex{rdb: rdb, prefix: keyPrefix}
}

func (r *RedisIndex) key(username string) string { return r.prefix + normalize(username) }

func (r *RedisIndex) Get(ctx context.Context, username string) (string, error) {
	id, err := r.rdb.Get(ctx, r.key(username)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrMiss
		}
		return "", fmt.Errorf("cache: redis get %s: %w", username, err)
	}
	return id, nil
}

func (r *RedisIndex) Set(ctx context.Context, username, worldID string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.rdb.Set(ctx, r.key(username), worldID, ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set %s: %w", username, err)
	}
	return nil
}

func (r *RedisIndex) Delete(ctx context.Context, username string) error {
	if err := r.rdb.Del(ctx, r.key(username)).Err(); err != nil {
		return fmt.Errorf("cache: redis del %s: %w", username, err)
	}
	return nil
}

func (r *RedisIndex) Close() error {
	return r.rdb.Close()
}
