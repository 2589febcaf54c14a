package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
)

const defaultPingTries = 5

var compareAndDeleteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisOptions configures a Redis-backed Store
type RedisOptions struct {
	Address  string
	Password string
	DB       int

	// PingTries bounds the connection check on startup; zero means the default
	PingTries uint
}

type redisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis, retrying the initial ping with exponential backoff.
// Redis makes the execution lock hold across every host sharing the volume.
func NewRedisStore(ctx context.Context, opts RedisOptions) (Store, error) {
	if opts.Address == "" {
		return nil, errors.New("redis address is required")
	}
	tries := opts.PingTries
	if tries == 0 {
		tries = defaultPingTries
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})

	_, err := backoff.Retry(ctx, func() (string, error) {
		res, err := client.Ping(ctx).Result()
		if err != nil {
			slog.Warn("Redis not reachable yet", "address", opts.Address, "error", err)
		}
		return res, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(tries))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Address, err)
	}

	slog.Info("Connected to redis", "address", opts.Address, "db", opts.DB)
	return &redisStore{client: client}, nil
}

func (s *redisStore) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, redisTTL(ttl)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to add key %s: %w", key, err)
	}
	return ok, nil
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return b, true, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, redisTTL(ttl)).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

func (s *redisStore) CompareAndDelete(ctx context.Context, key string, value []byte) (bool, error) {
	n, err := compareAndDeleteScript.Run(ctx, s.client, []string{key}, value).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to compare and delete key %s: %w", key, err)
	}
	return n == 1, nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

// redisTTL maps "never expires" onto go-redis' zero expiration
func redisTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl
}
