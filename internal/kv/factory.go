package kv

import (
	"context"
	"fmt"
)

const (
	// TypeMemory selects the in-process store
	TypeMemory = "memory"
	// TypeRedis selects the Redis store
	TypeRedis = "redis"
)

// New creates the Store named by storeType. An empty type means memory.
func New(ctx context.Context, storeType string, redisOpts RedisOptions) (Store, error) {
	switch storeType {
	case "", TypeMemory:
		return NewMemoryStore(), nil
	case TypeRedis:
		return NewRedisStore(ctx, redisOpts)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", storeType)
	}
}
