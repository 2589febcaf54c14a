package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrBusy is returned when the execution lock is held by another run
var ErrBusy = errors.New("execution lock is held by another run")

// ExecutionLock is a named mutex with an expiry, shared through a Store by
// every process pointing at the same backend. At most one holder exists until
// the TTL elapses; an expired lock can be taken by anyone.
type ExecutionLock struct {
	store Store
	key   string
	ttl   time.Duration
}

// NewExecutionLock creates a lock stored under key. Acquisitions expire after ttl.
func NewExecutionLock(store Store, key string, ttl time.Duration) *ExecutionLock {
	return &ExecutionLock{store: store, key: key, ttl: ttl}
}

// Key returns the store key holding the lock
func (l *ExecutionLock) Key() string {
	return l.key
}

// TryAcquire takes the lock for owner without waiting. It returns ErrBusy if
// another owner holds it.
func (l *ExecutionLock) TryAcquire(ctx context.Context, owner string) error {
	ok, err := l.store.Add(ctx, l.key, []byte(owner), l.ttl)
	if err != nil {
		return fmt.Errorf("failed to acquire execution lock: %w", err)
	}
	if !ok {
		return ErrBusy
	}
	return nil
}

// Release deletes the lock if owner still holds it. When the TTL elapsed and
// another owner took over, the lock is left alone.
func (l *ExecutionLock) Release(ctx context.Context, owner string) error {
	deleted, err := l.store.CompareAndDelete(ctx, l.key, []byte(owner))
	if err != nil {
		return fmt.Errorf("failed to release execution lock: %w", err)
	}
	if deleted {
		return nil
	}

	// Only for the log line; the lock itself is not touched again.
	current, found, err := l.store.Get(ctx, l.key)
	if err == nil && found {
		slog.Warn("Execution lock expired and was taken by another run",
			"key", l.key,
			"owner", owner,
			"holder", string(current))
	}
	return nil
}
