// Package kv provides the process-wide key/value store shared by scheduler
// runs and status readers: the execution lock lives here, next to the cached
// sync-status summaries.
package kv

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// Store is a byte-valued key/value store with per-key expiry.
// A ttl <= 0 means the key never expires.
//
//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go Store
type Store interface {
	// Add sets key only if it is absent and reports whether it did. It is atomic across callers.
	Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// Get returns the value of key and whether it was found
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// Set unconditionally stores value under key
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key; deleting an absent key is not an error
	Delete(ctx context.Context, key string) error
	// CompareAndDelete removes key only if it currently holds value and reports
	// whether it did. It is atomic across callers.
	CompareAndDelete(ctx context.Context, key string, value []byte) (bool, error)
	// Close releases the store's connections
	Close() error
}

type memItem struct {
	value   []byte
	expires time.Time
}

func (it memItem) expired(now time.Time) bool {
	return !it.expires.IsZero() && now.After(it.expires)
}

type memoryStore struct {
	mu    sync.Mutex
	items map[string]memItem
	now   func() time.Time
}

// NewMemoryStore creates a Store that lives in this process only.
// It serializes scheduler runs within one process but not across hosts.
func NewMemoryStore() Store {
	return &memoryStore{items: map[string]memItem{}, now: time.Now}
}

func (s *memoryStore) Add(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if it, ok := s.items[key]; ok && !it.expired(now) {
		return false, nil
	}
	s.items[key] = s.item(now, value, ttl)
	return true, nil
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[key]
	if !ok {
		return nil, false, nil
	}
	if it.expired(s.now()) {
		delete(s.items, key)
		return nil, false, nil
	}
	return clone(it.value), true, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = s.item(s.now(), value, ttl)
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

func (s *memoryStore) CompareAndDelete(_ context.Context, key string, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[key]
	if !ok || it.expired(s.now()) || !bytes.Equal(it.value, value) {
		return false, nil
	}
	delete(s.items, key)
	return true, nil
}

func (*memoryStore) Close() error {
	return nil
}

func (*memoryStore) item(now time.Time, value []byte, ttl time.Duration) memItem {
	it := memItem{value: clone(value)}
	if ttl > 0 {
		it.expires = now.Add(ttl)
	}
	return it
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
