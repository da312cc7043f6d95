// Package cache provides the short-lived keyed stores the pipeline depends
// on: a TTL'd context cache and a per-name processing lease. Both are
// explicitly injected; there are no process-global singletons.
package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store is a keyed value store with per-entry expiry. Implementations must be
// safe for concurrent use; a race on one key at worst repeats a fetch.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// GetOrFetch returns the cached value for key, or runs produce and stores the
// result with ttl. Cache failures degrade to a produce call: the cache exists
// for cost control, never correctness.
func GetOrFetch(ctx context.Context, s Store, key string, ttl time.Duration, produce func(ctx context.Context) (string, error)) (string, error) {
	if val, ok, err := s.Get(ctx, key); err != nil {
		zap.L().Warn("cache: read failed, fetching directly", zap.String("key", key), zap.Error(err))
	} else if ok {
		zap.L().Debug("cache: hit", zap.String("key", key))
		return val, nil
	}

	val, err := produce(ctx)
	if err != nil {
		return "", err
	}

	if err := s.Set(ctx, key, val, ttl); err != nil {
		zap.L().Warn("cache: write failed", zap.String("key", key), zap.Error(err))
	}
	return val, nil
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// Memory is an in-process Store, used by tests and single-node deployments.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if m.now().After(e.expiresAt) {
		delete(m.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{value: value, expiresAt: m.now().Add(ttl)}
	return nil
}
