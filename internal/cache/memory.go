package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Cache. Suitable for a single watcher process;
// use the Redis backend when several processes share one watch workload.
type Memory struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]time.Time)}
}

// Seen reports whether key is present and unexpired, dropping it when
// expired.
func (m *Memory) Seen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiry, ok := m.entries[key]
	if !ok {
		cacheMisses.Inc()
		return false, nil
	}
	if !expiry.IsZero() && time.Now().After(expiry) {
		delete(m.entries, key)
		cacheMisses.Inc()
		return false, nil
	}
	cacheHits.Inc()
	return true, nil
}

// Mark records key for ttl.
func (m *Memory) Mark(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expiry time.Time
	if ttl > 0 {
		expiry = time.Now().Add(ttl)
	}
	m.entries[key] = expiry
	return nil
}

// Close releases the entry map.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]time.Time)
	return nil
}
