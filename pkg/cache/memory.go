package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type entry struct {
	data    []byte
	expires time.Time
}

// MemoryCache is a process-local Cache. Values are stored encoded so callers
// never share mutable state with the cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]entry), now: time.Now}
}

func (m *MemoryCache) Get(_ context.Context, key string, dst any) (bool, error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if ok && !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, key)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(e.data, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	e := entry{data: data}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	m.mu.Unlock()
	return nil
}

// Len reports live and expired-but-unswept entries.
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

var _ Cache = (*MemoryCache)(nil)
