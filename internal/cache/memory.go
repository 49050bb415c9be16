package cache

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process Cache used when no Redis URL is configured and
// in tests. Expired entries are dropped lazily on read and by Sweep.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memEntry

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memEntry),
		nowFunc: time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrMiss
	}
	if !m.nowFunc().Before(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, ErrMiss
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = TTLRaw
	}
	buf := make([]byte, len(value))
	copy(buf, value)

	m.mu.Lock()
	m.entries[key] = memEntry{value: buf, expiresAt: m.nowFunc().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }

// TTL returns the remaining lifetime of key, or zero if absent.
func (m *Memory) TTL(key string) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return 0
	}
	if d := e.expiresAt.Sub(m.nowFunc()); d > 0 {
		return d
	}
	return 0
}

// Keys returns all live keys.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.nowFunc()
	keys := make([]string, 0, len(m.entries))
	for k, e := range m.entries {
		if now.Before(e.expiresAt) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Sweep removes expired entries and returns how many were dropped.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.nowFunc()
	n := 0
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}
