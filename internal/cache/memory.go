package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	storedAt time.Time
	value    []byte
}

// Memory is an in-process Store guarded by a mutex. Used in tests and in
// deployments without Redis.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		entries: map[string]memoryEntry{},
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if m.ttl > 0 && m.now().Sub(entry.storedAt) > m.ttl {
		delete(m.entries, key)
		return nil, false
	}
	return entry.value, true
}

func (m *Memory) Set(_ context.Context, key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{storedAt: m.now(), value: value}
}

// Len reports the number of stored entries, including any not yet evicted.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

var _ Store = (*Memory)(nil)
