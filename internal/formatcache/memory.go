package formatcache

import (
	"context"
	"sync"
)

// MemoryStore keeps entries in process. Nothing is evicted; expired entries are only ignored on read.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (m *MemoryStore) Get(_ context.Context, mediaID string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[mediaID]
	return entry, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, mediaID string, entry Entry) error {
	m.mu.Lock()
	m.entries[mediaID] = entry
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
