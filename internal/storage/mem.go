package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemStore is a map-backed Store. It is the default session store: contents
// live exactly as long as the daemon process, which matches the ephemeral
// semantics the counters expect.
type MemStore struct {
	mu   sync.RWMutex
	data map[string]json.RawMessage
}

func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string]json.RawMessage)}
}

func (m *MemStore) Get(_ context.Context, key string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return raw, nil
}

func (m *MemStore) Set(_ context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("mem store: marshal %s: %w", key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = raw
	return nil
}

func (m *MemStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]json.RawMessage)
	return nil
}
