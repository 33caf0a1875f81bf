// Package kv provides a key-value persistence backend that keeps each collection as one
// JSON array under a single slot, rewriting the whole array on every mutation.
package kv

import (
	"context"
	"sync"
)

// Store is a flat slot store: one value per slot, replaced as a whole.
type Store interface {
	// Load returns the slot value and whether the slot exists.
	Load(ctx context.Context, slot string) ([]byte, bool, error)
	Save(ctx context.Context, slot string, value []byte) error
	Remove(ctx context.Context, slot string) error
	Ping(ctx context.Context) error
	Close() error
}

// MemoryStore keeps slots in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	slots map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[string][]byte)}
}

func (m *MemoryStore) Load(_ context.Context, slot string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.slots[slot]
	if !ok {
		return nil, false, nil
	}

	return append([]byte(nil), value...), true, nil
}

func (m *MemoryStore) Save(_ context.Context, slot string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.slots[slot] = append([]byte(nil), value...)

	return nil
}

func (m *MemoryStore) Remove(_ context.Context, slot string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.slots, slot)

	return nil
}

func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
