// Package store persists the mutation queue across process restarts.
//
// Durability is abstracted behind Blob, a minimal key-value surface over one
// opaque record per key, so the SQLite backend can be swapped for any local
// durable store. QueueStore layers the queue snapshot semantics on top.
package store

import "sync"

// Blob is the persistence boundary: get/put/delete on opaque records.
type Blob interface {
	// Get returns the stored value and whether the key exists.
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Close() error
}

// MemoryBlob is a map-backed Blob used in tests and as the degraded-mode
// fallback when no durable backend is available.
type MemoryBlob struct {
	mu   sync.RWMutex
	data map[string][]byte

	// PutErr, when set, makes every Put fail. Tests use it to exercise the
	// storage-degraded path.
	PutErr error
}

func NewMemoryBlob() *MemoryBlob {
	return &MemoryBlob{data: make(map[string][]byte)}
}

func (m *MemoryBlob) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (m *MemoryBlob) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutErr != nil {
		return m.PutErr
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[key] = cp
	return nil
}

func (m *MemoryBlob) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryBlob) Close() error { return nil }

var _ Blob = (*MemoryBlob)(nil)
