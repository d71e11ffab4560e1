// Package storagetest provides an in-memory storage.Store for tests that
// exercise identity, eventlog, projection, and scheduler logic without a
// bbolt file on disk.
package storagetest

import (
	"bytes"
	"sort"
	"sync"

	"github.com/cuemby/warrenbroker/pkg/storage"
)

// MemStore is a minimal, concurrency-safe, in-memory implementation of
// storage.Store backed by a map. It upholds the same CAS contract as
// storage.BoltStore.
type MemStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

// Get returns the value stored at key, or storage.ErrNotFound.
func (m *MemStore) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

// Put creates key with value, failing with storage.ErrCASConflict if
// already present.
func (m *MemStore) Put(key string, value []byte) error {
	return m.CAS(key, nil, value)
}

// CAS writes newValue at key only if the current value equals expected.
func (m *MemStore) CAS(key string, expected, newValue []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.data[key]
	if expected == nil {
		if exists {
			return storage.ErrCASConflict
		}
	} else {
		if !exists {
			return storage.ErrNotFound
		}
		if !bytes.Equal(current, expected) {
			return storage.ErrCASConflict
		}
	}

	m.data[key] = append([]byte(nil), newValue...)
	return nil
}

// Iter walks every key in ascending order, stopping early if fn returns
// false.
func (m *MemStore) Iter(fn func(key string, value []byte) bool) error {
	m.mu.Lock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	snapshot := make(map[string][]byte, len(m.data))
	for k, v := range m.data {
		snapshot[k] = v
	}
	m.mu.Unlock()

	for _, k := range keys {
		if !fn(k, snapshot[k]) {
			break
		}
	}
	return nil
}

// Flush is a no-op for the in-memory store.
func (m *MemStore) Flush() error { return nil }

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error { return nil }
