package bucket

import (
	"sort"
	"sync"
)

// Store loads and saves named buckets.
type Store interface {
	// Load returns the named bucket, or nil with no error if it does not exist.
	Load(name string) (*Bucket, error)
	// Save replaces the named bucket.
	Save(name string, b *Bucket) error
	// Close releases the store's resources.
	Close() error
}

// MemoryStore keeps encoded buckets in memory. It is safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

// Load decodes the named bucket.
func (m *MemoryStore) Load(name string) (*Bucket, error) {
	m.mu.RLock()
	raw, ok := m.items[name]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return Decode(raw)
}

// Save encodes and stores b.
func (m *MemoryStore) Save(name string, b *Bucket) error {
	raw, err := Encode(b)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.items[name] = raw
	m.mu.Unlock()
	return nil
}

// Names returns the stored bucket names in sorted order.
func (m *MemoryStore) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.items))
	for name := range m.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
