package assetcache

import (
	"context"
	"net/http"
	"slices"
	"sync"
)

// MemoryStorage keeps generations in process memory.
type MemoryStorage struct {
	mu     sync.RWMutex
	stores map[string]*memoryStore
}

// NewMemoryStorage returns an empty storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{stores: map[string]*memoryStore{}}
}

// Open returns the store called name, creating it when absent.
func (m *MemoryStorage) Open(_ context.Context, name string) (Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	store, ok := m.stores[name]
	if !ok {
		store = &memoryStore{name: name, entries: map[string]Entry{}}
		m.stores[name] = store
	}
	return store, nil
}

// Names returns every store name in sorted order.
func (m *MemoryStorage) Names(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.stores))
	for name := range m.stores {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// Delete drops the store called name. Missing stores are ignored.
func (m *MemoryStorage) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stores, name)
	return nil
}

type memoryStore struct {
	name    string
	mu      sync.RWMutex
	entries map[string]Entry
}

func (s *memoryStore) Name() string { return s.name }

func (s *memoryStore) Match(_ context.Context, key string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	return copyEntry(entry), true, nil
}

func (s *memoryStore) Put(_ context.Context, entry Entry) error {
	entry = copyEntry(entry)
	entry.Generation = s.name
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Key] = entry
	return nil
}

func copyEntry(entry Entry) Entry {
	entry.Header = entry.Header.Clone()
	if entry.Header == nil {
		entry.Header = http.Header{}
	}
	entry.Body = slices.Clone(entry.Body)
	return entry
}
