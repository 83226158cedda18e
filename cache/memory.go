package cache

import (
	"sort"
	"sync"
)

type memStore struct {
	seq     int
	entries map[string][]byte
}

// MemCache keeps all stores in memory. Its contents are lost when the process exits.
type MemCache struct {
	mutex  sync.RWMutex
	seq    int
	stores map[string]*memStore
}

var _ Provider = (*MemCache)(nil)

func NewMemCache() *MemCache {
	return &MemCache{
		stores: make(map[string]*memStore),
	}
}

func (m *MemCache) Open(name string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.stores[name]; !ok {
		m.seq++
		m.stores[name] = &memStore{seq: m.seq, entries: make(map[string][]byte)}
	}
	return nil
}

func (m *MemCache) Names() ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	names := make([]string, 0, len(m.stores))
	for name := range m.stores {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return m.stores[names[i]].seq < m.stores[names[j]].seq
	})
	return names, nil
}

func (m *MemCache) Has(name string) (bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	_, ok := m.stores[name]
	return ok, nil
}

func (m *MemCache) Delete(name string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.stores[name]; !ok {
		return false, nil
	}
	delete(m.stores, name)
	return true, nil
}

func (m *MemCache) Get(store, key string) ([]byte, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	s, ok := m.stores[store]
	if !ok {
		return nil, false, ErrStoreNotFound
	}
	bytes, ok := s.entries[key]
	return bytes, ok, nil
}

func (m *MemCache) Put(store, key string, bytes []byte) error {
	return m.PutAll(store, []Entry{{Key: key, Bytes: bytes}})
}

func (m *MemCache) PutAll(store string, entries []Entry) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	s, ok := m.stores[store]
	if !ok {
		return ErrStoreNotFound
	}
	for _, e := range entries {
		s.entries[e.Key] = e.Bytes
	}
	return nil
}

func (m *MemCache) Remove(store, key string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	s, ok := m.stores[store]
	if !ok {
		return false, ErrStoreNotFound
	}
	if _, ok := s.entries[key]; !ok {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

func (m *MemCache) Keys(store string) ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	s, ok := m.stores[store]
	if !ok {
		return nil, ErrStoreNotFound
	}
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemCache) Close() error {
	return nil
}
