package safe

import (
	"sort"
	"sync"
)

// Map is a concurrency & type safe registry keyed by name
type Map[T any] struct {
	mu   sync.RWMutex
	data map[string]T
}

// NewMap returns an empty map
func NewMap[T any]() *Map[T] {
	return &Map[T]{
		data: map[string]T{},
	}
}

// Get returns the value stored under key
func (m *Map[T]) Get(key string) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.data[key]
	return value, ok
}

// GetOrCreate returns the value stored under key, storing the result of create if absent.
// create runs at most once per key.
func (m *Map[T]) GetOrCreate(key string, create func() T) T {
	if value, ok := m.Get(key); ok {
		return value
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string]T{}
	}
	if value, ok := m.data[key]; ok {
		return value
	}
	value := create()
	m.data[key] = value
	return value
}

// Set stores the value under key
func (m *Map[T]) Set(key string, value T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string]T{}
	}
	m.data[key] = value
}

// Delete removes key and reports whether it was present
func (m *Map[T]) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	delete(m.data, key)
	return ok
}

// Keys returns the keys in sorted order
func (m *Map[T]) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of entries
func (m *Map[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Range calls fn for each entry in key order until fn returns false
func (m *Map[T]) Range(fn func(key string, t T) bool) {
	for _, key := range m.Keys() {
		value, ok := m.Get(key)
		if !ok {
			continue
		}
		if !fn(key, value) {
			return
		}
	}
}
