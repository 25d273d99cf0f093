// Package sync provides a thread-safe structures.
package sync

import "sync"

// Map is a thread-safe map implementation.
type Map[K comparable, V any] struct {
	items map[K]V
	mu    sync.RWMutex
}

// NewMap creates a new thread-safe map.
func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{
		items: make(map[K]V),
	}
}

// Load returns the value stored for a key.
func (m *Map[K, V]) Load(key K) (value V, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok = m.items[key]
	return value, ok
}

// Store sets the value for a key.
func (m *Map[K, V]) Store(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
}

// LoadAndDelete removes a key and returns its previous value.
func (m *Map[K, V]) LoadAndDelete(key K) (value V, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok = m.items[key]
	if ok {
		delete(m.items, key)
	}
	return value, ok
}

// Drain removes every item and returns them.
func (m *Map[K, V]) Drain() map[K]V {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = make(map[K]V)
	return items
}

// Len returns the number of items in the map.
func (m *Map[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
