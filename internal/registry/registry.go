package registry

import (
	"errors"
	"slices"
	"sync"
)

// Registry errors.
var (
	// ErrNotFound is returned when no entry exists for an identifier.
	ErrNotFound = errors.New("entry not found")

	// ErrExists is returned by InsertNew when the identifier is taken.
	ErrExists = errors.New("entry already exists")
)

// Map is a concurrency-safe identifier-to-value map.
// The zero value is not usable; create one with NewMap.
type Map[V any] struct {
	mu      sync.RWMutex
	entries map[string]V
}

// NewMap creates an empty Map.
func NewMap[V any]() *Map[V] {
	return &Map[V]{entries: make(map[string]V)}
}

// Put stores v under id, silently replacing any previous entry.
// The replaced value, if any, is returned so the caller can release it.
func (m *Map[V]) Put(id string, v V) (old V, replaced bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, replaced = m.entries[id]
	m.entries[id] = v
	return old, replaced
}

// InsertNew stores v under id only if id is free.
func (m *Map[V]) InsertNew(id string, v V) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[id]; ok {
		return ErrExists
	}
	m.entries[id] = v
	return nil
}

// Get returns the entry for id.
func (m *Map[V]) Get(id string) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.entries[id]
	return v, ok
}

// Has reports whether id is present.
func (m *Map[V]) Has(id string) bool {
	_, ok := m.Get(id)
	return ok
}

// Remove deletes and returns the entry for id.
func (m *Map[V]) Remove(id string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.entries[id]
	if ok {
		delete(m.entries, id)
	}
	return v, ok
}

// Drain empties the map and returns every entry it held.
func (m *Map[V]) Drain() map[string]V {
	m.mu.Lock()
	defer m.mu.Unlock()

	drained := m.entries
	m.entries = make(map[string]V)
	return drained
}

// Len returns the number of entries.
func (m *Map[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Keys returns the identifiers in sorted order.
func (m *Map[V]) Keys() []string {
	m.mu.RLock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	m.mu.RUnlock()

	slices.Sort(keys)
	return keys
}
