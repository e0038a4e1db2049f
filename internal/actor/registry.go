// Package actor provides identity-addressed registries with lazy activation.
package actor

import "sync"

// Registry maps an identity to a lazily created value. The create
// function runs at most once per key while the key is registered.
type Registry[K comparable, V any] struct {
	entries map[K]V
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{
		entries: make(map[K]V),
	}
}

// GetOrCreate returns the value for key, creating it on first lookup.
// The boolean reports whether the value was created by this call.
func (r *Registry[K, V]) GetOrCreate(key K, create func(K) V) (V, bool) {
	r.mu.RLock()
	v, ok := r.entries[key]
	r.mu.RUnlock()
	if ok {
		return v, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another caller may have won the race
	if v, ok := r.entries[key]; ok {
		return v, false
	}

	v = create(key)
	r.entries[key] = v
	return v, true
}

// Get returns the value for key without creating it
func (r *Registry[K, V]) Get(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[key]
	return v, ok
}

// Remove unregisters key and returns its value
func (r *Registry[K, V]) Remove(key K) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.entries[key]
	if ok {
		delete(r.entries, key)
	}
	return v, ok
}

// Range calls fn for a snapshot of the registered entries
func (r *Registry[K, V]) Range(fn func(K, V) bool) {
	r.mu.RLock()
	keys := make([]K, 0, len(r.entries))
	values := make([]V, 0, len(r.entries))
	for k, v := range r.entries {
		keys = append(keys, k)
		values = append(values, v)
	}
	r.mu.RUnlock()

	for i := range keys {
		if !fn(keys[i], values[i]) {
			return
		}
	}
}

// Len returns the number of registered entries
func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
