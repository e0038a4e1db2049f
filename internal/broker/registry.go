package broker

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Peer is one registry entry
type Peer struct {
	ID       uuid.UUID
	Settings ConnectionSettings
}

// Registry tracks the brokers currently connected to a cluster
type Registry struct {
	brokers map[uuid.UUID]ConnectionSettings
	mu      sync.RWMutex
}

// NewRegistry creates an empty broker registry
func NewRegistry() *Registry {
	return &Registry{
		brokers: make(map[uuid.UUID]ConnectionSettings),
	}
}

// Put registers a broker, replacing any settings already stored under id
func (r *Registry) Put(id uuid.UUID, settings ConnectionSettings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.brokers[id] = settings
}

// Remove unregisters a broker and reports whether it was present
func (r *Registry) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.brokers[id]; !exists {
		return false
	}
	delete(r.brokers, id)
	return true
}

// Get returns the settings stored for a broker
func (r *Registry) Get(id uuid.UUID) (ConnectionSettings, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	settings, exists := r.brokers[id]
	return settings, exists
}

// IDs returns the registered broker ids in a stable order
func (r *Registry) IDs() []uuid.UUID {
	r.mu.RLock()
	ids := make([]uuid.UUID, 0, len(r.brokers))
	for id := range r.brokers {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})
	return ids
}

// Peers returns a snapshot of every registered broker except the given one.
// Later registry changes do not affect the returned slice.
func (r *Registry) Peers(except uuid.UUID) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make([]Peer, 0, len(r.brokers))
	for id, settings := range r.brokers {
		if id == except {
			continue
		}
		peers = append(peers, Peer{ID: id, Settings: settings})
	}
	return peers
}

// Len returns the number of registered brokers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.brokers)
}
