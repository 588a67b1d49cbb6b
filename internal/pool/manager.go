package pool

import (
	"fmt"
	"sync"

	"github.com/elata-eeg/daqd/internal/packet"
)

// Manager holds the set of named pools a graph declares in its
// memory_pools section. Stages resolve their input/output pool bindings
// by name through the Manager at graph build time.
type Manager struct {
	mu    sync.RWMutex
	pools map[string]*Pool
}

// NewManager creates an empty pool registry.
func NewManager() *Manager {
	return &Manager{pools: make(map[string]*Pool)}
}

// Declare registers a new named pool. Declaring the same name twice is a
// configuration error (two memory_pools entries sharing an id).
func (m *Manager) Declare(name string, element packet.Element, capacity, depth int) (*Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.pools[name]; exists {
		return nil, fmt.Errorf("pool: duplicate pool id %q", name)
	}
	p := New(name, element, capacity, depth)
	m.pools[name] = p
	return p, nil
}

// Get resolves a pool by name, as graph stage configuration references it.
func (m *Manager) Get(name string) (*Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[name]
	if !ok {
		return nil, fmt.Errorf("pool: unknown pool id %q", name)
	}
	return p, nil
}

// All returns every registered pool, for teardown and stats reporting.
func (m *Manager) All() []*Pool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Pool, 0, len(m.pools))
	for _, p := range m.pools {
		out = append(out, p)
	}
	return out
}

// StatsByName returns every pool's Stats keyed by name, for the HTTP state
// query endpoint and for Prometheus export.
func (m *Manager) StatsByName() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Stats, len(m.pools))
	for name, p := range m.pools {
		out[name] = p.Stats()
	}
	return out
}
