package source

import "sync"

// Manager owns the map of sources the Engine exclusively controls; external
// code refers to sources only by id (spec §3 Source ownership).
type Manager struct {
	mu      sync.RWMutex
	sources map[string]*State
}

// NewManager creates an empty source manager.
func NewManager() *Manager {
	return &Manager{sources: make(map[string]*State)}
}

// Register adds a new source, replacing (and disposing) any prior source
// with the same id.
func (m *Manager) Register(s *State) {
	m.mu.Lock()
	prior := m.sources[s.ID]
	m.sources[s.ID] = s
	m.mu.Unlock()
	if prior != nil {
		prior.Dispose()
	}
}

// Get returns the source for id, or nil if not registered.
func (m *Manager) Get(id string) *State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sources[id]
}

// Remove disposes and unregisters a source (spec §4.9 RemoveSource).
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	s := m.sources[id]
	delete(m.sources, id)
	m.mu.Unlock()
	if s != nil {
		s.Dispose()
	}
}

// All returns a snapshot slice of all registered sources.
func (m *Manager) All() []*State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*State, 0, len(m.sources))
	for _, s := range m.sources {
		out = append(out, s)
	}
	return out
}
