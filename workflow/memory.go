package workflow

import (
	"maps"
	"sync"
)

// Memory is the shared result map of a workflow run, keyed by step name.
// Keys keep their first-insertion order.
type Memory struct {
	mu     sync.RWMutex
	values map[string]any
	order  []string
}

// NewMemory creates an empty memory.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]any)}
}

// Set stores the result for a step.
func (m *Memory) Set(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.values[key]; !exists {
		m.order = append(m.order, key)
	}
	m.values[key] = value
}

// Get returns a stored result.
func (m *Memory) Get(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether a step has written its result.
func (m *Memory) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Snapshot returns a copy that is safe to hand to agents and callers.
func (m *Memory) Snapshot() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.values)
}

// Keys returns step names in the order their results were first written.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, len(m.order))
	copy(keys, m.order)
	return keys
}

// Len returns the number of stored results.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}
