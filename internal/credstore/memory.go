package credstore

import "sync"

// Memory is a process-lifetime Store.
type Memory struct {
	mu   sync.RWMutex
	vals map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{vals: make(map[string]string)}
}

func (m *Memory) Get(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.vals[key]
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	m.vals[key] = value
	m.mu.Unlock()
	return nil
}

func (m *Memory) Remove(keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.vals, k)
	}
	m.mu.Unlock()
	return nil
}

var _ Store = (*Memory)(nil)
