package session

import (
	"context"
	"sync"
)

// MemoryPersister keeps preferences for the life of the process.
type MemoryPersister struct {
	mu   sync.Mutex
	rows map[string]Prefs
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{rows: map[string]Prefs{}}
}

func (m *MemoryPersister) Load(_ context.Context, id string) (Prefs, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return Prefs{}, ErrNoPrefs
	}
	return normalize(p), nil
}

func (m *MemoryPersister) Save(_ context.Context, id string, prefs Prefs) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id] = normalize(prefs)
	return nil
}
