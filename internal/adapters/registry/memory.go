// Package registry keeps the set of session keys with a flow in progress.
package registry

import (
	"context"
	"sync"

	"github.com/larriantoniy/tg_license_bot/internal/domain"
)

// MemoryRegistry is a process-local registry; the default backend.
type MemoryRegistry struct {
	mu     sync.Mutex
	owners map[string]string // key -> session ID
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{owners: make(map[string]string)}
}

func (m *MemoryRegistry) TryAcquire(_ context.Context, s *domain.Session) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.owners[s.Key]; busy {
		return false, nil
	}
	m.owners[s.Key] = s.ID
	return true, nil
}

func (m *MemoryRegistry) Release(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.owners[s.Key] == s.ID {
		delete(m.owners, s.Key)
	}
	return nil
}
