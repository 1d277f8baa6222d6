package send

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process, insert-only Store.
type MemoryStore struct {
	mu    sync.RWMutex
	sends []ExternalSend
	byID  map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]int)}
}

func (m *MemoryStore) Create(ctx context.Context, s ExternalSend) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[s.ID]; exists {
		return fmt.Errorf("send %s already recorded", s.ID)
	}
	m.byID[s.ID] = len(m.sends)
	m.sends = append(m.sends, s)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, tenantID, id string) (ExternalSend, error) {
	if err := ctx.Err(); err != nil {
		return ExternalSend{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.byID[id]
	if !ok || m.sends[i].TenantID != tenantID {
		return ExternalSend{}, ErrNotFound
	}
	return m.sends[i], nil
}

func (m *MemoryStore) List(ctx context.Context, tenantID, caseID string, limit int) ([]ExternalSend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > MaxList {
		limit = MaxList
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ExternalSend
	for i := len(m.sends) - 1; i >= 0 && len(out) < limit; i-- {
		s := m.sends[i]
		if s.TenantID == tenantID && (caseID == "" || s.CaseID == caseID) {
			out = append(out, s)
		}
	}
	return out, nil
}

// Len reports the number of recorded sends across tenants.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sends)
}
