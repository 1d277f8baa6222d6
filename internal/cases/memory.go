package cases

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"casedesk.org/internal/ids"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu        sync.RWMutex
	cases     map[string]Case
	creditors map[string]Creditor
	seq       map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cases:     make(map[string]Case),
		creditors: make(map[string]Creditor),
		seq:       make(map[string]int),
	}
}

func (s *MemoryStore) Create(ctx context.Context, c Case) (Case, error) {
	if err := ctx.Err(); err != nil {
		return Case{}, err
	}
	if c.TenantID == "" {
		return Case{}, fmt.Errorf("%w: tenant is required", ErrConflict)
	}
	if c.ID == "" {
		c.ID = ids.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.AssignedStaffIDs = slices.Clone(c.AssignedStaffIDs)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.cases[c.ID]; exists {
		return Case{}, fmt.Errorf("%w: case %s exists", ErrConflict, c.ID)
	}
	key := fmt.Sprintf("%s/%d", c.TenantID, c.CreatedAt.Year())
	s.seq[key]++
	c.Number = FormatNumber(c.CreatedAt.Year(), s.seq[key])
	s.cases[c.ID] = c
	return c, nil
}

func (s *MemoryStore) Get(ctx context.Context, tenantID, id string) (Case, error) {
	if err := ctx.Err(); err != nil {
		return Case{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[id]
	if !ok || c.TenantID != tenantID {
		return Case{}, ErrNotFound
	}
	c.AssignedStaffIDs = slices.Clone(c.AssignedStaffIDs)
	return c, nil
}

func (s *MemoryStore) Lookup(ctx context.Context, id string) (Case, error) {
	if err := ctx.Err(); err != nil {
		return Case{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[id]
	if !ok {
		return Case{}, ErrNotFound
	}
	c.AssignedStaffIDs = slices.Clone(c.AssignedStaffIDs)
	return c, nil
}

func (s *MemoryStore) List(ctx context.Context, tenantID string, f Filter) ([]Case, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []Case
	for _, c := range s.cases {
		if c.TenantID != tenantID {
			continue
		}
		if f.AssignedStaffID != "" && !slices.Contains(c.AssignedStaffIDs, f.AssignedStaffID) {
			continue
		}
		if f.ClientUserID != "" && c.ClientUserID != f.ClientUserID {
			continue
		}
		c.AssignedStaffIDs = slices.Clone(c.AssignedStaffIDs)
		out = append(out, c)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit := clampLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) AddCreditor(ctx context.Context, cr Creditor) (Creditor, error) {
	if err := ctx.Err(); err != nil {
		return Creditor{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[cr.CaseID]
	if !ok || c.TenantID != cr.TenantID {
		return Creditor{}, ErrNotFound
	}
	if cr.ID == "" {
		cr.ID = ids.New()
	}
	if cr.CreatedAt.IsZero() {
		cr.CreatedAt = time.Now().UTC()
	}
	s.creditors[cr.ID] = cr
	return cr, nil
}

func (s *MemoryStore) ListCreditors(ctx context.Context, tenantID, caseID string) ([]Creditor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Creditor
	for _, cr := range s.creditors {
		if cr.TenantID == tenantID && cr.CaseID == caseID {
			out = append(out, cr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) MarkCreditorsNoticed(ctx context.Context, tenantID, caseID string, m CreditorMatch, at time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	want := NormalizeName(m.Name)
	if m.ID == "" && want == "" {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, cr := range s.creditors {
		if cr.TenantID != tenantID || cr.CaseID != caseID || cr.NoticedAt != nil {
			continue
		}
		if m.ID != "" {
			if cr.ID != m.ID {
				continue
			}
		} else if NormalizeName(cr.Name) != want {
			continue
		}
		stamp := at.UTC()
		cr.NoticedAt = &stamp
		s.creditors[id] = cr
		n++
	}
	return n, nil
}
