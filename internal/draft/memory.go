package draft

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"casedesk.org/internal/ids"
)

// MemoryStore is an in-process Store. Dispose checks PENDING under the lock,
// which gives the same single-winner guarantee as the SQL conditional update.
type MemoryStore struct {
	mu       sync.Mutex
	drafts   map[string]Draft
	versions map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: make(map[string]Draft), versions: make(map[string]int)}
}

func lineageKey(tenantID, caseID string, t Type) string {
	return tenantID + "/" + caseID + "/" + string(t)
}

func (s *MemoryStore) Create(ctx context.Context, d Draft) (Draft, error) {
	if err := ctx.Err(); err != nil {
		return Draft{}, err
	}
	if d.ID == "" {
		d.ID = ids.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	d.Status = StatusPending
	d.ReviewerID, d.ReviewedAt, d.ReviewComment, d.FinalContent = "", nil, "", ""

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.drafts[d.ID]; exists {
		return Draft{}, fmt.Errorf("draft %s already exists", d.ID)
	}
	key := lineageKey(d.TenantID, d.CaseID, d.Type)
	s.versions[key]++
	d.Version = s.versions[key]
	s.drafts[d.ID] = d.clone()
	return d.clone(), nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Draft, error) {
	if err := ctx.Err(); err != nil {
		return Draft{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[id]
	if !ok {
		return Draft{}, ErrNotFound
	}
	return d.clone(), nil
}

func (s *MemoryStore) ListByCase(ctx context.Context, tenantID, caseID string) ([]Draft, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	var out []Draft
	for _, d := range s.drafts {
		if d.TenantID == tenantID && d.CaseID == caseID {
			out = append(out, d.clone())
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *MemoryStore) Dispose(ctx context.Context, tenantID, id string, disp Disposition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[id]
	if !ok || d.TenantID != tenantID || d.Status != StatusPending {
		return ErrAlreadyProcessed
	}
	at := disp.ReviewedAt.UTC()
	d.Status = disp.Status
	d.ReviewerID = disp.ReviewerID
	d.ReviewedAt = &at
	d.ReviewComment = disp.Comment
	d.FinalContent = disp.FinalContent
	s.drafts[id] = d
	return nil
}

// Overwrite replaces a stored draft's content without any workflow checks.
// Tests use it to simulate out-of-band edits to a draft after it was sent.
func (s *MemoryStore) Overwrite(id, content, finalContent string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.drafts[id]; ok {
		d.Content, d.FinalContent = content, finalContent
		s.drafts[id] = d
	}
}
