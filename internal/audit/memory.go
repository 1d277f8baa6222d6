package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps entries in process. It is append-only like the SQL store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Append(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(ctx context.Context, q Query) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := ClampLimit(q.Limit)

	s.mu.RLock()
	var out []Entry
	for _, e := range s.entries {
		if e.TenantID != q.TenantID {
			continue
		}
		if q.Action != "" && e.Action != q.Action {
			continue
		}
		if q.ActorID != "" && (e.Actor == nil || e.Actor.UserID != q.ActorID) {
			continue
		}
		if !q.Since.IsZero() && e.CreatedAt.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && !before(e, q.Until, q.BeforeID) {
			continue
		}
		out = append(out, e)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// before reports whether e sorts strictly below the (until, id) cursor.
func before(e Entry, until time.Time, id string) bool {
	if e.CreatedAt.Before(until) {
		return true
	}
	return id != "" && e.CreatedAt.Equal(until) && e.ID < id
}

// Len reports the number of stored entries across tenants.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
