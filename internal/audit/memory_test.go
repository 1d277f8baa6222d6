package audit

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestMemoryStoreListFiltersAndOrders(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	add := func(tenant string, action Action, actor string, at time.Time) {
		if err := s.Append(ctx, Entry{ID: at.String(), TenantID: tenant, Action: action, Actor: &Actor{UserID: actor}, CreatedAt: at}); err != nil {
			t.Fatal(err)
		}
	}
	add("t1", ActionDraftApprove, "a", base)
	add("t1", ActionCaseView, "a", base.Add(time.Minute))
	add("t2", ActionDraftApprove, "a", base.Add(2*time.Minute))
	add("t1", ActionDraftApprove, "b", base.Add(3*time.Minute))

	got, err := s.List(ctx, Query{TenantID: "t1", Action: ActionDraftApprove})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Actor.UserID != "b" || got[1].Actor.UserID != "a" {
		t.Fatalf("unexpected result: %+v", got)
	}

	got, _ = s.List(ctx, Query{TenantID: "t1", Since: base.Add(30 * time.Second), Until: base.Add(3 * time.Minute)})
	if len(got) != 1 || got[0].Action != ActionCaseView {
		t.Fatalf("time window not applied: %+v", got)
	}

	got, _ = s.List(ctx, Query{TenantID: "t1", Limit: 1})
	if len(got) != 1 {
		t.Fatalf("limit not applied: %d", len(got))
	}

	got, _ = s.List(ctx, Query{})
	if len(got) != 0 {
		t.Fatal("empty tenant must match nothing")
	}
}

func TestMemoryStoreHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewMemoryStore().Append(ctx, Entry{TenantID: "t1"}); err == nil {
		t.Fatal("expected context error")
	}
}

func TestMemoryStoreResumesAtCursor(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	at := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	for _, id := range []string{"a", "b", "c", "d"} {
		if err := s.Append(ctx, Entry{ID: id, TenantID: "t1", Action: ActionDraftApprove, CreatedAt: at}); err != nil {
			t.Fatal(err)
		}
	}
	_ = s.Append(ctx, Entry{ID: "z", TenantID: "t1", Action: ActionDraftApprove, CreatedAt: at.Add(-time.Second)})

	first, _ := s.List(ctx, Query{TenantID: "t1", Until: at.Add(time.Nanosecond), Limit: 2})
	if len(first) != 2 || first[0].ID != "d" || first[1].ID != "c" {
		t.Fatalf("unexpected first page %+v", first)
	}
	next, _ := s.List(ctx, Query{TenantID: "t1", Until: first[1].CreatedAt, BeforeID: first[1].ID, Limit: 10})
	var got []string
	for _, e := range next {
		got = append(got, e.ID)
	}
	if strings.Join(got, ",") != "b,a,z" {
		t.Fatalf("unexpected second page %v", got)
	}
}
