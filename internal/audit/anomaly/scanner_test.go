package anomaly

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"casedesk.org/internal/audit"
)

func TestScannerRunsBothDetectorsForTenant(t *testing.T) {
	store := audit.NewMemoryStore()
	ctx := context.Background()
	bucket := now.Add(-30 * time.Minute).Truncate(time.Minute)
	for i := 0; i < 10; i++ {
		if err := store.Append(ctx, approval("t1", "robot", bucket.Add(time.Duration(i)*time.Second), 1)); err != nil {
			t.Fatal(err)
		}
		if err := store.Append(ctx, approval("t2", "robot", bucket.Add(time.Duration(i)*time.Second), 1)); err != nil {
			t.Fatal(err)
		}
	}

	core, logs := observer.New(zap.WarnLevel)
	s := NewScanner(store, QuickConfig{}, BulkConfig{}, zap.New(core))
	s.now = func() time.Time { return now }

	rep, err := s.Scan(ctx, "t1")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if rep.Scanned != 10 {
		t.Fatalf("expected 10 scanned, got %d", rep.Scanned)
	}
	if len(rep.Quick) != 1 || rep.Quick[0].Count != 10 {
		t.Fatalf("unexpected quick findings %+v", rep.Quick)
	}
	if len(rep.Bulk) != 1 || rep.Bulk[0].TenantID != "t1" {
		t.Fatalf("unexpected bulk findings %+v", rep.Bulk)
	}
	if !rep.Flagged() {
		t.Fatal("expected flagged report")
	}
	if logs.Len() != 2 {
		t.Fatalf("expected two warnings, got %d", logs.Len())
	}
}

func TestScannerRequiresTenant(t *testing.T) {
	s := NewScanner(audit.NewMemoryStore(), DefaultQuick, DefaultBulk, zap.NewNop())
	if _, err := s.Scan(context.Background(), ""); err == nil {
		t.Fatal("expected error")
	}
}

func TestScannerPagesPastStoreLimit(t *testing.T) {
	store := audit.NewMemoryStore()
	ctx := context.Background()
	total := audit.MaxListLimit + 250
	start := now.Add(-20 * time.Hour)
	for i := 0; i < total; i++ {
		if err := store.Append(ctx, approval("t1", "steady", start.Add(time.Duration(i)*time.Second), 60)); err != nil {
			t.Fatal(err)
		}
	}
	s := NewScanner(store, DefaultQuick, DefaultBulk, zap.NewNop())
	s.now = func() time.Time { return now }

	rep, err := s.Scan(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Scanned != total {
		t.Fatalf("expected %d scanned, got %d", total, rep.Scanned)
	}
}

func TestScannerPagesThroughIdenticalTimestamps(t *testing.T) {
	store := audit.NewMemoryStore()
	ctx := context.Background()
	total := 2*audit.MaxListLimit + 17
	at := now.Add(-2 * time.Hour)
	for i := 0; i < total; i++ {
		e := approval("t1", "batch", at, 60)
		e.ID = fmt.Sprintf("01J%06d", i)
		if err := store.Append(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	s := NewScanner(store, DefaultQuick, DefaultBulk, zap.NewNop())
	s.now = func() time.Time { return now }

	rep, err := s.Scan(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Scanned != total {
		t.Fatalf("expected %d scanned, got %d", total, rep.Scanned)
	}
}
