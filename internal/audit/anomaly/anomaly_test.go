package anomaly

import (
	"fmt"
	"testing"
	"time"

	"casedesk.org/internal/audit"
	"casedesk.org/internal/auth"
)

var now = time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)

func approval(tenant, actor string, at time.Time, reviewSeconds float64) audit.Entry {
	return audit.Entry{
		ID:       fmt.Sprintf("%s-%s-%d", tenant, actor, at.UnixNano()),
		TenantID: tenant,
		Actor:    &audit.Actor{UserID: actor, Role: auth.RoleLawyer},
		Action:   audit.ActionDraftApprove,
		Result:   audit.ResultSuccess,
		Details: audit.DraftApproveDetails{
			Decision: "approve", ReviewTimeSeconds: reviewSeconds,
		},
		CreatedAt: at,
	}
}

func TestQuickApprovalsFlagsFourFastReviews(t *testing.T) {
	var entries []audit.Entry
	for i, secs := range []float64{1, 2, 3, 4} {
		entries = append(entries, approval("t1", "fast", now.Add(-time.Duration(i+1)*time.Hour), secs))
	}
	for i, secs := range []float64{1, 2, 3} {
		entries = append(entries, approval("t1", "three", now.Add(-time.Duration(i+1)*time.Hour), secs))
	}

	got := QuickApprovals(entries, QuickConfig{Lookback: 24 * time.Hour, Threshold: 5 * time.Second, MinCount: 3}, now)
	if len(got) != 1 {
		t.Fatalf("expected exactly one finding, got %+v", got)
	}
	if got[0].ActorID != "fast" || got[0].Count != 4 {
		t.Fatalf("unexpected finding %+v", got[0])
	}
	if got[0].FastestSeconds != 1 || len(got[0].EntryIDs) != 4 {
		t.Fatalf("unexpected finding detail %+v", got[0])
	}
}

func TestQuickApprovalsIgnoresSlowAndStaleEntries(t *testing.T) {
	entries := []audit.Entry{
		approval("t1", "a", now.Add(-time.Hour), 1),
		approval("t1", "a", now.Add(-time.Hour), 2),
		approval("t1", "a", now.Add(-time.Hour), 5),    // at threshold, not under it
		approval("t1", "a", now.Add(-25*time.Hour), 1), // outside lookback
		approval("t1", "a", now.Add(-2*time.Hour), 30), // slow
		approval("t1", "a", now.Add(-3*time.Hour), 4.9),
	}
	if got := QuickApprovals(entries, DefaultQuick, now); len(got) != 0 {
		t.Fatalf("expected no findings, got %+v", got)
	}
}

func TestQuickApprovalsSeparatesTenants(t *testing.T) {
	var entries []audit.Entry
	for i := 0; i < 2; i++ {
		entries = append(entries, approval("t1", "shared", now.Add(-time.Minute*time.Duration(i+1)), 1))
		entries = append(entries, approval("t2", "shared", now.Add(-time.Minute*time.Duration(i+1)), 1))
	}
	if got := QuickApprovals(entries, DefaultQuick, now); len(got) != 0 {
		t.Fatalf("tenants must not be merged: %+v", got)
	}
}

func TestBulkApprovalsBucketThreshold(t *testing.T) {
	bucket := now.Add(-10 * time.Minute).Truncate(time.Minute)

	var ten, nine []audit.Entry
	for i := 0; i < 10; i++ {
		ten = append(ten, approval("t1", "bulk", bucket.Add(time.Duration(i*5)*time.Second), 30))
	}
	for i := 0; i < 9; i++ {
		nine = append(nine, approval("t1", "nine", bucket.Add(time.Duration(i*5)*time.Second), 30))
	}

	got := BulkApprovals(append(ten, nine...), DefaultBulk, now)
	if len(got) != 1 {
		t.Fatalf("expected one flagged bucket, got %+v", got)
	}
	f := got[0]
	if f.ActorID != "bulk" || f.Count != 10 {
		t.Fatalf("unexpected finding %+v", f)
	}
	if !f.BucketStart.Equal(bucket) || !f.BucketEnd.Equal(bucket.Add(time.Minute)) {
		t.Fatalf("unexpected bucket bounds %v-%v", f.BucketStart, f.BucketEnd)
	}
}

func TestBulkApprovalsSplitAcrossBuckets(t *testing.T) {
	bucket := now.Add(-10 * time.Minute).Truncate(time.Minute)
	var entries []audit.Entry
	for i := 0; i < 10; i++ {
		// 40s..85s after the boundary: five in one bucket, five in the next
		entries = append(entries, approval("t1", "split", bucket.Add(40*time.Second+time.Duration(i*5)*time.Second), 30))
	}
	if got := BulkApprovals(entries, DefaultBulk, now); len(got) != 0 {
		t.Fatalf("expected no flagged bucket, got %+v", got)
	}
}

func TestDetectorsSkipOtherActions(t *testing.T) {
	e := approval("t1", "a", now.Add(-time.Minute), 1)
	e.Action = audit.ActionDraftView
	e.Details = audit.DraftViewDetails{}
	entries := []audit.Entry{e, e, e, e, e}
	if len(QuickApprovals(entries, DefaultQuick, now)) != 0 {
		t.Fatal("non-approval entries counted")
	}
}
