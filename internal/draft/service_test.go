package draft

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"casedesk.org/internal/apperr"
	"casedesk.org/internal/audit"
	"casedesk.org/internal/auth"
	"casedesk.org/internal/cases"
)

var (
	lawyer      = auth.Principal{ID: "lawyer-1", TenantID: "t1", Role: auth.RoleLawyer}
	staff       = auth.Principal{ID: "staff-1", TenantID: "t1", Role: auth.RoleStaff}
	otherLawyer = auth.Principal{ID: "lawyer-9", TenantID: "t2", Role: auth.RoleLawyer}
	fixedNow    = time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
)

type fixture struct {
	svc    *Service
	drafts *MemoryStore
	audits *audit.MemoryStore
	caseID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	caseStore := cases.NewMemoryStore()
	c, err := caseStore.Create(context.Background(), cases.Case{TenantID: "t1", Title: "Park rehabilitation", AssignedStaffIDs: []string{"staff-1"}})
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{drafts: NewMemoryStore(), audits: audit.NewMemoryStore(), caseID: c.ID}
	f.svc = NewService(f.drafts, caseStore, audit.NewRecorder(f.audits, zap.NewNop()),
		NewFlagLinter([]string{"will be denied"}), zap.NewNop())
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func (f *fixture) create(t *testing.T, flags ...Flag) Draft {
	t.Helper()
	d, err := f.svc.Create(context.Background(), lawyer, NewDraft{CaseID: f.caseID, Type: TypePetition, Content: "original text", Flags: flags})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return d
}

func (f *fixture) entries(t *testing.T, tenant string, action audit.Action) []audit.Entry {
	t.Helper()
	out, err := f.audits.List(context.Background(), audit.Query{TenantID: tenant, Action: action})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func review(action Action) ReviewRequest {
	return ReviewRequest{Action: action, ReviewStartedAt: fixedNow.Add(-90 * time.Second), FlagsAcknowledged: true, FinalContent: "edited text"}
}

var needsInterview = Flag{Kind: "missing_info", Severity: SeverityWarning, Message: "Income source unclear", Action: "needs interview"}

func TestApproveRecordsDisposition(t *testing.T) {
	f := newFixture(t)
	d := f.create(t, needsInterview)

	got, err := f.svc.Review(context.Background(), lawyer, d.ID, review(ActionApprove))
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if got.Status != StatusApproved || got.FinalContent != "original text" || got.ReviewerID != "lawyer-1" {
		t.Fatalf("unexpected draft %+v", got)
	}

	entries := f.entries(t, "t1", audit.ActionDraftApprove)
	if len(entries) != 1 {
		t.Fatalf("expected one DRAFT_APPROVE entry, got %d", len(entries))
	}
	det := entries[0].Details.(audit.DraftApproveDetails)
	want := audit.DraftApproveDetails{
		Decision: "approve", DraftType: "PETITION", DraftVersion: 1,
		ReviewTimeSeconds: 90, ContentModified: false, FlagCount: 1, FlagsAcknowledged: true,
	}
	if det != want {
		t.Fatalf("details mismatch:\n got %+v\nwant %+v", det, want)
	}
}

func TestModifyAndRejectOutcomes(t *testing.T) {
	f := newFixture(t)

	mod, err := f.svc.Review(context.Background(), lawyer, f.create(t).ID, review(ActionModify))
	if err != nil {
		t.Fatal(err)
	}
	if mod.Status != StatusModified || mod.FinalContent != "edited text" {
		t.Fatalf("unexpected modify result %+v", mod)
	}

	rej, err := f.svc.Review(context.Background(), lawyer, f.create(t).ID, review(ActionReject))
	if err != nil {
		t.Fatal(err)
	}
	if rej.Status != StatusRejected || rej.FinalContent != "" {
		t.Fatalf("unexpected reject result %+v", rej)
	}

	decisions := map[string]bool{}
	for _, e := range f.entries(t, "t1", audit.ActionDraftApprove) {
		d := e.Details.(audit.DraftApproveDetails)
		decisions[d.Decision] = true
		if d.Decision == "modify" && !d.ContentModified {
			t.Fatal("modify must report content modified")
		}
	}
	if !decisions["modify"] || !decisions["reject"] {
		t.Fatalf("decisions not recorded: %v", decisions)
	}
}

func TestModifyRequiresFinalContent(t *testing.T) {
	f := newFixture(t)
	req := review(ActionModify)
	req.FinalContent = "  "
	_, err := f.svc.Review(context.Background(), lawyer, f.create(t).ID, req)
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUnacknowledgedFlagsBlockDisposition(t *testing.T) {
	f := newFixture(t)
	d := f.create(t, needsInterview)
	req := review(ActionApprove)
	req.FlagsAcknowledged = false

	_, err := f.svc.Review(context.Background(), lawyer, d.ID, req)
	if apperr.CodeOf(err) != apperr.CodeFlagsNotAcknowledged || apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected FLAGS_NOT_ACKNOWLEDGED, got %v", err)
	}
	stored, _ := f.drafts.Get(context.Background(), d.ID)
	if stored.Status != StatusPending {
		t.Fatalf("draft moved to %s", stored.Status)
	}
	if len(f.entries(t, "t1", audit.ActionPermissionDenied)) != 0 {
		t.Fatal("validation failure logged as a security event")
	}
}

func TestFlagCheckPrecedesPendingCheck(t *testing.T) {
	f := newFixture(t)
	d := f.create(t, needsInterview)
	if _, err := f.svc.Review(context.Background(), lawyer, d.ID, review(ActionReject)); err != nil {
		t.Fatal(err)
	}
	req := review(ActionApprove)
	req.FlagsAcknowledged = false
	_, err := f.svc.Review(context.Background(), lawyer, d.ID, req)
	if apperr.CodeOf(err) != apperr.CodeFlagsNotAcknowledged {
		t.Fatalf("expected flag check first, got %v", err)
	}
}

func TestNonLawyerDeniedAndAudited(t *testing.T) {
	f := newFixture(t)
	d := f.create(t)
	for _, p := range []auth.Principal{
		staff,
		{ID: "admin-1", TenantID: "t1", Role: auth.RoleAdmin},
		{ID: "client-1", TenantID: "t1", Role: auth.RoleClient},
	} {
		if _, err := f.svc.Review(context.Background(), p, d.ID, review(ActionApprove)); !apperr.IsDenial(err) {
			t.Fatalf("%s: expected denial, got %v", p.Role, err)
		}
		if _, err := f.svc.Get(context.Background(), p, d.ID); !apperr.IsDenial(err) {
			t.Fatalf("%s: expected view denial, got %v", p.Role, err)
		}
	}
	if n := len(f.entries(t, "t1", audit.ActionPermissionDenied)); n != 6 {
		t.Fatalf("expected 6 denial entries, got %d", n)
	}
	stored, _ := f.drafts.Get(context.Background(), d.ID)
	if stored.Status != StatusPending {
		t.Fatal("denied review changed the draft")
	}
}

func TestCrossTenantReviewDenied(t *testing.T) {
	f := newFixture(t)
	d := f.create(t)
	_, err := f.svc.Review(context.Background(), otherLawyer, d.ID, review(ActionApprove))
	if apperr.CodeOf(err) != apperr.CodeTenantMismatch {
		t.Fatalf("expected TENANT_MISMATCH, got %v", err)
	}
	denials := f.entries(t, "t2", audit.ActionPermissionDenied)
	if len(denials) != 1 {
		t.Fatalf("expected denial in caller's tenant, got %d", len(denials))
	}
}

func TestTerminalStatesAreSinks(t *testing.T) {
	actions := []Action{ActionApprove, ActionModify, ActionReject}
	for _, first := range actions {
		for _, second := range actions {
			f := newFixture(t)
			d := f.create(t)
			done, err := f.svc.Review(context.Background(), lawyer, d.ID, review(first))
			if err != nil {
				t.Fatal(err)
			}
			_, err = f.svc.Review(context.Background(), lawyer, d.ID, review(second))
			if apperr.CodeOf(err) != apperr.CodeAlreadyProcessed || apperr.KindOf(err) != apperr.KindConflict {
				t.Fatalf("%s then %s: expected ALREADY_PROCESSED, got %v", first, second, err)
			}
			stored, _ := f.drafts.Get(context.Background(), d.ID)
			if stored.Status != done.Status {
				t.Fatalf("%s then %s: status changed to %s", first, second, stored.Status)
			}
		}
	}
}

func TestConcurrentReviewsSingleWinner(t *testing.T) {
	f := newFixture(t)
	d := f.create(t)

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			action := []Action{ActionApprove, ActionModify, ActionReject}[i%3]
			_, err := f.svc.Review(context.Background(), lawyer, d.ID, review(action))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperr.CodeOf(err) == apperr.CodeAlreadyProcessed:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if successes != 1 || conflicts != workers-1 {
		t.Fatalf("successes=%d conflicts=%d", successes, conflicts)
	}
	if n := len(f.entries(t, "t1", audit.ActionDraftApprove)); n != 1 {
		t.Fatalf("expected one DRAFT_APPROVE entry, got %d", n)
	}
}

func TestReviewTimeNeverNegative(t *testing.T) {
	f := newFixture(t)
	req := review(ActionApprove)
	req.ReviewStartedAt = fixedNow.Add(time.Minute)
	if _, err := f.svc.Review(context.Background(), lawyer, f.create(t).ID, req); err != nil {
		t.Fatal(err)
	}
	det := f.entries(t, "t1", audit.ActionDraftApprove)[0].Details.(audit.DraftApproveDetails)
	if det.ReviewTimeSeconds != 0 {
		t.Fatalf("expected clamped review time, got %v", det.ReviewTimeSeconds)
	}
}

func TestCreateVersionsLineage(t *testing.T) {
	f := newFixture(t)
	a := f.create(t)
	b := f.create(t)
	c, err := f.svc.Create(context.Background(), lawyer, NewDraft{CaseID: f.caseID, Type: TypeCreditorList, Content: "list"})
	if err != nil {
		t.Fatal(err)
	}
	if a.Version != 1 || b.Version != 2 || c.Version != 1 {
		t.Fatalf("unexpected versions %d %d %d", a.Version, b.Version, c.Version)
	}
	if a.Status != StatusPending {
		t.Fatal("new drafts start PENDING")
	}
	if n := len(f.entries(t, "t1", audit.ActionDraftCreate)); n != 3 {
		t.Fatalf("expected 3 DRAFT_CREATE entries, got %d", n)
	}
}

func TestCreateRejectsLegalConclusionFlag(t *testing.T) {
	f := newFixture(t)
	bad := Flag{Kind: "outcome", Severity: SeverityCritical, Message: "Discharge WILL BE DENIED for this debtor", Action: "needs review"}
	_, err := f.svc.Create(context.Background(), lawyer, NewDraft{CaseID: f.caseID, Type: TypePetition, Content: "x", Flags: []Flag{bad}})
	if apperr.CodeOf(err) != apperr.CodeFlagLegalConclusion {
		t.Fatalf("expected FLAG_LEGAL_CONCLUSION, got %v", err)
	}
}

func TestCreateChecksCaseTenant(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), otherLawyer, NewDraft{CaseID: f.caseID, Type: TypePetition, Content: "x"})
	if apperr.CodeOf(err) != apperr.CodeTenantMismatch {
		t.Fatalf("expected TENANT_MISMATCH for foreign case, got %v", err)
	}
}
