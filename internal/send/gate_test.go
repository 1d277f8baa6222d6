package send

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"casedesk.org/internal/apperr"
	"casedesk.org/internal/audit"
	"casedesk.org/internal/auth"
	"casedesk.org/internal/cases"
	"casedesk.org/internal/draft"
	"casedesk.org/internal/guard"
)

var (
	lawyer = auth.Principal{ID: "lawyer-1", TenantID: "t1", Role: auth.RoleLawyer}
	now    = time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC)
)

type fixture struct {
	gate   *Gate
	sends  *MemoryStore
	cases  *cases.MemoryStore
	drafts *draft.MemoryStore
	audits *audit.MemoryStore
	caseID string
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		sends:  NewMemoryStore(),
		cases:  cases.NewMemoryStore(),
		drafts: draft.NewMemoryStore(),
		audits: audit.NewMemoryStore(),
	}
	c, err := f.cases.Create(context.Background(), cases.Case{TenantID: "t1", Title: "Choi rehabilitation"})
	if err != nil {
		t.Fatal(err)
	}
	f.caseID = c.ID
	opts = append([]Option{WithLogger(zap.NewNop())}, opts...)
	f.gate = NewGate(f.sends, f.cases, f.drafts, audit.NewRecorder(f.audits, zap.NewNop()), opts...)
	f.gate.now = func() time.Time { return now }
	return f
}

func (f *fixture) request() Request {
	return Request{
		CaseID:              f.caseID,
		SendType:            guard.SendRetentionNotice,
		RecipientType:       guard.RecipientCreditor,
		RecipientName:       "Hana Card",
		RecipientAddress:    "Seoul",
		Content:             "Notice of retention",
		SendMethod:          MethodFax,
		ConfirmationChecked: true,
	}
}

// draftIn creates a draft and drives it to status.
func (f *fixture) draftIn(t *testing.T, status draft.Status) draft.Draft {
	t.Helper()
	ctx := context.Background()
	d, err := f.drafts.Create(ctx, draft.Draft{TenantID: "t1", CaseID: f.caseID, Type: draft.TypeRetentionNotice, Content: "draft body"})
	if err != nil {
		t.Fatal(err)
	}
	if status != draft.StatusPending {
		if err := f.drafts.Dispose(ctx, "t1", d.ID, draft.Disposition{Status: status, ReviewerID: "lawyer-1", ReviewedAt: now, FinalContent: "final body"}); err != nil {
			t.Fatal(err)
		}
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

func TestStaffRetentionNoticeBlocked(t *testing.T) {
	f := newFixture(t)
	staff := auth.Principal{ID: "staff-1", TenantID: "t1", Role: auth.RoleStaff}

	_, err := f.gate.Execute(context.Background(), staff, f.request())
	if apperr.CodeOf(err) != apperr.CodeSendGateBlocked || apperr.KindOf(err) != apperr.KindAuthorization {
		t.Fatalf("expected SEND_GATE_BLOCKED, got %v", err)
	}
	denials := f.entries(t, "t1", audit.ActionPermissionDenied)
	if len(denials) != 1 {
		t.Fatalf("expected exactly one PERMISSION_DENIED entry, got %d", len(denials))
	}
	if d := denials[0].Details.(audit.PermissionDeniedDetails); d.Code != apperr.CodeSendGateBlocked {
		t.Fatalf("unexpected denial details %+v", d)
	}
	if f.sends.Len() != 0 {
		t.Fatalf("expected zero sends, got %d", f.sends.Len())
	}
}

func TestEveryNonLawyerBlockedForEveryType(t *testing.T) {
	f := newFixture(t)
	for _, role := range auth.AllRoles {
		if role == auth.RoleLawyer {
			continue
		}
		for _, st := range guard.AllSendTypes {
			req := f.request()
			req.SendType = st
			_, err := f.gate.Execute(context.Background(), auth.Principal{ID: "x", TenantID: "t1", Role: role}, req)
			if apperr.CodeOf(err) != apperr.CodeSendGateBlocked {
				t.Fatalf("%s/%s: expected gate block, got %v", role, st, err)
			}
		}
	}
	if f.sends.Len() != 0 {
		t.Fatal("blocked sends were recorded")
	}
}

func TestConfirmationRequired(t *testing.T) {
	f := newFixture(t)
	req := f.request()
	req.ConfirmationChecked = false
	_, err := f.gate.Execute(context.Background(), lawyer, req)
	if apperr.CodeOf(err) != apperr.CodeConfirmationRequired {
		t.Fatalf("expected CONFIRMATION_REQUIRED, got %v", err)
	}
	if f.sends.Len() != 0 || len(f.entries(t, "t1", audit.ActionPermissionDenied)) != 0 {
		t.Fatal("unconfirmed send left state behind")
	}
}

func TestCrossTenantCaseDenied(t *testing.T) {
	f := newFixture(t)
	foreign := auth.Principal{ID: "lawyer-2", TenantID: "t2", Role: auth.RoleLawyer}
	_, err := f.gate.Execute(context.Background(), foreign, f.request())
	if apperr.CodeOf(err) != apperr.CodeTenantMismatch {
		t.Fatalf("expected TENANT_MISMATCH, got %v", err)
	}
	if len(f.entries(t, "t2", audit.ActionPermissionDenied)) != 1 {
		t.Fatal("cross-tenant attempt not audited")
	}
	if f.sends.Len() != 0 {
		t.Fatal("send recorded")
	}
}

func TestDraftStatusGatesSend(t *testing.T) {
	expect := map[draft.Status]bool{
		draft.StatusPending:  false,
		draft.StatusRejected: false,
		draft.StatusApproved: true,
		draft.StatusModified: true,
	}
	for status, ok := range expect {
		f := newFixture(t)
		d := f.draftIn(t, status)
		req := f.request()
		req.DraftID = d.ID
		_, err := f.gate.Execute(context.Background(), lawyer, req)
		if ok {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", status, err)
			}
			continue
		}
		if apperr.CodeOf(err) != apperr.CodeDraftNotApproved || apperr.KindOf(err) != apperr.KindConflict {
			t.Fatalf("%s: expected DRAFT_NOT_APPROVED, got %v", status, err)
		}
		if f.sends.Len() != 0 {
			t.Fatalf("%s: send recorded", status)
		}
	}
}

func TestDraftFromOtherCaseRejected(t *testing.T) {
	f := newFixture(t)
	other, _ := f.cases.Create(context.Background(), cases.Case{TenantID: "t1", Title: "other"})
	d, _ := f.drafts.Create(context.Background(), draft.Draft{TenantID: "t1", CaseID: other.ID, Type: draft.TypePetition, Content: "x"})
	_ = f.drafts.Dispose(context.Background(), "t1", d.ID, draft.Disposition{Status: draft.StatusApproved, ReviewedAt: now})

	req := f.request()
	req.DraftID = d.ID
	if _, err := f.gate.Execute(context.Background(), lawyer, req); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSnapshotSurvivesDraftMutation(t *testing.T) {
	f := newFixture(t)
	d := f.draftIn(t, draft.StatusApproved)
	req := f.request()
	req.DraftID = d.ID
	req.Content = "final body"

	rec, err := f.gate.Execute(context.Background(), lawyer, req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	f.drafts.Overwrite(d.ID, "rewritten", "rewritten")

	stored, err := f.sends.Get(context.Background(), "t1", rec.Send.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.ContentSnapshot != "final body" {
		t.Fatalf("snapshot changed: %q", stored.ContentSnapshot)
	}
	if !Verify(stored) {
		t.Fatal("hash no longer verifies")
	}
	stored.ContentSnapshot = "tampered"
	if Verify(stored) {
		t.Fatal("tampered snapshot verified")
	}
}

func TestSendExecuteAudit(t *testing.T) {
	f := newFixture(t)
	d := f.draftIn(t, draft.StatusModified)
	req := f.request()
	req.DraftID = d.ID
	rec, err := f.gate.Execute(context.Background(), lawyer, req)
	if err != nil {
		t.Fatal(err)
	}
	entries := f.entries(t, "t1", audit.ActionSendExecute)
	if len(entries) != 1 {
		t.Fatalf("expected one SEND_EXECUTE, got %d", len(entries))
	}
	got := entries[0].Details.(audit.SendExecuteDetails)
	want := audit.SendExecuteDetails{
		SendType: "RETENTION_NOTICE", RecipientType: "CREDITOR", RecipientName: "Hana Card",
		SendMethod: "FAX", ConfirmationChecked: true, DraftID: d.ID, ContentHash: rec.Send.ContentHash,
	}
	if got != want {
		t.Fatalf("details mismatch:\n got %+v\nwant %+v", got, want)
	}
	if entries[0].ResourceID != rec.Send.ID || entries[0].CaseID != f.caseID {
		t.Fatalf("unexpected entry %+v", entries[0])
	}
}

func TestRetentionNoticeMarksCreditors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.cases.AddCreditor(ctx, cases.Creditor{TenantID: "t1", CaseID: f.caseID, Name: "HANA  card"})
	byID, _ := f.cases.AddCreditor(ctx, cases.Creditor{TenantID: "t1", CaseID: f.caseID, Name: "Shinhan Bank"})

	rec, err := f.gate.Execute(ctx, lawyer, f.request())
	if err != nil || rec.CreditorsNoticed != 1 {
		t.Fatalf("name match: %+v %v", rec, err)
	}

	req := f.request()
	req.RecipientName = "Shinhan Bank Co., Ltd."
	req.CreditorID = byID.ID
	rec, err = f.gate.Execute(ctx, lawyer, req)
	if err != nil || rec.CreditorsNoticed != 1 {
		t.Fatalf("id match: %+v %v", rec, err)
	}

	list, _ := f.cases.ListCreditors(ctx, "t1", f.caseID)
	for _, cr := range list {
		if cr.NoticedAt == nil {
			t.Fatalf("creditor %s (%s) not noticed", cr.ID, cr.Name)
		}
	}
}

func TestPetitionDoesNotTouchCreditors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.cases.AddCreditor(ctx, cases.Creditor{TenantID: "t1", CaseID: f.caseID, Name: "Hana Card"})
	req := f.request()
	req.SendType = guard.SendPetition
	req.RecipientType = guard.RecipientCourt
	rec, err := f.gate.Execute(ctx, lawyer, req)
	if err != nil || rec.CreditorsNoticed != 0 {
		t.Fatalf("unexpected %+v %v", rec, err)
	}
}

type failingNoticer struct{}

func (failingNoticer) MarkCreditorsNoticed(context.Context, string, string, cases.CreditorMatch, time.Time) (int, error) {
	return 0, errors.New("deadlock detected")
}

type recordingArchiver struct {
	got []ExternalSend
	err error
}

func (a *recordingArchiver) Archive(_ context.Context, s ExternalSend) error {
	a.got = append(a.got, s)
	return a.err
}

func TestSideEffectFailuresDoNotRollBack(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	arch := &recordingArchiver{err: errors.New("bucket unavailable")}
	f := newFixture(t, WithNoticer(failingNoticer{}), WithArchiver(arch))
	f.gate.logger = zap.New(core)

	rec, err := f.gate.Execute(context.Background(), lawyer, f.request())
	if err != nil {
		t.Fatalf("side effects must not fail the send: %v", err)
	}
	if rec.Archived || rec.CreditorsNoticed != 0 {
		t.Fatalf("unexpected receipt %+v", rec)
	}
	if f.sends.Len() != 1 || len(f.entries(t, "t1", audit.ActionSendExecute)) != 1 {
		t.Fatal("send was rolled back")
	}
	if len(arch.got) != 1 {
		t.Fatal("archiver not invoked")
	}
	if logs.Len() != 2 {
		t.Fatalf("expected two diagnostics, got %d", logs.Len())
	}
}

func TestArchiverSuccess(t *testing.T) {
	arch := &recordingArchiver{}
	f := newFixture(t, WithArchiver(arch))
	rec, err := f.gate.Execute(context.Background(), lawyer, f.request())
	if err != nil || !rec.Archived {
		t.Fatalf("unexpected %+v %v", rec, err)
	}
	if arch.got[0].ContentHash != rec.Send.ContentHash {
		t.Fatal("archived a different record")
	}
}

func TestValidation(t *testing.T) {
	f := newFixture(t)
	mutate := []func(*Request){
		func(r *Request) { r.RecipientName = " " },
		func(r *Request) { r.Content = "" },
		func(r *Request) { r.SendMethod = "PIGEON" },
		func(r *Request) { r.CaseID = "" },
	}
	for i, m := range mutate {
		req := f.request()
		m(&req)
		if _, err := f.gate.Execute(context.Background(), lawyer, req); apperr.KindOf(err) != apperr.KindValidation {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
	req := f.request()
	req.CaseID = "missing"
	if _, err := f.gate.Execute(context.Background(), lawyer, req); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListCapsAndScopes(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < MaxList+5; i++ {
		if _, err := f.gate.Execute(context.Background(), lawyer, f.request()); err != nil {
			t.Fatal(err)
		}
	}
	got, err := f.gate.List(context.Background(), lawyer, f.caseID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != MaxList {
		t.Fatalf("expected %d, got %d", MaxList, len(got))
	}

	foreign := auth.Principal{ID: "lawyer-2", TenantID: "t2", Role: auth.RoleLawyer}
	if other, _ := f.gate.List(context.Background(), foreign, f.caseID); len(other) != 0 {
		t.Fatal("cross-tenant listing")
	}

	staff := auth.Principal{ID: "staff-1", TenantID: "t1", Role: auth.RoleStaff}
	if _, err := f.gate.List(context.Background(), staff, f.caseID); !apperr.IsDenial(err) {
		t.Fatalf("expected denial, got %v", err)
	}
}

func TestLawyerLegalResponseToClient(t *testing.T) {
	f := newFixture(t)
	req := f.request()
	req.SendType = guard.SendClientLegalResponse
	req.RecipientType = guard.RecipientClient
	req.RecipientName = "Choi"
	if _, err := f.gate.Execute(context.Background(), lawyer, req); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if f.sends.Len() != 1 {
		t.Fatalf("expected one send, got %d", f.sends.Len())
	}
}

func TestUnknownCategoriesAreGateDenials(t *testing.T) {
	f := newFixture(t)
	req := f.request()
	req.SendType = guard.NormalizeSendType("telegram")
	_, err := f.gate.Execute(context.Background(), lawyer, req)
	if apperr.CodeOf(err) != apperr.CodeSendGateBlocked {
		t.Fatalf("unknown send type: expected SEND_GATE_BLOCKED, got %v", err)
	}

	req = f.request()
	req.RecipientType = guard.NormalizeRecipientType("press")
	_, err = f.gate.Execute(context.Background(), lawyer, req)
	if apperr.CodeOf(err) != apperr.CodeSendGateBlocked {
		t.Fatalf("unknown recipient: expected SEND_GATE_BLOCKED, got %v", err)
	}

	if n := len(f.entries(t, "t1", audit.ActionPermissionDenied)); n != 2 {
		t.Fatalf("expected two PERMISSION_DENIED entries, got %d", n)
	}
	if f.sends.Len() != 0 {
		t.Fatal("denied sends were recorded")
	}
}
