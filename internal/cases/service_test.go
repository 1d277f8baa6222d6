package cases

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"casedesk.org/internal/apperr"
	"casedesk.org/internal/audit"
	"casedesk.org/internal/auth"
)

type fixture struct {
	svc    *Service
	store  *MemoryStore
	audits *audit.MemoryStore
}

func newFixture() fixture {
	store := NewMemoryStore()
	audits := audit.NewMemoryStore()
	return fixture{
		svc:    NewService(store, audit.NewRecorder(audits, zap.NewNop()), zap.NewNop()),
		store:  store,
		audits: audits,
	}
}

func (f fixture) entries(t *testing.T, tenant string, action audit.Action) []audit.Entry {
	t.Helper()
	out, err := f.audits.List(context.Background(), audit.Query{TenantID: tenant, Action: action})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

var (
	lawyer  = auth.Principal{ID: "lawyer-1", TenantID: "t1", Role: auth.RoleLawyer}
	staff   = auth.Principal{ID: "staff-1", TenantID: "t1", Role: auth.RoleStaff}
	client  = auth.Principal{ID: "client-1", TenantID: "t1", Role: auth.RoleClient}
	support = auth.Principal{ID: "ts-1", TenantID: "t1", Role: auth.RoleTechSupport}
)

func TestListIsRoleFiltered(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	mine, err := f.svc.Create(ctx, staff, NewCase{Title: "Kim rehabilitation", ClientUserID: "client-1", AssignedStaffIDs: []string{"staff-1"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.svc.Create(ctx, lawyer, NewCase{Title: "Lee bankruptcy", ClientUserID: "client-2"}); err != nil {
		t.Fatal(err)
	}

	all, _ := f.svc.List(ctx, lawyer, 0)
	if len(all) != 2 {
		t.Fatalf("lawyer sees %d cases", len(all))
	}
	assigned, _ := f.svc.List(ctx, staff, 0)
	if len(assigned) != 1 || assigned[0].ID != mine.ID {
		t.Fatalf("staff sees %+v", assigned)
	}
	own, _ := f.svc.List(ctx, client, 0)
	if len(own) != 1 || own[0].ID != mine.ID {
		t.Fatalf("client sees %+v", own)
	}
	if n := len(f.entries(t, "t1", audit.ActionCaseCreate)); n != 2 {
		t.Fatalf("expected 2 CASE_CREATE entries, got %d", n)
	}
}

func TestTechSupportListDeniedAndAudited(t *testing.T) {
	f := newFixture()
	_, err := f.svc.List(context.Background(), support, 0)
	if apperr.KindOf(err) != apperr.KindAuthorization {
		t.Fatalf("expected authorization error, got %v", err)
	}
	denials := f.entries(t, "t1", audit.ActionPermissionDenied)
	if len(denials) != 1 || denials[0].Actor.UserID != "ts-1" {
		t.Fatalf("expected one denial entry, got %+v", denials)
	}
}

func TestClientCannotCreate(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(context.Background(), client, NewCase{Title: "x"})
	if !apperr.IsDenial(err) {
		t.Fatalf("expected denial, got %v", err)
	}
	if len(f.entries(t, "t1", audit.ActionPermissionDenied)) != 1 {
		t.Fatal("denial not audited")
	}
}

func TestCreateValidatesTitle(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(context.Background(), lawyer, NewCase{Title: "   "})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(f.entries(t, "t1", audit.ActionPermissionDenied)) != 0 {
		t.Fatal("validation failures are not security events")
	}
}

func TestGetEnforcesVisibility(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c, _ := f.svc.Create(ctx, lawyer, NewCase{Title: "x", ClientUserID: "client-2"})

	if _, err := f.svc.Get(ctx, client, c.ID); !apperr.IsDenial(err) {
		t.Fatalf("expected denial for foreign client, got %v", err)
	}
	if _, err := f.svc.Get(ctx, lawyer, "missing"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	other := auth.Principal{ID: "lawyer-9", TenantID: "t2", Role: auth.RoleLawyer}
	if _, err := f.svc.Get(ctx, other, c.ID); apperr.CodeOf(err) != apperr.CodeTenantMismatch {
		t.Fatalf("expected TENANT_MISMATCH, got %v", err)
	}
	if len(f.entries(t, "t2", audit.ActionPermissionDenied)) != 1 {
		t.Fatal("cross-tenant access not audited under caller tenant")
	}
	got, err := f.svc.Get(ctx, lawyer, c.ID)
	if err != nil || got.ID != c.ID {
		t.Fatalf("Get: %v", err)
	}
}

func TestAddCreditorRequiresUpdate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c, _ := f.svc.Create(ctx, lawyer, NewCase{Title: "x"})
	if _, err := f.svc.AddCreditor(ctx, staff, c.ID, "Acme"); !apperr.IsDenial(err) {
		t.Fatalf("expected denial, got %v", err)
	}
	cr, err := f.svc.AddCreditor(ctx, lawyer, c.ID, " Acme Bank ")
	if err != nil || cr.Name != "Acme Bank" {
		t.Fatalf("AddCreditor: %+v %v", cr, err)
	}
	list, err := f.svc.Creditors(ctx, lawyer, c.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("Creditors: %v %v", list, err)
	}
}
