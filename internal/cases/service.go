package cases

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"casedesk.org/internal/apperr"
	"casedesk.org/internal/audit"
	"casedesk.org/internal/auth"
	"casedesk.org/internal/guard"
	"casedesk.org/internal/obs"
)

// Service applies role-scoped visibility and audit to case operations.
type Service struct {
	store  Store
	audit  *audit.Recorder
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store Store, rec *audit.Recorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = obs.Logger()
	}
	return &Service{store: store, audit: rec, logger: logger.With(zap.String("component", "cases")), now: time.Now}
}

// NewCase is the input for Create.
type NewCase struct {
	Title            string
	ClientUserID     string
	LawyerID         string
	AssignedStaffIDs []string
}

// List returns the cases visible to p.
func (s *Service) List(ctx context.Context, p auth.Principal, limit int) ([]Case, error) {
	if !guard.CanListCases(p) {
		err := apperr.Denied(apperr.CodeForbidden, "role %s has no case visibility", p.Role)
		s.audit.Denied(ctx, p, "case.list", audit.ResourceCase, "", "", err)
		return nil, err
	}

	f := Filter{Limit: limit}
	switch {
	case p.HasPermission(auth.PermCaseViewAll):
	case p.HasPermission(auth.PermCaseViewAssigned):
		f.AssignedStaffID = p.ID
	default:
		f.ClientUserID = p.ID
	}

	out, err := s.store.List(ctx, p.TenantID, f)
	if err != nil {
		return nil, apperr.Internal(err, "list cases")
	}
	s.audit.Record(ctx, audit.Entry{
		TenantID:     p.TenantID,
		Actor:        audit.ActorOf(p),
		ResourceType: audit.ResourceCase,
		Details:      audit.CaseViewDetails{Scope: "list", Returned: len(out)},
	})
	return out, nil
}

// Get returns one case if p may see it.
func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (Case, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return Case{}, err
	}
	if err := guard.RequireCaseAccess(p, c.Scope()); err != nil {
		s.audit.Denied(ctx, p, "case.view", audit.ResourceCase, id, id, err)
		return Case{}, err
	}
	s.audit.Record(ctx, audit.Entry{
		TenantID:     p.TenantID,
		Actor:        audit.ActorOf(p),
		ResourceType: audit.ResourceCase,
		ResourceID:   c.ID,
		CaseID:       c.ID,
		Details:      audit.CaseViewDetails{Scope: "single", Returned: 1},
	})
	return c, nil
}

// Create opens a case with the next number for the tenant and year.
func (s *Service) Create(ctx context.Context, p auth.Principal, in NewCase) (Case, error) {
	if !p.HasPermission(auth.PermCaseCreate) {
		err := apperr.Denied(apperr.CodeForbidden, "missing permission %s", auth.PermCaseCreate)
		s.audit.Denied(ctx, p, "case.create", audit.ResourceCase, "", "", err)
		return Case{}, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Case{}, apperr.Invalid("", "title is required")
	}
	if len(title) > 500 {
		return Case{}, apperr.Invalid("", "title exceeds 500 characters")
	}

	c, err := s.store.Create(ctx, Case{
		TenantID:         p.TenantID,
		Title:            title,
		ClientUserID:     strings.TrimSpace(in.ClientUserID),
		LawyerID:         strings.TrimSpace(in.LawyerID),
		AssignedStaffIDs: in.AssignedStaffIDs,
		CreatedAt:        s.now().UTC(),
	})
	if err != nil {
		return Case{}, apperr.Internal(err, "create case")
	}
	s.audit.Record(ctx, audit.Entry{
		TenantID:     p.TenantID,
		Actor:        audit.ActorOf(p),
		ResourceType: audit.ResourceCase,
		ResourceID:   c.ID,
		CaseID:       c.ID,
		Details:      audit.CaseCreateDetails{CaseNumber: c.Number, Title: c.Title},
	})
	return c, nil
}

// AddCreditor registers a creditor on a case. It requires case.update.
func (s *Service) AddCreditor(ctx context.Context, p auth.Principal, caseID, name string) (Creditor, error) {
	if !p.HasPermission(auth.PermCaseUpdate) {
		err := apperr.Denied(apperr.CodeForbidden, "missing permission %s", auth.PermCaseUpdate)
		s.audit.Denied(ctx, p, "case.creditor.add", audit.ResourceCase, caseID, caseID, err)
		return Creditor{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Creditor{}, apperr.Invalid("", "creditor name is required")
	}
	c, err := s.load(ctx, caseID)
	if err != nil {
		return Creditor{}, err
	}
	if err := guard.RequireTenant(p, c.TenantID); err != nil {
		s.audit.Denied(ctx, p, "case.creditor.add", audit.ResourceCase, caseID, caseID, err)
		return Creditor{}, err
	}
	cr, err := s.store.AddCreditor(ctx, Creditor{TenantID: p.TenantID, CaseID: caseID, Name: name, CreatedAt: s.now().UTC()})
	if err != nil {
		return Creditor{}, apperr.Internal(err, "add creditor")
	}
	return cr, nil
}

// Creditors lists the creditors of a case visible to p.
func (s *Service) Creditors(ctx context.Context, p auth.Principal, caseID string) ([]Creditor, error) {
	c, err := s.load(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := guard.RequireCaseAccess(p, c.Scope()); err != nil {
		s.audit.Denied(ctx, p, "case.creditor.list", audit.ResourceCase, caseID, caseID, err)
		return nil, err
	}
	out, err := s.store.ListCreditors(ctx, p.TenantID, caseID)
	if err != nil {
		return nil, apperr.Internal(err, "list creditors")
	}
	return out, nil
}

// load resolves id without tenant scoping; every caller applies a tenant check.
func (s *Service) load(ctx context.Context, id string) (Case, error) {
	c, err := s.store.Lookup(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Case{}, apperr.NotFound("case %s not found", id)
	}
	if err != nil {
		return Case{}, apperr.Internal(err, "load case")
	}
	return c, nil
}
