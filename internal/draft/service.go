package draft

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"casedesk.org/internal/apperr"
	"casedesk.org/internal/audit"
	"casedesk.org/internal/auth"
	"casedesk.org/internal/cases"
	"casedesk.org/internal/guard"
	"casedesk.org/internal/obs"
)

// Action is a reviewer's decision.
type Action string

const (
	ActionApprove Action = "approve"
	ActionModify  Action = "modify"
	ActionReject  Action = "reject"
)

var outcome = map[Action]Status{
	ActionApprove: StatusApproved,
	ActionModify:  StatusModified,
	ActionReject:  StatusRejected,
}

// ReviewRequest carries one disposition attempt.
type ReviewRequest struct {
	Action            Action
	FinalContent      string
	Comment           string
	ReviewStartedAt   time.Time
	FlagsAcknowledged bool
}

// NewDraft is the ingest payload from the drafting collaborator.
type NewDraft struct {
	CaseID  string
	Type    Type
	Content string
	Flags   []Flag
}

// Service runs the review state machine.
type Service struct {
	store  Store
	cases  cases.Store
	audit  *audit.Recorder
	lint   *FlagLinter
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store Store, caseStore cases.Store, rec *audit.Recorder, lint *FlagLinter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = obs.Logger()
	}
	if lint == nil {
		lint = NewFlagLinter(nil)
	}
	return &Service{
		store:  store,
		cases:  caseStore,
		audit:  rec,
		lint:   lint,
		logger: logger.With(zap.String("component", "draft")),
		now:    time.Now,
	}
}

// Create stores a new PENDING version for the case and draft type.
func (s *Service) Create(ctx context.Context, p auth.Principal, in NewDraft) (Draft, error) {
	if !p.HasPermission(auth.PermDocumentManage) {
		err := apperr.Denied(apperr.CodeForbidden, "missing permission %s", auth.PermDocumentManage)
		s.audit.Denied(ctx, p, "draft.create", audit.ResourceDraft, "", in.CaseID, err)
		return Draft{}, err
	}
	if strings.TrimSpace(in.Content) == "" {
		return Draft{}, apperr.Invalid("", "content is required")
	}
	if _, ok := knownTypes[in.Type]; !ok {
		return Draft{}, apperr.Invalid("", "unknown draft type %q", in.Type)
	}
	if err := s.lint.Check(in.Flags); err != nil {
		return Draft{}, err
	}

	c, err := s.cases.Lookup(ctx, in.CaseID)
	if errors.Is(err, cases.ErrNotFound) {
		return Draft{}, apperr.NotFound("case %s not found", in.CaseID)
	}
	if err != nil {
		return Draft{}, apperr.Internal(err, "load case")
	}
	if err := guard.RequireCaseAccess(p, c.Scope()); err != nil {
		s.audit.Denied(ctx, p, "draft.create", audit.ResourceDraft, "", c.ID, err)
		return Draft{}, err
	}

	d, err := s.store.Create(ctx, Draft{
		CaseID:    c.ID,
		TenantID:  p.TenantID,
		Type:      in.Type,
		Content:   in.Content,
		Flags:     in.Flags,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return Draft{}, apperr.Internal(err, "create draft")
	}
	s.audit.Record(ctx, audit.Entry{
		TenantID:     p.TenantID,
		Actor:        audit.ActorOf(p),
		ResourceType: audit.ResourceDraft,
		ResourceID:   d.ID,
		CaseID:       d.CaseID,
		Details:      audit.DraftCreateDetails{DraftType: string(d.Type), Version: d.Version, FlagCount: len(d.Flags)},
	})
	return d, nil
}

// Get returns a draft to a lawyer of the same tenant.
func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (Draft, error) {
	if !guard.CanViewDraft(p) {
		err := apperr.Denied(apperr.CodeForbidden, "only a lawyer may view drafts")
		s.audit.Denied(ctx, p, "draft.view", audit.ResourceDraft, id, "", err)
		return Draft{}, err
	}
	d, err := s.load(ctx, id)
	if err != nil {
		return Draft{}, err
	}
	if err := guard.RequireTenant(p, d.TenantID); err != nil {
		s.audit.Denied(ctx, p, "draft.view", audit.ResourceDraft, id, "", err)
		return Draft{}, err
	}
	s.audit.Record(ctx, audit.Entry{
		TenantID:     p.TenantID,
		Actor:        audit.ActorOf(p),
		ResourceType: audit.ResourceDraft,
		ResourceID:   d.ID,
		CaseID:       d.CaseID,
		Details:      audit.DraftViewDetails{DraftType: string(d.Type), Version: d.Version, Status: string(d.Status)},
	})
	return d, nil
}

// ListByCase returns the drafts of a case to a lawyer.
func (s *Service) ListByCase(ctx context.Context, p auth.Principal, caseID string) ([]Draft, error) {
	if !guard.CanViewDraft(p) {
		err := apperr.Denied(apperr.CodeForbidden, "only a lawyer may view drafts")
		s.audit.Denied(ctx, p, "draft.list", audit.ResourceDraft, "", caseID, err)
		return nil, err
	}
	out, err := s.store.ListByCase(ctx, p.TenantID, caseID)
	if err != nil {
		return nil, apperr.Internal(err, "list drafts")
	}
	return out, nil
}

// Review dispositions a PENDING draft. At most one concurrent review of the
// same draft commits; the others get ALREADY_PROCESSED.
func (s *Service) Review(ctx context.Context, p auth.Principal, id string, req ReviewRequest) (Draft, error) {
	if !guard.CanApproveDraft(p) {
		err := guard.RequireRole(p, auth.RoleLawyer)
		s.audit.Denied(ctx, p, "draft.approve", audit.ResourceDraft, id, "", err)
		return Draft{}, err
	}

	d, err := s.load(ctx, id)
	if err != nil {
		return Draft{}, err
	}
	if err := guard.RequireTenant(p, d.TenantID); err != nil {
		s.audit.Denied(ctx, p, "draft.approve", audit.ResourceDraft, id, "", err)
		return Draft{}, err
	}

	if len(d.Flags) > 0 && !req.FlagsAcknowledged {
		return Draft{}, apperr.Invalid(apperr.CodeFlagsNotAcknowledged, "draft carries %d flag(s) that must be acknowledged", len(d.Flags))
	}
	status, ok := outcome[req.Action]
	if !ok {
		return Draft{}, apperr.Invalid("", "action must be approve, modify or reject")
	}
	if req.ReviewStartedAt.IsZero() {
		return Draft{}, apperr.Invalid("", "reviewStartTime is required")
	}
	if req.Action == ActionModify && strings.TrimSpace(req.FinalContent) == "" {
		return Draft{}, apperr.Invalid("", "finalContent is required to modify")
	}

	if d.Status.Terminal() {
		return Draft{}, apperr.Conflict(apperr.CodeAlreadyProcessed, "draft already %s", strings.ToLower(string(d.Status)))
	}

	now := s.now().UTC()
	reviewSeconds := math.Max(0, now.Sub(req.ReviewStartedAt).Seconds())

	var final string
	switch req.Action {
	case ActionApprove:
		final = d.Content
	case ActionModify:
		final = req.FinalContent
	}

	disp := Disposition{
		Status:       status,
		ReviewerID:   p.ID,
		ReviewedAt:   now,
		Comment:      strings.TrimSpace(req.Comment),
		FinalContent: final,
	}
	if err := s.store.Dispose(ctx, p.TenantID, d.ID, disp); err != nil {
		if errors.Is(err, ErrAlreadyProcessed) {
			return Draft{}, apperr.Conflict(apperr.CodeAlreadyProcessed, "draft was processed concurrently")
		}
		return Draft{}, apperr.Internal(err, "persist disposition")
	}
	obs.DraftDispositions.WithLabelValues(string(status)).Inc()

	s.audit.Record(ctx, audit.Entry{
		TenantID:     p.TenantID,
		Actor:        audit.ActorOf(p),
		ResourceType: audit.ResourceDraft,
		ResourceID:   d.ID,
		CaseID:       d.CaseID,
		Details: audit.DraftApproveDetails{
			Decision:          string(req.Action),
			DraftType:         string(d.Type),
			DraftVersion:      d.Version,
			ReviewTimeSeconds: reviewSeconds,
			ContentModified:   req.Action == ActionModify && final != d.Content,
			FlagCount:         len(d.Flags),
			FlagsAcknowledged: req.FlagsAcknowledged,
		},
	})

	d.Status = disp.Status
	d.ReviewerID = disp.ReviewerID
	d.ReviewedAt = &now
	d.ReviewComment = disp.Comment
	d.FinalContent = disp.FinalContent
	return d, nil
}

func (s *Service) load(ctx context.Context, id string) (Draft, error) {
	d, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Draft{}, apperr.NotFound("draft %s not found", id)
	}
	if err != nil {
		return Draft{}, apperr.Internal(err, "load draft")
	}
	return d, nil
}
