package send

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"casedesk.org/internal/apperr"
	"casedesk.org/internal/audit"
	"casedesk.org/internal/auth"
	"casedesk.org/internal/cases"
	"casedesk.org/internal/draft"
	"casedesk.org/internal/guard"
	"casedesk.org/internal/ids"
	"casedesk.org/internal/obs"
)

// Request is one send attempt.
type Request struct {
	CaseID              string
	SendType            guard.SendType
	RecipientType       guard.RecipientType
	RecipientName       string
	RecipientAddress    string
	CreditorID          string
	DraftID             string
	Content             string
	SendMethod          Method
	ConfirmationChecked bool
}

// Receipt is the committed send plus the outcome of its best-effort side effects.
type Receipt struct {
	Send             ExternalSend `json:"send"`
	CreditorsNoticed int          `json:"creditorsNoticed"`
	Archived         bool         `json:"archived"`
}

// Gate executes sends.
type Gate struct {
	store    Store
	cases    cases.Store
	drafts   draft.Store
	audit    *audit.Recorder
	noticer  CreditorNoticer
	archiver Archiver
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithArchiver enables evidence archiving of every committed send.
func WithArchiver(a Archiver) Option { return func(g *Gate) { g.archiver = a } }

// WithNoticer overrides the creditor noticer; the case store is the default.
func WithNoticer(n CreditorNoticer) Option { return func(g *Gate) { g.noticer = n } }

// WithLogger sets the diagnostics logger.
func WithLogger(l *zap.Logger) Option { return func(g *Gate) { g.logger = l } }

func NewGate(store Store, caseStore cases.Store, drafts draft.Store, rec *audit.Recorder, opts ...Option) *Gate {
	g := &Gate{
		store:   store,
		cases:   caseStore,
		drafts:  drafts,
		audit:   rec,
		noticer: caseStore,
		logger:  obs.Logger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(zap.String("component", "send_gate"))
	return g
}

// Execute runs the gate. Role, confirmation, tenant and draft checks are hard
// stops that leave no state behind. Creditor marking and archiving happen
// after commit and never undo it.
func (g *Gate) Execute(ctx context.Context, p auth.Principal, req Request) (Receipt, error) {
	if err := guard.RequireSendPermission(p, req.SendType); err != nil {
		return Receipt{}, g.deny(ctx, p, req, err)
	}
	if err := guard.RequireRecipient(p, req.SendType, req.RecipientType); err != nil {
		return Receipt{}, g.deny(ctx, p, req, err)
	}

	if !req.ConfirmationChecked {
		return Receipt{}, apperr.Conflict(apperr.CodeConfirmationRequired, "explicit confirmation is required before sending")
	}
	if err := validate(req); err != nil {
		return Receipt{}, err
	}

	c, err := g.cases.Lookup(ctx, req.CaseID)
	if errors.Is(err, cases.ErrNotFound) {
		return Receipt{}, apperr.NotFound("case %s not found", req.CaseID)
	}
	if err != nil {
		return Receipt{}, apperr.Internal(err, "load case")
	}
	if err := guard.RequireTenant(p, c.TenantID); err != nil {
		return Receipt{}, g.deny(ctx, p, req, err)
	}

	if req.DraftID != "" {
		d, err := g.drafts.Get(ctx, req.DraftID)
		if errors.Is(err, draft.ErrNotFound) {
			return Receipt{}, apperr.NotFound("draft %s not found", req.DraftID)
		}
		if err != nil {
			return Receipt{}, apperr.Internal(err, "load draft")
		}
		if err := guard.RequireTenant(p, d.TenantID); err != nil {
			return Receipt{}, g.deny(ctx, p, req, err)
		}
		if d.CaseID != c.ID {
			return Receipt{}, apperr.Invalid("", "draft %s belongs to another case", d.ID)
		}
		if !d.Status.Sendable() {
			return Receipt{}, apperr.Conflict(apperr.CodeDraftNotApproved, "draft status is %s", d.Status)
		}
	}

	rec := ExternalSend{
		ID:                  ids.New(),
		TenantID:            p.TenantID,
		CaseID:              c.ID,
		SendType:            req.SendType,
		RecipientType:       req.RecipientType,
		RecipientName:       strings.TrimSpace(req.RecipientName),
		RecipientAddress:    strings.TrimSpace(req.RecipientAddress),
		CreditorID:          strings.TrimSpace(req.CreditorID),
		DraftID:             req.DraftID,
		ContentSnapshot:     strings.Clone(req.Content),
		SendMethod:          req.SendMethod,
		SenderID:            p.ID,
		SentAt:              g.now().UTC(),
		ConfirmationChecked: req.ConfirmationChecked,
	}
	if rec.ContentHash, err = ComputeHash(rec); err != nil {
		return Receipt{}, apperr.Internal(err, "hash send")
	}
	if err := g.store.Create(ctx, rec); err != nil {
		return Receipt{}, apperr.Internal(err, "record send")
	}

	g.audit.Record(ctx, audit.Entry{
		TenantID:     p.TenantID,
		Actor:        audit.ActorOf(p),
		ResourceType: audit.ResourceSend,
		ResourceID:   rec.ID,
		CaseID:       rec.CaseID,
		Details: audit.SendExecuteDetails{
			SendType:            string(rec.SendType),
			RecipientType:       string(rec.RecipientType),
			RecipientName:       rec.RecipientName,
			SendMethod:          string(rec.SendMethod),
			ConfirmationChecked: rec.ConfirmationChecked,
			DraftID:             rec.DraftID,
			ContentHash:         rec.ContentHash,
		},
	})

	out := Receipt{Send: rec}
	if rec.SendType == guard.SendRetentionNotice && rec.RecipientType == guard.RecipientCreditor {
		out.CreditorsNoticed = g.markCreditors(ctx, rec)
	}
	if g.archiver != nil {
		if err := g.archiver.Archive(ctx, rec); err != nil {
			g.logger.Error("evidence archive failed",
				zap.String("send_id", rec.ID), zap.String("tenant_id", rec.TenantID), zap.Error(err))
		} else {
			out.Archived = true
		}
	}
	return out, nil
}

func (g *Gate) markCreditors(ctx context.Context, rec ExternalSend) int {
	m := cases.CreditorMatch{ID: rec.CreditorID, Name: rec.RecipientName}
	n, err := g.noticer.MarkCreditorsNoticed(ctx, rec.TenantID, rec.CaseID, m, rec.SentAt)
	if err != nil {
		g.logger.Error("creditor notice update failed",
			zap.String("send_id", rec.ID), zap.String("case_id", rec.CaseID), zap.Error(err))
		return 0
	}
	if n == 0 {
		g.logger.Warn("retention notice matched no creditor",
			zap.String("send_id", rec.ID), zap.String("case_id", rec.CaseID),
			zap.Bool("by_id", rec.CreditorID != ""))
	}
	return n
}

// List returns up to MaxList recent sends of the tenant, optionally for one case.
// It requires tenant-wide case visibility.
func (g *Gate) List(ctx context.Context, p auth.Principal, caseID string) ([]ExternalSend, error) {
	if !p.HasPermission(auth.PermCaseViewAll) {
		err := apperr.Denied(apperr.CodeForbidden, "missing permission %s", auth.PermCaseViewAll)
		g.audit.Denied(ctx, p, "send.list", audit.ResourceSend, "", caseID, err)
		return nil, err
	}
	out, err := g.store.List(ctx, p.TenantID, caseID, MaxList)
	if err != nil {
		return nil, apperr.Internal(err, "list sends")
	}
	return out, nil
}

func (g *Gate) deny(ctx context.Context, p auth.Principal, req Request, err error) error {
	obs.SendGateDenials.WithLabelValues(apperr.CodeOf(err)).Inc()
	g.audit.Denied(ctx, p, "send.execute", audit.ResourceSend, "", req.CaseID, err)
	return err
}

func validate(req Request) error {
	switch {
	case strings.TrimSpace(req.CaseID) == "":
		return apperr.Invalid("", "caseId is required")
	case strings.TrimSpace(req.RecipientName) == "":
		return apperr.Invalid("", "recipientName is required")
	case strings.TrimSpace(req.Content) == "":
		return apperr.Invalid("", "content is required")
	}
	if _, ok := knownMethods[req.SendMethod]; !ok {
		return apperr.Invalid("", "unknown sendMethod %q", req.SendMethod)
	}
	return nil
}
