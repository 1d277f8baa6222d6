package audit

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"casedesk.org/internal/apperr"
	"casedesk.org/internal/auth"
	"casedesk.org/internal/guard"
)

// Viewer serves reads of the audit log. Every read, granted or not, is itself
// recorded.
type Viewer struct {
	store Store
	rec   *Recorder
	now   func() time.Time
}

func NewViewer(store Store, rec *Recorder) *Viewer {
	return &Viewer{store: store, rec: rec, now: time.Now}
}

// Authorize checks that p may read audit data now, recording a denial if not.
func (v *Viewer) Authorize(ctx context.Context, p auth.Principal, operation string) error {
	if guard.CanReadAudit(p, v.now()) {
		return nil
	}
	err := apperr.Denied(apperr.CodeForbidden, "audit access requires %s", auth.PermAuditRead)
	v.rec.Denied(ctx, p, operation, ResourceAudit, "", "", err)
	return err
}

// Logs returns entries of p's tenant matching q, newest first.
func (v *Viewer) Logs(ctx context.Context, p auth.Principal, q Query) ([]Entry, error) {
	if err := v.Authorize(ctx, p, "audit.logs"); err != nil {
		return nil, err
	}
	q.TenantID = p.TenantID
	q.Limit = ClampLimit(q.Limit)
	if !q.Since.IsZero() && !q.Until.IsZero() && !q.Since.Before(q.Until) {
		return nil, apperr.Invalid("", "since must be before until")
	}
	out, err := v.store.List(ctx, q)
	if err != nil {
		return nil, apperr.Internal(err, "list audit entries")
	}
	v.RecordView(ctx, p, describe(q), len(out))
	return out, nil
}

// RecordView writes the AUDIT_VIEW entry for a completed read.
func (v *Viewer) RecordView(ctx context.Context, p auth.Principal, query string, returned int) {
	v.rec.Record(ctx, Entry{
		TenantID:     p.TenantID,
		Actor:        ActorOf(p),
		ResourceType: ResourceAudit,
		Details:      AuditViewDetails{Query: query, Returned: returned},
	})
}

func describe(q Query) string {
	vals := url.Values{}
	if q.Action != "" {
		vals.Set("action", string(q.Action))
	}
	if q.ActorID != "" {
		vals.Set("actorId", q.ActorID)
	}
	if !q.Since.IsZero() {
		vals.Set("since", q.Since.UTC().Format(time.RFC3339))
	}
	if !q.Until.IsZero() {
		vals.Set("until", q.Until.UTC().Format(time.RFC3339))
	}
	vals.Set("limit", strconv.Itoa(q.Limit))
	return vals.Encode()
}
