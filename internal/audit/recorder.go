package audit

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"casedesk.org/internal/apperr"
	"casedesk.org/internal/auth"
	"casedesk.org/internal/ids"
	"casedesk.org/internal/obs"
)

// Recorder appends entries and never fails the caller. Storage errors go to
// the diagnostics logger and the audit_write_failures metric.
type Recorder struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewRecorder wires a recorder to store. A nil logger uses obs.Logger().
func NewRecorder(store Store, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = obs.Logger()
	}
	return &Recorder{
		store:  store,
		logger: logger.With(zap.String("component", "audit")),
		now:    time.Now,
	}
}

// Record assigns id and timestamp, copies request metadata from ctx and appends e.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if e.Details != nil {
		e.Action = e.Details.Action()
	}
	e.ID = ids.New()
	e.CreatedAt = r.now().UTC()

	meta := MetaFromContext(ctx)
	if e.IPAddress == "" {
		e.IPAddress = meta.IPAddress
	}
	if e.UserAgent == "" {
		e.UserAgent = meta.UserAgent
	}
	if e.RequestID == "" {
		e.RequestID = meta.RequestID
	}
	if e.Result == "" {
		e.Result = ResultSuccess
	}

	fields := []zap.Field{
		zap.String("audit_id", e.ID),
		zap.String("tenant_id", e.TenantID),
		zap.String("action", string(e.Action)),
		zap.String("result", string(e.Result)),
		zap.String("resource_type", e.ResourceType),
		zap.String("resource_id", e.ResourceID),
		zap.String("request_id", e.RequestID),
	}
	if e.Actor != nil {
		fields = append(fields, zap.String("actor_id", e.Actor.UserID), zap.String("actor_role", string(e.Actor.Role)))
	}

	if e.TenantID == "" {
		obs.AuditWriteFailures.Inc()
		r.logger.Error("audit entry without tenant dropped", fields...)
		return
	}
	if err := r.store.Append(ctx, e); err != nil {
		obs.AuditWriteFailures.Inc()
		r.logger.Error("audit write failed", append(fields, zap.Error(err))...)
		return
	}
	r.logger.Debug("audit", fields...)
}

// Denied records a PERMISSION_DENIED entry for p attempting operation.
func (r *Recorder) Denied(ctx context.Context, p auth.Principal, operation, resourceType, resourceID, caseID string, cause error) {
	d := PermissionDeniedDetails{Operation: operation, Code: apperr.CodeForbidden}
	var ae *apperr.Error
	if errors.As(cause, &ae) {
		d.Code = ae.Code
		d.Reason = ae.Message
	} else if cause != nil {
		d.Reason = cause.Error()
	}
	r.Record(ctx, Entry{
		TenantID:     p.TenantID,
		Actor:        ActorOf(p),
		ResourceType: resourceType,
		ResourceID:   resourceID,
		CaseID:       caseID,
		Result:       ResultDenied,
		Details:      d,
	})
}
