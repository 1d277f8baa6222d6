package httpapi

import (
	"net/http"
	"time"

	"casedesk.org/internal/apperr"
	"casedesk.org/internal/audit"
)

func (a *API) auditLogs(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	q, err := parseAuditQuery(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out, err := a.svc.Audit.Logs(r.Context(), p, q)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items(out))
}

func (a *API) auditAnomalies(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.svc.Audit.Authorize(r.Context(), p, "audit.anomalies"); err != nil {
		a.fail(w, r, err)
		return
	}
	report, err := a.svc.Scanner.Scan(r.Context(), p.TenantID)
	if err != nil {
		a.fail(w, r, apperr.Internal(err, "scan audit log"))
		return
	}
	a.svc.Audit.RecordView(r.Context(), p, "anomalies", len(report.Quick)+len(report.Bulk))
	writeJSON(w, http.StatusOK, report)
}

func parseAuditQuery(r *http.Request) (audit.Query, error) {
	v := r.URL.Query()
	var q audit.Query
	if raw := v.Get("action"); raw != "" {
		action, err := audit.ParseAction(raw)
		if err != nil {
			return q, apperr.Invalid("", "%v", err)
		}
		q.Action = action
	}
	q.ActorID = v.Get("actorId")
	for key, dst := range map[string]*time.Time{"since": &q.Since, "until": &q.Until} {
		raw := v.Get(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return q, apperr.Invalid("", "%s must be an RFC 3339 timestamp", key)
		}
		*dst = t
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return q, err
	}
	q.Limit = limit
	return q, nil
}
