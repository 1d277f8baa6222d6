package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"casedesk.org/internal/audit"
	"casedesk.org/internal/auth"
)

// AuditStore is the append-only audit log.
type AuditStore struct {
	db *sql.DB
}

var _ audit.Store = (*AuditStore)(nil)

const auditColumns = `id, tenant_id, actor_id, actor_role, action, resource_type, resource_id, case_id,
	ip_address, user_agent, request_id, result, details, created_at`

func (s *AuditStore) Append(ctx context.Context, e audit.Entry) error {
	details, err := audit.EncodeDetails(e.Details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}
	var actorID, actorRole sql.NullString
	if e.Actor != nil {
		actorID = nullString(e.Actor.UserID)
		actorRole = nullString(string(e.Actor.Role))
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_logs(`+auditColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, e.ID, e.TenantID, actorID, actorRole, string(e.Action), e.ResourceType, nullString(e.ResourceID),
		nullString(e.CaseID), e.IPAddress, e.UserAgent, nullString(e.RequestID), string(e.Result), details, e.CreatedAt.UTC())
	return err
}

func (s *AuditStore) List(ctx context.Context, q audit.Query) ([]audit.Entry, error) {
	where := []string{"tenant_id=$1"}
	args := []any{q.TenantID}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if q.Action != "" {
		add("action=$%d", string(q.Action))
	}
	if q.ActorID != "" {
		add("actor_id=$%d", q.ActorID)
	}
	if !q.Since.IsZero() {
		add("created_at >= $%d", q.Since.UTC())
	}
	switch {
	case !q.Until.IsZero() && q.BeforeID != "":
		args = append(args, q.Until.UTC(), q.BeforeID)
		where = append(where, fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	case !q.Until.IsZero():
		add("created_at < $%d", q.Until.UTC())
	}
	args = append(args, audit.ClampLimit(q.Limit))

	query := fmt.Sprintf(`select %s from audit_logs where %s order by created_at desc, id desc limit $%d`,
		auditColumns, strings.Join(where, " and "), len(args))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var (
			e                             audit.Entry
			actorID, actorRole            sql.NullString
			resourceID, caseID, requestID sql.NullString
			action, result                string
			details                       []byte
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &actorID, &actorRole, &action, &e.ResourceType, &resourceID, &caseID,
			&e.IPAddress, &e.UserAgent, &requestID, &result, &details, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Action = audit.Action(action)
		e.Result = audit.Result(result)
		e.ResourceID, e.CaseID, e.RequestID = resourceID.String, caseID.String, requestID.String
		e.CreatedAt = e.CreatedAt.UTC()
		if actorID.Valid {
			e.Actor = &audit.Actor{UserID: actorID.String, Role: auth.Role(actorRole.String)}
		}
		if len(details) > 0 {
			if e.Details, err = audit.DecodeDetails(e.Action, details); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
