// Package audit is the append-only record of sensitive actions.
package audit

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"casedesk.org/internal/auth"
)

// Action enumerates what an entry records.
type Action string

const (
	ActionCaseView         Action = "CASE_VIEW"
	ActionCaseCreate       Action = "CASE_CREATE"
	ActionDraftCreate      Action = "DRAFT_CREATE"
	ActionDraftView        Action = "DRAFT_VIEW"
	ActionDraftApprove     Action = "DRAFT_APPROVE"
	ActionSendExecute      Action = "SEND_EXECUTE"
	ActionPermissionDenied Action = "PERMISSION_DENIED"
	ActionAuditView        Action = "AUDIT_VIEW"
)

var AllActions = []Action{
	ActionCaseView, ActionCaseCreate, ActionDraftCreate, ActionDraftView,
	ActionDraftApprove, ActionSendExecute, ActionPermissionDenied, ActionAuditView,
}

// ParseAction accepts the canonical action name case-insensitively.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	if !slices.Contains(AllActions, a) {
		return "", fmt.Errorf("unknown audit action %q", s)
	}
	return a, nil
}

// Result is the outcome of the recorded attempt.
type Result string

const (
	ResultSuccess Result = "SUCCESS"
	ResultFailure Result = "FAILURE"
	ResultDenied  Result = "DENIED"
)

// Resource types referenced by entries.
const (
	ResourceCase  = "case"
	ResourceDraft = "draft"
	ResourceSend  = "external_send"
	ResourceAudit = "audit_log"
)

// Actor identifies who acted. It is nil for unauthenticated failures.
type Actor struct {
	UserID string    `json:"userId"`
	Role   auth.Role `json:"role"`
}

// ActorOf builds an Actor from a principal.
func ActorOf(p auth.Principal) *Actor {
	return &Actor{UserID: p.ID, Role: p.Role}
}

// Entry is one immutable audit record.
type Entry struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenantId"`
	Actor        *Actor    `json:"actor,omitempty"`
	Action       Action    `json:"action"`
	ResourceType string    `json:"resourceType"`
	ResourceID   string    `json:"resourceId,omitempty"`
	CaseID       string    `json:"caseId,omitempty"`
	IPAddress    string    `json:"ipAddress"`
	UserAgent    string    `json:"userAgent,omitempty"`
	RequestID    string    `json:"requestId,omitempty"`
	Result       Result    `json:"result"`
	Details      Details   `json:"details,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Query selects entries for one tenant. Zero values do not filter.
type Query struct {
	TenantID string
	Action   Action
	ActorID  string
	Since    time.Time
	Until    time.Time
	// BeforeID resumes a newest-first scan at Until: entries created exactly
	// at Until are kept when their id sorts below BeforeID.
	BeforeID string
	Limit    int
}

// Store persists entries. There is no update or delete.
type Store interface {
	Append(ctx context.Context, e Entry) error
	// List returns matching entries, newest first.
	List(ctx context.Context, q Query) ([]Entry, error)
}

// DefaultListLimit and MaxListLimit bound Query.Limit.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// ClampLimit normalises a requested page size.
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultListLimit
	case n > MaxListLimit:
		return MaxListLimit
	default:
		return n
	}
}
