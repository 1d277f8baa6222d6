// Package guard holds the authorization decisions for the control plane.
//
// Functions returning error yield *apperr.Error values of kind Authorization.
// The guard never logs; the caller records every denial.
package guard

import (
	"slices"
	"time"

	"casedesk.org/internal/apperr"
	"casedesk.org/internal/auth"
)

// RequireRole fails unless p has exactly role.
func RequireRole(p auth.Principal, role auth.Role) error {
	if p.Role != role {
		return apperr.Denied(apperr.CodeForbidden, "role %s required", role)
	}
	return nil
}

// RequireSendPermission is the single choke point for legally gated sends.
// It succeeds only for a Lawyer and one of the five gated send types.
func RequireSendPermission(p auth.Principal, t SendType) error {
	perm, gated := t.Permission()
	if !gated {
		return apperr.Denied(apperr.CodeSendGateBlocked, "send type %q is not a permitted category", t)
	}
	if p.Role != auth.RoleLawyer {
		return apperr.Denied(apperr.CodeSendGateBlocked, "only a lawyer may send %s", t)
	}
	if !p.HasPermission(perm) {
		return apperr.Denied(apperr.CodeSendGateBlocked, "missing permission %s", perm)
	}
	return nil
}

// CanSendToRecipient reports whether p may address recipient r at all.
// Staff reaching a client is further limited by CanSendMessageType.
func CanSendToRecipient(p auth.Principal, r RecipientType) bool {
	switch r {
	case RecipientClient:
		return p.Role == auth.RoleLawyer || p.Role == auth.RoleStaff
	case RecipientCreditor, RecipientCourt:
		return p.Role == auth.RoleLawyer
	default:
		return false
	}
}

// RequireRecipient fails unless p may address r with a send of type t.
// Client recipients also need CanSendMessageType for t's message class.
func RequireRecipient(p auth.Principal, t SendType, r RecipientType) error {
	if !CanSendToRecipient(p, r) {
		return apperr.Denied(apperr.CodeSendGateBlocked, "recipient %q not permitted", r)
	}
	if r == RecipientClient && !CanSendMessageType(p, t.MessageType()) {
		return apperr.Denied(apperr.CodeSendGateBlocked, "%s messages to a client not permitted", t.MessageType())
	}
	return nil
}

// CanSendMessageType reports whether p may author a message of type m.
// SYSTEM messages are never sent by an interactive principal.
func CanSendMessageType(p auth.Principal, m MessageType) bool {
	switch m {
	case MessageLegalResponse:
		return p.Role == auth.RoleLawyer
	case MessageAdminNotice, MessageReminder:
		return p.Role == auth.RoleLawyer || p.Role == auth.RoleStaff
	default:
		return false
	}
}

// CanViewDraft is hard-coded to the Lawyer role.
func CanViewDraft(p auth.Principal) bool { return p.Role == auth.RoleLawyer }

// CanApproveDraft is hard-coded to the Lawyer role.
func CanApproveDraft(p auth.Principal) bool { return p.Role == auth.RoleLawyer }

// RequireTenant fails when the resource tenant differs from the principal's.
func RequireTenant(p auth.Principal, tenantID string) error {
	if p.TenantID == "" || p.TenantID != tenantID {
		return apperr.Denied(apperr.CodeTenantMismatch, "resource belongs to another tenant")
	}
	return nil
}

// CanListCases reports whether p holds any case visibility permission.
func CanListCases(p auth.Principal) bool {
	return p.HasAny(auth.PermCaseViewAll, auth.PermCaseViewAssigned, auth.PermCaseViewOwn)
}

// CanAccessCase applies role-scoped visibility to a single case.
func CanAccessCase(p auth.Principal, c CaseScope) bool {
	if p.TenantID == "" || p.TenantID != c.TenantID {
		return false
	}
	switch {
	case p.HasPermission(auth.PermCaseViewAll):
		return true
	case p.HasPermission(auth.PermCaseViewAssigned):
		return slices.Contains(c.AssignedStaffIDs, p.ID)
	case p.HasPermission(auth.PermCaseViewOwn):
		return c.ClientUserID != "" && c.ClientUserID == p.ID
	default:
		return false
	}
}

// RequireCaseAccess is CanAccessCase returning a typed denial.
func RequireCaseAccess(p auth.Principal, c CaseScope) error {
	if err := RequireTenant(p, c.TenantID); err != nil {
		return err
	}
	if !CanAccessCase(p, c) {
		return apperr.Denied(apperr.CodeForbidden, "case is outside the caller's visibility")
	}
	return nil
}

// CanReadAudit accepts the audit.read permission from the role or an active elevation.
func CanReadAudit(p auth.Principal, now time.Time) bool {
	return p.HasPermissionAt(auth.PermAuditRead, now)
}
