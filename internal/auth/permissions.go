package auth

import (
	"fmt"
	"sort"
	"strings"
)

// Permission is a fine-grained capability token.
type Permission string

const (
	PermCaseViewAll      Permission = "case.view.all"
	PermCaseViewAssigned Permission = "case.view.assigned"
	PermCaseViewOwn      Permission = "case.view.own"
	PermCaseCreate       Permission = "case.create"
	PermCaseUpdate       Permission = "case.update"

	PermDraftView    Permission = "draft.view"
	PermDraftApprove Permission = "draft.approve"

	PermSendRetentionNotice Permission = "send.retention_notice"
	PermSendPetition        Permission = "send.petition"
	PermSendSupplementary   Permission = "send.supplementary"
	PermSendCourtResponse   Permission = "send.court_response"
	PermSendClientLegal     Permission = "send.client_legal"
	PermSendAdminMessage    Permission = "send.admin_message"

	PermDocumentUpload Permission = "document.upload"
	PermDocumentView   Permission = "document.view"
	PermDocumentManage Permission = "document.manage"

	PermMessageView   Permission = "message.view"
	PermMessageManage Permission = "message.manage"

	PermAuditRead    Permission = "audit.read"
	PermUserManage   Permission = "user.manage"
	PermSystemConfig Permission = "system.config"
)

// AllPermissions lists every known permission token.
var AllPermissions = []Permission{
	PermCaseViewAll, PermCaseViewAssigned, PermCaseViewOwn, PermCaseCreate, PermCaseUpdate,
	PermDraftView, PermDraftApprove,
	PermSendRetentionNotice, PermSendPetition, PermSendSupplementary, PermSendCourtResponse,
	PermSendClientLegal, PermSendAdminMessage,
	PermDocumentUpload, PermDocumentView, PermDocumentManage,
	PermMessageView, PermMessageManage,
	PermAuditRead, PermUserManage, PermSystemConfig,
}

// elevatable permissions may be granted by a time-boxed elevation.
var elevatable = map[Permission]struct{}{
	PermAuditRead: {},
}

// Elevatable reports whether p may be granted through elevation.
func Elevatable(p Permission) bool {
	_, ok := elevatable[p]
	return ok
}

// Role is the coarse identity class of a principal.
type Role string

const (
	RoleLawyer      Role = "LAWYER"
	RoleStaff       Role = "STAFF"
	RoleClient      Role = "CLIENT"
	RoleTechSupport Role = "TECH_SUPPORT"
	RoleAdmin       Role = "ADMIN"
)

// AllRoles lists every role in declaration order.
var AllRoles = []Role{RoleLawyer, RoleStaff, RoleClient, RoleTechSupport, RoleAdmin}

// ParseRole accepts the canonical upper-case form, case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := rolePermissions[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// PermissionSet is an unordered set of permissions.
type PermissionSet map[Permission]struct{}

// Has reports membership.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Sorted returns the members in lexical order.
func (s PermissionSet) Sorted() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func setOf(perms ...Permission) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

var rolePermissions = map[Role]PermissionSet{
	RoleLawyer: setOf(
		PermCaseViewAll, PermCaseCreate, PermCaseUpdate,
		PermDraftView, PermDraftApprove,
		PermSendRetentionNotice, PermSendPetition, PermSendSupplementary,
		PermSendCourtResponse, PermSendClientLegal, PermSendAdminMessage,
		PermDocumentUpload, PermDocumentView, PermDocumentManage,
		PermMessageView, PermMessageManage,
		PermAuditRead,
	),
	RoleStaff: setOf(
		PermCaseViewAssigned, PermCaseCreate,
		PermSendAdminMessage,
		PermDocumentUpload, PermDocumentView, PermDocumentManage,
		PermMessageView, PermMessageManage,
	),
	RoleClient: setOf(
		PermCaseViewOwn,
		PermDocumentUpload, PermDocumentView,
		PermMessageView,
	),
	RoleTechSupport: setOf(PermSystemConfig),
	RoleAdmin: setOf(
		PermCaseViewAll, PermAuditRead, PermUserManage, PermSystemConfig,
	),
}

func init() {
	if err := verifyTable(); err != nil {
		panic(err)
	}
}

// verifyTable checks the mapping is total and only names known permissions.
func verifyTable() error {
	known := setOf(AllPermissions...)
	for _, r := range AllRoles {
		set, ok := rolePermissions[r]
		if !ok {
			return fmt.Errorf("auth: role %s has no permission entry", r)
		}
		for p := range set {
			if !known.Has(p) {
				return fmt.Errorf("auth: role %s maps unknown permission %s", r, p)
			}
		}
	}
	if len(rolePermissions) != len(AllRoles) {
		return fmt.Errorf("auth: permission table has %d roles, want %d", len(rolePermissions), len(AllRoles))
	}
	return nil
}

// PermissionsFor returns a fresh copy of the permissions granted by role.
// Unknown roles get an empty set.
func PermissionsFor(r Role) PermissionSet {
	src := rolePermissions[r]
	out := make(PermissionSet, len(src))
	for p := range src {
		out[p] = struct{}{}
	}
	return out
}
