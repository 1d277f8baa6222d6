package auth

import "time"

// Elevation is a time-boxed grant on top of a principal's role. It never changes the role.
type Elevation struct {
	Permissions []Permission
	ExpiresAt   time.Time
}

// Active reports whether the elevation is still in force at now.
func (e *Elevation) Active(now time.Time) bool {
	return e != nil && now.Before(e.ExpiresAt)
}

// Principal is the authenticated actor of a request.
type Principal struct {
	ID            string
	TenantID      string
	Role          Role
	LicenseNumber string
	Elevation     *Elevation
}

// Permissions returns the role's permissions; elevation is not included.
func (p Principal) Permissions() PermissionSet {
	return PermissionsFor(p.Role)
}

// HasPermission reports whether the principal holds perm now.
func (p Principal) HasPermission(perm Permission) bool {
	return p.HasPermissionAt(perm, time.Now())
}

// HasPermissionAt reports whether the principal holds perm at the given instant,
// either through its role or an active elevation for an elevatable permission.
func (p Principal) HasPermissionAt(perm Permission, now time.Time) bool {
	if rolePermissions[p.Role].Has(perm) {
		return true
	}
	if !Elevatable(perm) || !p.Elevation.Active(now) {
		return false
	}
	for _, granted := range p.Elevation.Permissions {
		if granted == perm {
			return true
		}
	}
	return false
}

// HasAll reports whether every perm is held. An empty list is trivially satisfied.
func (p Principal) HasAll(perms ...Permission) bool {
	now := time.Now()
	for _, perm := range perms {
		if !p.HasPermissionAt(perm, now) {
			return false
		}
	}
	return true
}

// HasAny reports whether at least one perm is held.
func (p Principal) HasAny(perms ...Permission) bool {
	now := time.Now()
	for _, perm := range perms {
		if p.HasPermissionAt(perm, now) {
			return true
		}
	}
	return false
}

// IsLawyer reports whether the principal's role is Lawyer.
func (p Principal) IsLawyer() bool { return p.Role == RoleLawyer }
