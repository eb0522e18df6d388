package domain

import "time"

// Role is a named permission bundle.
type Role struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RolePermission attaches a permission string to a role. Permission strings
// are opaque identifiers matched by exact equality; there is no hierarchy.
type RolePermission struct {
	RoleID     string
	Permission string
}

// UserRole attaches a role to a user with the assigning admin recorded.
type UserRole struct {
	UserID     string
	RoleID     string
	AssignedBy string
	CreatedAt  time.Time
}

// PermissionOverride is a direct per-user allow or deny for a single
// permission string, unique on (UserID, Permission). When present it takes
// precedence over anything role-derived for that exact permission.
type PermissionOverride struct {
	UserID     string
	Permission string
	Allowed    bool
	CreatedAt  time.Time
}

// Resolution is the answer to a permission query for one user. Permissions
// come from roles (possibly a TTL-cached copy); Overrides and OrgUnitID are
// always read live from the store.
type Resolution struct {
	Permissions map[string]struct{}
	Overrides   []PermissionOverride
	OrgUnitID   *string
}

// Has reports whether the role-derived set grants permission.
func (r Resolution) Has(permission string) bool {
	_, ok := r.Permissions[permission]
	return ok
}

// Override returns the override for permission, if any.
func (r Resolution) Override(permission string) (PermissionOverride, bool) {
	for _, o := range r.Overrides {
		if o.Permission == permission {
			return o, true
		}
	}
	return PermissionOverride{}, false
}
