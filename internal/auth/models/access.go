package models

import (
	"slices"
	"strings"
)

// permissionManage grants every action on a resource: "manage:<resource>".
const permissionManage = "manage"

// Requirements is what a caller demands of a session on top of it being valid
// for the app. Roles use OR semantics; every listed permission must be held.
type Requirements struct {
	Roles       []string
	Permissions []string
}

// HasPermission reports whether the user's permissions grant permission,
// written "<action>:<resource>". manage:<resource> grants any action on it.
func (u SessionUser) HasPermission(permission string) bool {
	permission = strings.ToLower(strings.TrimSpace(permission))
	action, resource, ok := strings.Cut(permission, ":")
	if !ok || action == "" || resource == "" {
		return false
	}
	return slices.Contains(u.Permissions, permission) ||
		slices.Contains(u.Permissions, permissionManage+":"+resource)
}

// CanAccess reports whether the user may perform action on resource. An
// empty action means read.
func (u SessionUser) CanAccess(resource, action string) bool {
	if action == "" {
		action = "read"
	}
	return u.HasPermission(action + ":" + resource)
}

// MissingPermissions returns the entries of required the user is not granted.
// A bare resource name stands for read access to it.
func (u SessionUser) MissingPermissions(required []string) []string {
	var missing []string
	for _, p := range required {
		action, resource, ok := strings.Cut(p, ":")
		if !ok {
			action, resource = "", p
		}
		if !u.CanAccess(resource, action) {
			missing = append(missing, p)
		}
	}
	return missing
}

// HasRole reports whether the user holds role.
func (u SessionUser) HasRole(role string) bool {
	role = strings.ToLower(strings.TrimSpace(role))
	return role != "" && (u.Role == role || slices.Contains(u.Roles, role))
}

// HasAnyRole reports whether the user holds at least one of roles.
func (u SessionUser) HasAnyRole(roles ...string) bool {
	return slices.ContainsFunc(roles, u.HasRole)
}

func (u SessionUser) IsAdmin() bool {
	return u.HasAnyRole(RoleAdmin, RoleSuperAdmin)
}

func (u SessionUser) IsPartner() bool {
	return u.HasRole(RolePartner)
}
