package enrich

import (
	"slices"

	"sharedauth/internal/auth/models"
	pstrings "sharedauth/pkg/platform/strings"
)

var basePermissions = []string{"read:profile", "update:profile"}

var rolePermissions = map[string][]string{
	models.RoleAdmin: {
		"read:users", "create:users", "update:users", "delete:users",
		"read:analytics", "manage:system",
	},
	models.RolePartner: {
		"read:partner_data", "update:partner_data", "create:partner_content",
		"read:partner_analytics",
	},
	models.RoleBusinessUser: {
		"read:business_data", "update:business_data", "create:business_content",
	},
}

var appPermissions = map[models.AppType][]string{
	models.AppAdmin:   {"access:admin_panel"},
	models.AppPartner: {"access:partner_portal"},
}

// Permissions computes the grant set for roles within app. It is a pure
// function of its inputs; the result is deduplicated.
func Permissions(roles []string, app models.AppType) []string {
	perms := slices.Clone(basePermissions)
	for _, role := range roles {
		perms = pstrings.AppendUnique(perms, rolePermissions[role]...)
	}
	return pstrings.AppendUnique(perms, appPermissions[app]...)
}

// rolePrecedence orders roles when a single legacy role has to be picked.
var rolePrecedence = []string{
	models.RoleSuperAdmin,
	models.RoleAdmin,
	models.RolePartner,
	models.RoleBusinessUser,
	models.RoleUser,
	models.RoleViewer,
}

// PrimaryRole returns the most privileged known role, or the first role when
// none is known.
func PrimaryRole(roles []string) string {
	for _, candidate := range rolePrecedence {
		if slices.Contains(roles, candidate) {
			return candidate
		}
	}
	if len(roles) > 0 {
		return roles[0]
	}
	return ""
}
