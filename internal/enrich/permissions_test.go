package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sharedauth/internal/auth/models"
)

func TestPermissions(t *testing.T) {
	t.Run("base grants for every identity", func(t *testing.T) {
		assert.Equal(t, []string{"read:profile", "update:profile"}, Permissions(nil, models.AppFrontend))
	})

	t.Run("admin role on admin app", func(t *testing.T) {
		got := Permissions([]string{"admin", "user"}, models.AppAdmin)
		assert.ElementsMatch(t, []string{
			"read:profile", "update:profile",
			"read:users", "create:users", "update:users", "delete:users",
			"read:analytics", "manage:system",
			"access:admin_panel",
		}, got)
	})

	t.Run("partner roles on partner app", func(t *testing.T) {
		got := Permissions([]string{"partner", "business_user"}, models.AppPartner)
		assert.Contains(t, got, "read:partner_analytics")
		assert.Contains(t, got, "create:business_content")
		assert.Contains(t, got, "access:partner_portal")
		assert.NotContains(t, got, "access:admin_panel")
	})

	t.Run("deduplicated", func(t *testing.T) {
		got := Permissions([]string{"admin", "admin"}, models.AppAdmin)
		seen := map[string]int{}
		for _, p := range got {
			seen[p]++
		}
		for p, n := range seen {
			assert.Equal(t, 1, n, p)
		}
	})

	t.Run("pure", func(t *testing.T) {
		assert.Equal(t, Permissions([]string{"partner"}, models.AppPartner), Permissions([]string{"partner"}, models.AppPartner))
	})
}

func TestPrimaryRole(t *testing.T) {
	assert.Equal(t, "admin", PrimaryRole([]string{"user", "admin"}))
	assert.Equal(t, "partner", PrimaryRole([]string{"business_user", "partner"}))
	assert.Equal(t, "auditor", PrimaryRole([]string{"auditor"}))
	assert.Equal(t, "", PrimaryRole(nil))
}
