package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"sharedauth/internal/auth/models"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"AUTH_SECRET", "NEXTAUTH_SECRET", "APP_ENV", "NODE_ENV", "AUTH_API_URL", "NEXT_PUBLIC_API_URL", "AUTH_MIGRATION_MODE", "AUTH_PROVIDER_TIMEOUT", "SHARED_AUTH_ADMIN_TOKEN", "SESSION_MAX_AGE"} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, devSecret, cfg.Secret)
	assert.Equal(t, "http://localhost:3001", cfg.APIURL)
	assert.Equal(t, 5*time.Second, cfg.ProviderTimeout)
	assert.False(t, cfg.MigrationMode)
	assert.False(t, cfg.IsProduction())
	assert.Empty(t, cfg.AdminToken)
	assert.Equal(t, 30*24*time.Hour, cfg.SessionMaxAge)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("NEXTAUTH_SECRET", "s3cr3t")
	t.Setenv("APP_ENV", "")
	t.Setenv("NODE_ENV", "production")
	t.Setenv("NEXT_PUBLIC_API_URL", "https://api.example.com/")
	t.Setenv("AUTH_MIGRATION_MODE", "true")
	t.Setenv("AUTH_API_URL", "")
	t.Setenv("ADMIN_URL", "https://admin.example.com")
	t.Setenv("AUTH_PROVIDER_TIMEOUT", "not-a-duration")
	t.Setenv("SHARED_AUTH_ADMIN_TOKEN", "ops-token")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8")

	cfg := FromEnv()

	assert.Equal(t, "s3cr3t", cfg.Secret)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "https://api.example.com", cfg.APIURL)
	assert.True(t, cfg.MigrationMode)
	assert.Equal(t, defaultProviderTimeout, cfg.ProviderTimeout, "invalid durations fall back")
	assert.Equal(t, "https://admin.example.com", cfg.AppURLs[models.AppAdmin])
	assert.Equal(t, "ops-token", cfg.AdminToken)
	assert.Equal(t, "10.0.0.0/8", cfg.TrustedProxies)
}
