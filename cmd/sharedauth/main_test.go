package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharedauth/internal/auth/models"
	"sharedauth/internal/tokencodec"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestTokengen(t *testing.T) {
	t.Setenv("AUTH_SECRET", "env-secret")
	t.Setenv("APP_ENV", "development")

	out, err := runRoot(t, "tokengen", "--app", "Admin", "--user-id", "u-42", "--roles", "Admin,viewer", "--secret", "flag-secret", "--json")
	require.NoError(t, err)

	var got tokenOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "admin.session-token", got.Cookie)
	assert.NotEmpty(t, got.SessionID)

	codec, err := tokencodec.New("flag-secret")
	require.NoError(t, err)
	tok, err := codec.Decode(got.Value, models.AppAdmin)
	require.NoError(t, err)
	assert.Equal(t, "u-42", tok.SubjectID)
	assert.Equal(t, models.AppAdmin, tok.AppType)
	assert.Contains(t, tok.Roles, "admin")

	other, err := tokencodec.New("env-secret")
	require.NoError(t, err)
	_, err = other.Decode(got.Value, models.AppAdmin)
	assert.Error(t, err, "flags override the environment")
}

func TestTokengen_RejectsUnknownApp(t *testing.T) {
	_, err := runRoot(t, "tokengen", "--app", "mobile")
	assert.Error(t, err)
}

func TestConfigFlags_OnlyExplicitFlagsOverride(t *testing.T) {
	t.Setenv("AUTH_MIGRATION_MODE", "true")
	t.Setenv("SHARED_AUTH_ADDR", ":9000")

	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	var flags configFlags
	flags.register(fs)
	require.NoError(t, fs.Parse([]string{"--admin-token", "ops"}))

	cfg := flags.load(fs)
	assert.True(t, cfg.MigrationMode)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "ops", cfg.AdminToken)
}

func TestDefaultRequiredRoles(t *testing.T) {
	assert.Equal(t, []string{models.RoleAdmin, models.RoleSuperAdmin}, defaultRequiredRoles(models.AppAdmin))
	assert.Nil(t, defaultRequiredRoles(models.AppPartner))
	assert.Nil(t, defaultRequiredRoles(models.AppFrontend))
}
