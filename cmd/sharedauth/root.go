package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"sharedauth/internal/platform/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sharedauth",
		Short: "Cross-application session and token service",
		Long: `sharedauth issues, refreshes and validates the sessions shared by the
frontend, partner and admin applications.

Configuration comes from the environment (AUTH_API_URL, AUTH_SECRET,
AUTH_MIGRATION_MODE, ...). Flags override the environment.`,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newTokengenCmd())
	return root
}

// configFlags holds the flag values that override the environment.
type configFlags struct {
	addr          string
	env           string
	logLevel      string
	apiURL        string
	secret        string
	migrationMode bool
	flagsFile     string
	redisURL      string
	databaseURL   string
	kafkaBrokers  string
	adminToken    string
	cookieDomain  string
}

func (f *configFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.addr, "addr", "", "listen address (SHARED_AUTH_ADDR)")
	fs.StringVar(&f.env, "env", "", "deployment environment (APP_ENV)")
	fs.StringVar(&f.logLevel, "log-level", "", "log level (LOG_LEVEL)")
	fs.StringVar(&f.apiURL, "api-url", "", "Identity Provider base URL (AUTH_API_URL)")
	fs.StringVar(&f.secret, "secret", "", "session signing secret (AUTH_SECRET)")
	fs.BoolVar(&f.migrationMode, "migration-mode", false, "enable migration mode (AUTH_MIGRATION_MODE)")
	fs.StringVar(&f.flagsFile, "feature-flags-file", "", "YAML feature flag overrides (FEATURE_FLAGS_FILE)")
	fs.StringVar(&f.redisURL, "redis-url", "", "Redis URL (REDIS_URL)")
	fs.StringVar(&f.databaseURL, "database-url", "", "Postgres URL for the audit store (DATABASE_URL)")
	fs.StringVar(&f.kafkaBrokers, "kafka-brokers", "", "comma separated Kafka brokers (KAFKA_BROKERS)")
	fs.StringVar(&f.adminToken, "admin-token", "", "operator API token (SHARED_AUTH_ADMIN_TOKEN)")
	fs.StringVar(&f.cookieDomain, "cookie-domain", "", "cookie domain (COOKIE_DOMAIN)")
}

// load reads the environment and applies every flag that was set explicitly.
func (f *configFlags) load(fs *pflag.FlagSet) config.Config {
	cfg := config.FromEnv()
	overrides := map[string]func(){
		"addr":               func() { cfg.Addr = f.addr },
		"env":                func() { cfg.Env = f.env },
		"log-level":          func() { cfg.LogLevel = f.logLevel },
		"api-url":            func() { cfg.APIURL = f.apiURL },
		"secret":             func() { cfg.Secret = f.secret },
		"migration-mode":     func() { cfg.MigrationMode = f.migrationMode },
		"feature-flags-file": func() { cfg.FeatureFlagsFile = f.flagsFile },
		"redis-url":          func() { cfg.Redis.URL = f.redisURL },
		"database-url":       func() { cfg.Database.URL = f.databaseURL },
		"kafka-brokers":      func() { cfg.Kafka.Brokers = f.kafkaBrokers },
		"admin-token":        func() { cfg.AdminToken = f.adminToken },
		"cookie-domain":      func() { cfg.CookieDomain = f.cookieDomain },
	}
	fs.Visit(func(fl *pflag.Flag) {
		if apply, ok := overrides[fl.Name]; ok {
			apply()
		}
	})
	return cfg
}
