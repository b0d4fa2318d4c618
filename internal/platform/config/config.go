package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"sharedauth/internal/auth/models"
)

// Config captures process level configuration for the shared-auth service.
type Config struct {
	Addr     string
	Env      string
	LogLevel string

	// Identity Provider / token service.
	APIURL          string
	Secret          string
	ProviderTimeout time.Duration
	RefreshRate     float64

	AppURLs map[models.AppType]string

	MigrationMode bool

	FeatureFlagsFile string
	FeatureFlagsTTL  time.Duration

	CookieDomain  string
	SessionMaxAge time.Duration

	// AdminToken guards /admin. Empty locks the operator routes.
	AdminToken string
	// TrustedProxies is a comma separated CIDR list whose forwarding headers are honoured.
	TrustedProxies string

	Redis    RedisConfig
	Database DatabaseConfig
	Kafka    KafkaConfig
}

// RedisConfig holds Redis connection settings. An empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// ConnectAttempts is how many times startup pings Redis before giving up.
	ConnectAttempts int
}

// DatabaseConfig holds Postgres settings for the audit store. An empty URL disables it.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// KafkaConfig holds the audit stream settings. Empty brokers disables it.
type KafkaConfig struct {
	Brokers    string
	AuditTopic string
	Acks       string
}

const (
	defaultAddr            = ":8080"
	defaultEnv             = "development"
	defaultProviderTimeout = 5 * time.Second
	defaultRefreshRate     = 50
	defaultFlagsTTL        = 30 * time.Second
	defaultSessionMaxAge   = 30 * 24 * time.Hour
	devSecret              = "dev-secret-key-change-in-production"
)

// IsProduction reports whether secure cookie defaults apply.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// FromEnv builds a Config from environment variables so main stays lean.
// Names follow the original deployment (AUTH_MIGRATION_MODE, NEXTAUTH_SECRET, ...).
func FromEnv() Config {
	secret := firstNonEmpty(os.Getenv("AUTH_SECRET"), os.Getenv("NEXTAUTH_SECRET"))
	if secret == "" {
		// Use a default for development - should be overridden in production
		secret = devSecret
	}

	return Config{
		Addr:     envOr("SHARED_AUTH_ADDR", defaultAddr),
		Env:      firstNonEmpty(os.Getenv("APP_ENV"), os.Getenv("NODE_ENV"), defaultEnv),
		LogLevel: envOr("LOG_LEVEL", "info"),

		APIURL:          strings.TrimRight(firstNonEmpty(os.Getenv("AUTH_API_URL"), os.Getenv("NEXT_PUBLIC_API_URL"), "http://localhost:3001"), "/"),
		Secret:          secret,
		ProviderTimeout: durationOr("AUTH_PROVIDER_TIMEOUT", defaultProviderTimeout),
		RefreshRate:     floatOr("AUTH_REFRESH_RATE", defaultRefreshRate),

		AppURLs: map[models.AppType]string{
			models.AppFrontend: os.Getenv("FRONTEND_URL"),
			models.AppPartner:  os.Getenv("PARTNER_URL"),
			models.AppAdmin:    os.Getenv("ADMIN_URL"),
		},

		MigrationMode: os.Getenv("AUTH_MIGRATION_MODE") == "true",

		FeatureFlagsFile: os.Getenv("FEATURE_FLAGS_FILE"),
		FeatureFlagsTTL:  durationOr("FEATURE_FLAGS_TTL", defaultFlagsTTL),

		CookieDomain:  os.Getenv("COOKIE_DOMAIN"),
		SessionMaxAge: durationOr("SESSION_MAX_AGE", defaultSessionMaxAge),

		AdminToken:     os.Getenv("SHARED_AUTH_ADMIN_TOKEN"),
		TrustedProxies: os.Getenv("TRUSTED_PROXIES"),

		Redis: RedisConfig{
			URL:             os.Getenv("REDIS_URL"),
			PoolSize:        intOr("REDIS_POOL_SIZE", 10),
			MinIdleConns:    intOr("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:     durationOr("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:     durationOr("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:    durationOr("REDIS_WRITE_TIMEOUT", 3*time.Second),
			ConnectAttempts: intOr("REDIS_CONNECT_ATTEMPTS", 3),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    intOr("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    intOr("DATABASE_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: durationOr("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			PingTimeout:     durationOr("DATABASE_PING_TIMEOUT", 5*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    os.Getenv("KAFKA_BROKERS"),
			AuditTopic: envOr("AUDIT_TOPIC", "shared-auth.audit"),
			Acks:       envOr("KAFKA_ACKS", "all"),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func durationOr(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func intOr(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return fallback
}

func floatOr(key string, fallback float64) float64 {
	if raw := os.Getenv(key); raw != "" {
		if f, err := strconv.ParseFloat(raw, 64); err == nil && f > 0 {
			return f
		}
	}
	return fallback
}
