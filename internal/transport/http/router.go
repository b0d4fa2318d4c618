package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sharedauth/internal/audit"
	"sharedauth/internal/auth/models"
	"sharedauth/internal/auth/service"
	"sharedauth/internal/features"
	"sharedauth/internal/migration"
	"sharedauth/internal/platform/health"
	"sharedauth/internal/platform/metrics"
	"sharedauth/internal/platform/middleware"
)

const (
	defaultRequestTimeout = 30 * time.Second
	maxBodyBytes          = 1 << 20
)

// SessionService is one application's auth service. *service.Service satisfies it.
type SessionService interface {
	App() models.AppType
	Resume(ctx context.Context, tok *models.EnrichedToken) (*models.EnrichedToken, error)
	Session(ctx context.Context, tok *models.EnrichedToken, required models.Requirements) (*models.EnrichedSession, error)
	SignOut(ctx context.Context, tok *models.EnrichedToken) error
	CookieConfig() service.CookieConfig
	SessionMaxAge() time.Duration
	Shims() *migration.Shims
}

// TokenCodec reads and writes the session cookie value. *tokencodec.Codec satisfies it.
type TokenCodec interface {
	Encode(tok *models.EnrichedToken) (string, error)
	Decode(raw string, app models.AppType) (*models.EnrichedToken, error)
}

// AuditReader lists stored audit events for a user.
type AuditReader interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]audit.Event, error)
}

// FlagPublisher shares a runtime flag patch with other processes.
type FlagPublisher func(ctx context.Context, env string, key features.Key, patch features.Patch) error

type Config struct {
	Env            string
	AdminToken     string
	TrustedProxies []netip.Prefix
	RequestTimeout time.Duration
}

// Handler is the thin HTTP layer. It delegates to the per-app services and the
// shared flag engine and migration state without embedding business logic.
type Handler struct {
	cfg       Config
	codec     TokenCodec
	flags     *features.Engine
	migration *migration.State
	services  map[models.AppType]SessionService

	recorder *audit.Recorder
	auditLog AuditReader
	publish  FlagPublisher
	health   *health.Handler
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

type Option func(*Handler)

// WithService mounts svc under /v1/{app}.
func WithService(svc SessionService) Option {
	return func(h *Handler) {
		h.services[svc.App()] = svc
	}
}

func WithRecorder(r *audit.Recorder) Option {
	return func(h *Handler) {
		h.recorder = r
	}
}

func WithAuditReader(r AuditReader) Option {
	return func(h *Handler) {
		h.auditLog = r
	}
}

func WithFlagPublisher(p FlagPublisher) Option {
	return func(h *Handler) {
		h.publish = p
	}
}

func WithHealth(hh *health.Handler) Option {
	return func(h *Handler) {
		h.health = hh
	}
}

// WithMetrics records request latency into m and serves gatherer on /metrics.
func WithMetrics(m *metrics.Metrics, gatherer prometheus.Gatherer) Option {
	return func(h *Handler) {
		h.metrics = m
		h.gatherer = gatherer
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

func NewHandler(cfg Config, codec TokenCodec, flags *features.Engine, state *migration.State, opts ...Option) *Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	h := &Handler{
		cfg:       cfg,
		codec:     codec,
		flags:     flags,
		migration: state,
		services:  make(map[models.AppType]SessionService),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.health == nil {
		h.health = health.New(cfg.Env)
	}
	if h.gatherer == nil {
		h.gatherer = prometheus.DefaultGatherer
	}
	return h
}

// NewRouter wires the public session routes, the operator routes and the probes.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientMetadata(h.cfg.TrustedProxies))
	r.Use(middleware.Logger(h.logger))
	r.Use(middleware.Latency(h.metrics))
	r.Use(middleware.Timeout(h.cfg.RequestTimeout))
	r.Use(middleware.BodyLimit(maxBodyBytes))
	r.Use(middleware.ContentTypeJSON)

	h.health.Register(r)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1/{app}", func(r chi.Router) {
		r.Use(middleware.LoadSession(h.codec, h.sessionCookieName, h.logger))
		r.Post("/session", h.handleSession)
		r.Post("/signout", h.handleSignOut)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireAdminToken(h.cfg.AdminToken, h.logger))

		r.Get("/flags", h.handleListFlags)
		r.Put("/flags/{key}", h.handlePatchFlag)
		r.Post("/flags/reset", h.handleResetFlags)

		r.Get("/migration", h.handleMigrationStatus)
		r.Post("/migration/start", h.handleMigrationStart)
		r.Post("/migration/phase", h.handleMigrationPhase)
		r.Post("/migration/rollout", h.handleMigrationRollout)
		r.Post("/migration/rollback", h.handleMigrationRollback)
		r.Post("/migration/complete", h.handleMigrationComplete)

		r.Get("/audit/metrics", h.handleAuditMetrics)
		r.Get("/audit/events", h.handleAuditEvents)
	})

	return r
}

func (h *Handler) serviceFor(r *http.Request) (SessionService, bool) {
	app, err := models.ParseAppType(chi.URLParam(r, "app"))
	if err != nil {
		return nil, false
	}
	svc, ok := h.services[app]
	return svc, ok
}

func (h *Handler) sessionCookieName(r *http.Request) (string, models.AppType, bool) {
	svc, ok := h.serviceFor(r)
	if !ok {
		return "", "", false
	}
	return svc.CookieConfig().Names.SessionToken, svc.App(), true
}
