// Package service wires the shared-auth components into the four callbacks an
// application needs: sign-in, resuming a token on later requests, building the
// session handed to the UI, and sign-out. One Service serves one application.
package service

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"time"

	"sharedauth/internal/audit"
	"sharedauth/internal/auth/models"
	"sharedauth/internal/enrich"
	"sharedauth/internal/features"
	"sharedauth/internal/migration"
	"sharedauth/internal/platform/metrics"
	dErrors "sharedauth/pkg/domain-errors"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks TokenManager,Enricher,SessionValidator,RemoteValidator

// TokenManager issues and refreshes tokens. *token.Manager satisfies it.
type TokenManager interface {
	Issue(ctx context.Context, identity models.Identity, app models.AppType, tokens *models.ProviderTokens) (*models.EnrichedToken, error)
	GetOrRefresh(ctx context.Context, tok *models.EnrichedToken) (*models.EnrichedToken, error)
}

// Enricher attaches roles and permissions. *enrich.Enricher satisfies it.
type Enricher interface {
	Enrich(ctx context.Context, tok *models.EnrichedToken, identity *models.Identity, app models.AppType) enrich.Result
}

// SessionValidator is the local cross-app check. *validation.Validator satisfies it.
type SessionValidator interface {
	Validate(session *models.EnrichedSession, tok *models.EnrichedToken, target models.AppType, requiredRoles []string) models.ValidationResult
}

// RemoteValidator confirms a token with the Identity Provider.
// *validation.RemoteValidator satisfies it.
type RemoteValidator interface {
	Validate(ctx context.Context, tok *models.EnrichedToken, target models.AppType) models.ValidationResult
}

const defaultSessionMaxAge = 30 * 24 * time.Hour

type Config struct {
	App          models.AppType
	Env          string
	Production   bool
	CookieDomain string
	// SessionMaxAge bounds the session handed to the UI. Defaults to 30 days.
	SessionMaxAge time.Duration
	// RequiredRoles applies when a Session call passes none.
	RequiredRoles []string
}

type Service struct {
	cfg       Config
	flags     *features.Engine
	tokens    TokenManager
	enricher  Enricher
	validator SessionValidator
	remote    RemoteValidator
	migration *migration.State
	shims     *migration.Shims
	legacy    *migration.Legacy
	recorder  *audit.Recorder
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithRecorder(r *audit.Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithRemoteValidator adds a provider round trip after a passing local check.
func WithRemoteValidator(r RemoteValidator) Option {
	return func(s *Service) {
		s.remote = r
	}
}

// WithMigration shares the process-wide migration state with this service.
func WithMigration(state *migration.State) Option {
	return func(s *Service) {
		s.migration = state
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(cfg Config, flags *features.Engine, tokens TokenManager, enricher Enricher, validator SessionValidator, opts ...Option) (*Service, error) {
	if !cfg.App.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown app type: "+string(cfg.App))
	}
	if flags == nil || tokens == nil || enricher == nil || validator == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "flags, tokens, enricher and validator are required")
	}
	if cfg.SessionMaxAge <= 0 {
		cfg.SessionMaxAge = defaultSessionMaxAge
	}

	s := &Service{
		cfg:       cfg,
		flags:     flags,
		tokens:    tokens,
		enricher:  enricher,
		validator: validator,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.migration == nil {
		s.migration = migration.NewState(false, migration.WithRecorder(s.recorder), migration.WithLogger(s.logger))
	}
	s.legacy = migration.NewLegacy(s.logger)
	s.shims = migration.NewShims(s.metrics)
	s.registerShims()
	return s, nil
}

// App returns the application this service serves.
func (s *Service) App() models.AppType {
	return s.cfg.App
}

// Shims exposes the callback shims, mainly for status endpoints.
func (s *Service) Shims() *migration.Shims {
	return s.shims
}

// SessionMaxAge is how long a session and its cookie live.
func (s *Service) SessionMaxAge() time.Duration {
	return s.cfg.SessionMaxAge
}

func (s *Service) evalContext(userID string) models.EvaluationContext {
	return models.EvaluationContext{Env: s.cfg.Env, AppType: s.cfg.App, UserID: userID}
}

// SignIn runs the initial sign-in: the sign-in gate, token issue, the token
// callback (enrichment) and the sign-in event.
func (s *Service) SignIn(ctx context.Context, identity models.Identity, providerName string, tokens *models.ProviderTokens) (*models.EnrichedToken, error) {
	in := migration.SignInInput{Identity: identity, Provider: providerName, App: s.cfg.App}

	allowed, err := s.shims.SignInCallback.Execute(ctx, in)
	if err != nil {
		s.authFailure(ctx, nil, "sign-in callback failed", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "sign-in callback failed")
	}
	if !allowed {
		s.authFailure(ctx, nil, "sign-in denied", nil)
		return nil, dErrors.New(dErrors.CodeSignInDenied, "sign-in denied")
	}

	tok, err := s.tokens.Issue(ctx, identity, s.cfg.App, tokens)
	if err != nil {
		s.authFailure(ctx, nil, "token issue failed", err)
		return nil, err
	}

	tok = s.runJWTCallback(ctx, migration.JWTCallbackInput{
		Token:    tok,
		Identity: &identity,
		Tokens:   tokens,
		App:      s.cfg.App,
	})

	if _, err := s.shims.SignInEvent.Execute(ctx, in); err != nil {
		s.authFailure(ctx, tok, "sign-in event failed", err)
	}
	return tok, nil
}

// Resume runs the token callback for a later request: refresh when expired,
// re-enrich after a refresh. Failures come back as an Error on the token.
func (s *Service) Resume(ctx context.Context, tok *models.EnrichedToken) (*models.EnrichedToken, error) {
	if tok == nil {
		return nil, dErrors.New(dErrors.CodeMissingSessionOrToken, "token is required")
	}
	return s.runJWTCallback(ctx, migration.JWTCallbackInput{Token: tok, App: s.cfg.App}), nil
}

// Session builds the session handed to the UI and, when enabled, validates it
// for this application. required.Roles falls back to the configured roles.
// Any failure is reported on the session's Error.
func (s *Service) Session(ctx context.Context, tok *models.EnrichedToken, required models.Requirements) (*models.EnrichedSession, error) {
	if tok == nil {
		return nil, dErrors.New(dErrors.CodeMissingSessionOrToken, "token is required")
	}
	if len(required.Roles) == 0 {
		required.Roles = s.cfg.RequiredRoles
	}
	in := migration.SessionCallbackInput{
		Token:    tok,
		App:      s.cfg.App,
		Required: required,
		Expires:  s.now().Add(s.cfg.SessionMaxAge),
	}

	session, err := s.shims.SessionCallback.Execute(ctx, in)
	if err != nil {
		s.authFailure(ctx, tok, "session callback failed", err)
		session = buildSession(tok, in.Expires)
		session.Error = models.ErrorCallbackFailed
		session.Reason = err.Error()
	}
	return session, nil
}

// SignOut runs the sign-out event. tok may be nil when the cookie was
// already gone.
func (s *Service) SignOut(ctx context.Context, tok *models.EnrichedToken) error {
	if _, err := s.shims.SignOutEvent.Execute(ctx, migration.SignOutInput{Token: tok, App: s.cfg.App}); err != nil {
		s.authFailure(ctx, tok, "sign-out event failed", err)
		return dErrors.Wrap(err, dErrors.CodeInternal, "sign-out event failed")
	}
	return nil
}

func (s *Service) runJWTCallback(ctx context.Context, in migration.JWTCallbackInput) *models.EnrichedToken {
	out, err := s.shims.JWTCallback.Execute(ctx, in)
	if err != nil || out == nil {
		s.authFailure(ctx, in.Token, "token callback failed", err)
		return in.Token.WithError(models.ErrorCallbackFailed)
	}
	return out
}

func buildSession(tok *models.EnrichedToken, expires time.Time) *models.EnrichedSession {
	roles := slices.Clone(tok.Roles)
	if roles == nil {
		roles = []string{}
	}
	perms := slices.Clone(tok.Permissions)
	if perms == nil {
		perms = []string{}
	}
	meta := maps.Clone(tok.Metadata)
	if meta == nil {
		meta = map[string]string{}
	}
	return &models.EnrichedSession{
		User: models.SessionUser{
			ID:          tok.SubjectID,
			Email:       tok.Email,
			Name:        tok.DisplayName,
			Role:        tok.LegacyRole,
			Roles:       roles,
			Permissions: perms,
			AppType:     tok.AppType,
			IsActive:    tok.IsActive,
			Metadata:    meta,
		},
		AccessToken: tok.AccessToken,
		Expires:     expires,
		Error:       tok.Error,
	}
}
