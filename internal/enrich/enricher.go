// Package enrich attaches roles, permissions and app scoping to a token.
//
// Roles come from the Identity Provider when it supplies them. Otherwise a
// RoleResolver fills them in. The source is stored on the token, so a later
// re-enrichment without an identity keeps provider roles and only recomputes
// permissions. A failed lookup degrades the request instead
// of failing it: the unenriched token is handed back and the validator stays
// the real gate.
package enrich

import (
	"context"
	"log/slog"
	"maps"
	"time"

	"sharedauth/internal/audit"
	"sharedauth/internal/auth/models"
	"sharedauth/internal/platform/metrics"
	dErrors "sharedauth/pkg/domain-errors"
	pstrings "sharedauth/pkg/platform/strings"
)

const (
	RoleSourceProvider = models.RoleSourceProvider
	RoleSourceFallback = models.RoleSourceFallback

	metadataLastLogin = "last_login_at"
)

// Result separates "enriched", "degraded but usable" and "failed".
// Token is always set when the input token was; on failure it is the input.
type Result struct {
	Token      *models.EnrichedToken
	RoleSource models.RoleSource
	Degraded   bool
	Err        error
}

type Enricher struct {
	resolver RoleResolver
	recorder *audit.Recorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Enricher)

// WithResolver replaces the default HeuristicResolver.
func WithResolver(r RoleResolver) Option {
	return func(e *Enricher) {
		e.resolver = r
	}
}

func WithRecorder(r *audit.Recorder) Option {
	return func(e *Enricher) {
		e.recorder = r
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Enricher) {
		e.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Enricher) {
		e.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Enricher) {
		e.now = now
	}
}

func New(opts ...Option) *Enricher {
	e := &Enricher{
		resolver: HeuristicResolver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Enrich returns a copy of tok scoped to app with roles and permissions set.
// identity may be nil on later requests, when only the token is known.
func (e *Enricher) Enrich(ctx context.Context, tok *models.EnrichedToken, identity *models.Identity, app models.AppType) Result {
	if tok == nil {
		return Result{Err: dErrors.New(dErrors.CodeMissingSessionOrToken, "token is required")}
	}
	if !app.IsValid() {
		return e.degrade(ctx, tok, app, dErrors.New(dErrors.CodeInvalidInput, "unknown app type: "+string(app)))
	}
	if identity != nil && identity.ID != "" && identity.ID != tok.SubjectID {
		return e.degrade(ctx, tok, app, dErrors.New(dErrors.CodeIdentityMismatch, "identity does not match token subject"))
	}

	var (
		roles  []string
		source models.RoleSource
	)
	switch {
	case identity.HasAuthoritativeRoles():
		roles = pstrings.DedupeAndTrimLower(identity.Roles)
		source = RoleSourceProvider
	case identity == nil && tok.RoleSource == RoleSourceProvider:
		roles = pstrings.DedupeAndTrimLower(tok.Roles)
		source = RoleSourceProvider
	default:
		resolved, err := e.resolver.Resolve(ctx, Subject{ID: tok.SubjectID, Email: tok.Email}, app)
		if err != nil {
			return e.degrade(ctx, tok, app, dErrors.Wrap(err, dErrors.CodeInternal, "role lookup failed"))
		}
		roles = pstrings.DedupeAndTrimLower(resolved)
		source = RoleSourceFallback
	}
	if roles == nil {
		roles = []string{}
	}

	now := e.now()
	out := tok.Clone()
	out.Roles = roles
	out.RoleSource = source
	out.Permissions = Permissions(roles, app)
	out.AppType = app
	out.IsActive = true
	out.LastRefreshAt = now
	out.LegacyRole = PrimaryRole(roles)
	if identity != nil {
		if identity.RawRole != "" {
			out.LegacyRole = identity.RawRole
		}
		if out.DisplayName == "" {
			out.DisplayName = identity.DisplayName
		}
	}
	meta := maps.Clone(out.Metadata)
	if meta == nil {
		meta = make(map[string]string, 1)
	}
	meta[metadataLastLogin] = now.UTC().Format(time.RFC3339)
	out.Metadata = meta

	e.logger.DebugContext(ctx, "token enriched",
		"user_id", tok.SubjectID,
		"app_type", app,
		"role_source", source,
		"roles", roles,
	)
	return Result{Token: out, RoleSource: source}
}

func (e *Enricher) degrade(ctx context.Context, tok *models.EnrichedToken, app models.AppType, err error) Result {
	e.logger.WarnContext(ctx, "token enrichment degraded",
		"user_id", tok.SubjectID,
		"app_type", app,
		"error", err,
	)
	e.recorder.AuthError(ctx, tok, app, "role enrichment failed", map[string]string{
		"code": string(dErrors.CodeOf(err)),
	})
	e.metrics.IncrementEnrichmentDegraded()
	return Result{Token: tok, Degraded: true, Err: err}
}
