// Package validation decides whether a session/token pair is authorized for a
// target application. Decisions are never cached: every call looks at the
// session and token presented.
package validation

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"sharedauth/internal/auth/models"
	"sharedauth/internal/platform/metrics"
)

// Reasons other packages and callers match on. Keep them stable.
const (
	ReasonMissing          = "Missing session or token"
	ReasonTokenExpired     = "Token expired"
	ReasonSessionExpired   = "Session expired"
	ReasonIdentityMismatch = "User ID mismatch between session and token"
)

type Validator struct {
	now       func() time.Time
	hierarchy bool
	metrics   *metrics.Metrics
	logger    *slog.Logger
	parser    *jwt.Parser
}

type Option func(*Validator)

// WithRoleHierarchy lets admin and super_admin satisfy any role requirement.
// Off by default: a requirement passes only when the user holds one of the
// listed roles.
func WithRoleHierarchy() Option {
	return func(v *Validator) {
		v.hierarchy = true
	}
}

func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Validator) {
		v.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

func New(opts ...Option) *Validator {
	v := &Validator{
		now:    time.Now,
		parser: jwt.NewParser(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		v.logger = slog.Default()
	}
	return v
}

// Validate runs the checks in order and stops at the first failure:
// presence, token expiry, session expiry, identity, token error, roles.
func (v *Validator) Validate(session *models.EnrichedSession, tok *models.EnrichedToken, target models.AppType, requiredRoles []string) models.ValidationResult {
	res := v.validate(session, tok, target, requiredRoles)
	v.metrics.IncrementValidation(string(target), res.IsValid)
	if !res.IsValid {
		v.logger.Debug("session validation failed",
			"target_app", target,
			"error_kind", res.ErrorKind,
			"reason", res.Reason,
		)
	}
	return res
}

func (v *Validator) validate(session *models.EnrichedSession, tok *models.EnrichedToken, target models.AppType, requiredRoles []string) models.ValidationResult {
	if session == nil || tok == nil {
		return models.Invalid(models.ErrorMissingSessionOrToken, ReasonMissing)
	}

	now := v.now()
	if v.tokenExpired(tok, now) {
		res := models.Invalid(models.ErrorTokenExpired, ReasonTokenExpired)
		res.ShouldRefresh = true
		return res
	}
	if !session.Expires.IsZero() && !now.Before(session.Expires) {
		res := models.Invalid(models.ErrorSessionExpired, ReasonSessionExpired)
		res.ShouldRefresh = true
		return res
	}

	if session.User.ID != tok.SubjectID {
		return models.Invalid(models.ErrorIdentityMismatch, ReasonIdentityMismatch)
	}

	if kind := unusable(session, tok); kind.IsSet() {
		return models.Invalid(kind, "Token unusable: "+string(kind))
	}

	if len(requiredRoles) > 0 {
		held := session.User.Roles
		if held == nil {
			held = tok.Roles
		}
		if !v.satisfies(held, requiredRoles) {
			return models.Invalid(models.ErrorInsufficientRole, fmt.Sprintf(
				"Missing required roles for %s: %s. User has: %s",
				target, strings.Join(requiredRoles, ", "), strings.Join(held, ", "),
			))
		}
	}

	return models.Valid()
}

// tokenExpired checks AccessTokenExpiresAt and, for JWT access tokens, the
// exp claim. The JWT is parsed without verification; exp only ever makes a
// token less valid.
func (v *Validator) tokenExpired(tok *models.EnrichedToken, now time.Time) bool {
	if tok.AccessTokenExpiresAt != nil && !now.Before(*tok.AccessTokenExpiresAt) {
		return true
	}
	if strings.Count(tok.AccessToken, ".") != 2 {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := v.parser.ParseUnverified(tok.AccessToken, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}

func unusable(session *models.EnrichedSession, tok *models.EnrichedToken) models.ErrorKind {
	if tok.Error.IsSet() {
		return tok.Error
	}
	return session.Error
}

// satisfies reports whether held intersects required.
func (v *Validator) satisfies(held, required []string) bool {
	if v.hierarchy && (slices.Contains(held, models.RoleAdmin) || slices.Contains(held, models.RoleSuperAdmin)) {
		return true
	}
	for _, r := range required {
		if slices.Contains(held, strings.ToLower(strings.TrimSpace(r))) {
			return true
		}
	}
	return false
}
