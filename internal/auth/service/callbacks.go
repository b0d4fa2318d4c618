package service

import (
	"context"
	"fmt"
	"strings"

	"sharedauth/internal/auth/models"
	"sharedauth/internal/migration"
)

func (s *Service) registerShims() {
	s.shims.JWTCallback.Register(
		func(in migration.JWTCallbackInput) bool { return !s.routeLegacy("jwt_callback", subjectOf(in.Token)) },
		s.legacy.JWTCallback,
		s.jwtCallback,
	)
	s.shims.SessionCallback.Register(
		func(in migration.SessionCallbackInput) bool {
			return !s.routeLegacy("session_callback", subjectOf(in.Token))
		},
		s.legacy.SessionCallback,
		s.sessionCallback,
	)
	s.shims.SignInCallback.Register(
		func(in migration.SignInInput) bool { return !s.routeLegacy("sign_in_callback", in.Identity.ID) },
		s.legacy.SignInCallback,
		s.signInCallback,
	)
	s.shims.SignInEvent.Register(
		func(in migration.SignInInput) bool { return !s.routeLegacy("sign_in_event", in.Identity.ID) },
		s.legacy.SignInEvent,
		s.signInEvent,
	)
	s.shims.SignOutEvent.Register(
		func(in migration.SignOutInput) bool { return !s.routeLegacy("sign_out_event", subjectOf(in.Token)) },
		s.legacy.SignOutEvent,
		s.signOutEvent,
	)
	s.shims.FallbackWhen(s.fallbackToLegacy)
}

// fallbackToLegacy reports whether a failing modern callback may be retried
// on the legacy path: only during a migration covering this app that still
// allows it.
func (s *Service) fallbackToLegacy() bool {
	return s.migration.IsInMigrationMode() && s.migration.Affects(s.cfg.App) && s.migration.ShouldFallbackToLegacy()
}

// routeLegacy decides whether a callback takes the legacy path. That needs an
// active migration covering this app, legacy compatibility kept by both the
// flag and the migration, and a user the gradual rollout has not reached yet.
func (s *Service) routeLegacy(shim, userID string) bool {
	if !s.migration.IsInMigrationMode() || !s.migration.Affects(s.cfg.App) {
		return false
	}
	if !s.migration.ShouldMaintainLegacyCompatibility() {
		return false
	}
	if !s.flags.For(s.evalContext(userID)).ShouldMaintainLegacyCompatibility() {
		return false
	}
	return !s.migration.ShouldUseNewFeature(shim, userID)
}

func subjectOf(tok *models.EnrichedToken) string {
	if tok == nil {
		return ""
	}
	return tok.SubjectID
}

func (s *Service) signInCallback(_ context.Context, in migration.SignInInput) (bool, error) {
	return in.Identity.ID != "", nil
}

func (s *Service) signInEvent(ctx context.Context, in migration.SignInInput) (struct{}, error) {
	if s.flags.For(s.evalContext(in.Identity.ID)).ShouldAuditLog() {
		tok := &models.EnrichedToken{SubjectID: in.Identity.ID, Email: in.Identity.Email, AppType: in.App}
		s.recorder.SignIn(ctx, tok, in.Provider)
	}
	s.logger.InfoContext(ctx, "user signed in", "user_id", in.Identity.ID, "app_type", in.App)
	return struct{}{}, nil
}

func (s *Service) signOutEvent(ctx context.Context, in migration.SignOutInput) (struct{}, error) {
	userID := subjectOf(in.Token)
	if s.flags.For(s.evalContext(userID)).ShouldAuditLog() {
		s.recorder.SignOut(ctx, in.Token)
	}
	s.logger.InfoContext(ctx, "user signed out", "user_id", userID, "app_type", in.App)
	return struct{}{}, nil
}

// jwtCallback enriches on the initial sign-in. On later requests it refreshes
// an expired token and re-enriches the refreshed one.
func (s *Service) jwtCallback(ctx context.Context, in migration.JWTCallbackInput) (*models.EnrichedToken, error) {
	tok := in.Token
	scoped := s.flags.For(s.evalContext(tok.SubjectID))

	if in.Identity != nil {
		if scoped.ShouldUseEnhancedJWT() {
			tok = s.enrich(ctx, tok, in.Identity)
		}
		if scoped.ShouldAuditLog() {
			s.recorder.SessionCreated(ctx, tok)
		}
		return tok, nil
	}

	if !tok.Usable() || !scoped.ShouldRefreshSessions() {
		return tok, nil
	}
	refreshed, err := s.tokens.GetOrRefresh(ctx, tok)
	if err != nil {
		return nil, err
	}
	if refreshed == tok || !refreshed.Usable() {
		return refreshed, nil
	}
	if scoped.ShouldUseEnhancedJWT() {
		refreshed = s.enrich(ctx, refreshed, nil)
	}
	return refreshed, nil
}

func (s *Service) enrich(ctx context.Context, tok *models.EnrichedToken, identity *models.Identity) *models.EnrichedToken {
	res := s.enricher.Enrich(ctx, tok, identity, s.cfg.App)
	if res.Degraded {
		s.logger.WarnContext(ctx, "continuing with unenriched token", "user_id", tok.SubjectID, "error", res.Err)
	}
	if res.Token == nil {
		return tok
	}
	return res.Token
}

// sessionCallback builds the UI session and runs cross-app validation when
// enabled. A token that already carries an error skips validation, and a token
// minted for another app is never accepted here.
func (s *Service) sessionCallback(ctx context.Context, in migration.SessionCallbackInput) (*models.EnrichedSession, error) {
	tok := in.Token
	session := buildSession(tok, in.Expires)
	if session.User.AppType == "" {
		session.User.AppType = in.App
	}
	if tok.Error.IsSet() {
		session.Reason = "token unusable: " + string(tok.Error)
		return session, nil
	}

	scoped := s.flags.For(s.evalContext(tok.SubjectID))
	if scoped.ShouldUseAdvancedMonitoring() {
		started := s.now()
		defer func() { s.observeSession(ctx, in.App, session, started) }()
	}
	audited := scoped.ShouldAuditLog()
	if tok.AppType.IsValid() && tok.AppType != in.App {
		session.Error = models.ErrorAppMismatch
		session.Reason = fmt.Sprintf("Token issued for %s presented to %s", tok.AppType, in.App)
		if audited {
			s.recorder.AuthError(ctx, tok, in.App, session.Reason, map[string]string{"error_kind": string(session.Error)})
		}
		return session, nil
	}
	if !scoped.ShouldValidateCrossApp() {
		return session, nil
	}

	required := in.Required
	if !scoped.ShouldUseRoleBasedAccess() {
		required = models.Requirements{}
	}
	res := s.validator.Validate(session, tok, in.App, required.Roles)
	if res.IsValid && len(required.Permissions) > 0 {
		if missing := session.User.MissingPermissions(required.Permissions); len(missing) > 0 {
			res = models.Invalid(models.ErrorInsufficientPerm, fmt.Sprintf(
				"Missing required permissions for %s: %s",
				in.App, strings.Join(missing, ", "),
			))
		}
	}
	if res.IsValid && s.remote != nil && tok.AccessToken != models.CredentialsAccessToken {
		res = s.remote.Validate(ctx, tok, in.App)
	}
	if res.IsValid {
		if audited {
			s.recorder.SessionValidated(ctx, tok, in.App)
		}
		return session, nil
	}

	kind := res.ErrorKind
	if !kind.IsSet() {
		kind = models.ErrorSessionValidation
	}
	session.Error = kind
	session.Reason = res.Reason
	if audited {
		switch kind {
		case models.ErrorInsufficientRole, models.ErrorInsufficientPerm:
			s.recorder.PermissionDenied(ctx, tok, in.App, res.Reason)
		default:
			s.recorder.AuthError(ctx, tok, in.App, "Cross-app validation failed: "+res.Reason, map[string]string{
				"source": string(res.Source),
			})
		}
	}
	return session, nil
}

// observeSession counts the outcome of one session callback and logs its
// detail at debug level.
func (s *Service) observeSession(ctx context.Context, app models.AppType, session *models.EnrichedSession, started time.Time) {
	outcome := "ok"
	if session.Error.IsSet() {
		outcome = string(session.Error)
	}
	s.metrics.IncrementSessionOutcome(string(app), outcome)
	s.logger.DebugContext(ctx, "session evaluated",
		"user_id", session.User.ID,
		"app_type", app,
		"outcome", outcome,
		"reason", session.Reason,
		"admin", session.User.IsAdmin(),
		"partner", session.User.IsPartner(),
		"duration_ms", s.now().Sub(started).Milliseconds(),
	)
}
