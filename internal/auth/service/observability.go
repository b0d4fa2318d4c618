package service

import (
	"context"

	"sharedauth/internal/auth/models"
)

// authFailure logs a callback failure and records it as an auth_error event
// when audit logging is on for the user.
func (s *Service) authFailure(ctx context.Context, tok *models.EnrichedToken, reason string, err error) {
	userID := subjectOf(tok)
	s.logger.WarnContext(ctx, reason,
		"app_type", s.cfg.App,
		"user_id", userID,
		"error", err,
	)
	if !s.flags.For(s.evalContext(userID)).ShouldAuditLog() {
		return
	}
	var meta map[string]string
	if err != nil {
		meta = map[string]string{"cause": err.Error()}
	}
	s.recorder.AuthError(ctx, tok, s.cfg.App, reason, meta)
}
