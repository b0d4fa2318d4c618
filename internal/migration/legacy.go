package migration

import (
	"context"
	"log/slog"

	"sharedauth/internal/auth/models"
	dErrors "sharedauth/pkg/domain-errors"
)

// Legacy holds the pre-migration callback behaviour: a single role string,
// no permissions and the raw provider tokens passed straight through.
type Legacy struct {
	logger *slog.Logger
}

func NewLegacy(logger *slog.Logger) *Legacy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Legacy{logger: logger}
}

func (l *Legacy) JWTCallback(_ context.Context, in JWTCallbackInput) (*models.EnrichedToken, error) {
	if in.Token == nil {
		return nil, dErrors.New(dErrors.CodeMissingSessionOrToken, "token is required")
	}
	out := in.Token.Clone()
	if in.Identity != nil {
		out.Email = in.Identity.Email
		out.DisplayName = in.Identity.DisplayName
		out.LegacyRole = in.Identity.RawRole
	}
	if out.LegacyRole == "" {
		out.LegacyRole = models.RoleUser
	}
	if in.Tokens != nil && in.Tokens.AccessToken != "" {
		out.AccessToken = in.Tokens.AccessToken
		if in.Tokens.RefreshToken != "" {
			rt := in.Tokens.RefreshToken
			out.RefreshToken = &rt
		}
	}
	return out, nil
}

func (l *Legacy) SessionCallback(_ context.Context, in SessionCallbackInput) (*models.EnrichedSession, error) {
	if in.Token == nil {
		return nil, dErrors.New(dErrors.CodeMissingSessionOrToken, "token is required")
	}
	role := in.Token.LegacyRole
	if role == "" {
		role = models.RoleUser
	}
	return &models.EnrichedSession{
		User: models.SessionUser{
			ID:          in.Token.SubjectID,
			Email:       in.Token.Email,
			Name:        in.Token.DisplayName,
			Role:        role,
			Roles:       []string{role},
			Permissions: []string{},
			AppType:     in.App,
			IsActive:    in.Token.IsActive,
			Metadata:    map[string]string{},
		},
		AccessToken: in.Token.AccessToken,
		Expires:     in.Expires,
		Error:       in.Token.Error,
	}, nil
}

func (l *Legacy) SignInCallback(context.Context, SignInInput) (bool, error) {
	return true, nil
}

func (l *Legacy) SignInEvent(ctx context.Context, in SignInInput) (struct{}, error) {
	l.logger.InfoContext(ctx, "legacy sign-in", "user_id", in.Identity.ID, "app_type", in.App)
	return struct{}{}, nil
}

func (l *Legacy) SignOutEvent(ctx context.Context, in SignOutInput) (struct{}, error) {
	userID := ""
	if in.Token != nil {
		userID = in.Token.SubjectID
	}
	l.logger.InfoContext(ctx, "legacy sign-out", "user_id", userID, "app_type", in.App)
	return struct{}{}, nil
}
