package audit

import (
	"context"
	"strings"
	"time"

	"sharedauth/internal/auth/models"
)

// Client carries request-scoped details attached to every event logged while
// serving one request.
type Client struct {
	IP        string
	UserAgent string
	RequestID string
}

type clientKey struct{}

// WithClient stores request details on ctx for the helpers below.
func WithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

func clientFrom(ctx context.Context) Client {
	c, _ := ctx.Value(clientKey{}).(Client)
	return c
}

func tokenEvent(ctx context.Context, t EventType, tok *models.EnrichedToken) Event {
	c := clientFrom(ctx)
	e := Event{
		Type:      t,
		IP:        c.IP,
		UserAgent: c.UserAgent,
		RequestID: c.RequestID,
	}
	if tok != nil {
		e.UserID = tok.SubjectID
		e.Email = tok.Email
		e.AppType = tok.AppType
		e.SessionID = tok.SessionID
	}
	return e
}

// SignIn records a successful sign-in.
func (r *Recorder) SignIn(ctx context.Context, tok *models.EnrichedToken, provider string) {
	e := tokenEvent(ctx, EventSignIn, tok)
	if provider != "" {
		e.Metadata = map[string]string{"provider": provider}
	}
	r.Log(ctx, e)
}

// SignOut records an explicit sign-out.
func (r *Recorder) SignOut(ctx context.Context, tok *models.EnrichedToken) {
	r.Log(ctx, tokenEvent(ctx, EventSignOut, tok))
}

// SessionCreated records the roles and permissions a new session starts with.
func (r *Recorder) SessionCreated(ctx context.Context, tok *models.EnrichedToken) {
	e := tokenEvent(ctx, EventSessionCreated, tok)
	if tok != nil {
		e.Metadata = map[string]string{
			"roles":       strings.Join(tok.Roles, ","),
			"permissions": strings.Join(tok.Permissions, ","),
		}
	}
	r.Log(ctx, e)
}

// SessionValidated records a successful cross-app validation.
func (r *Recorder) SessionValidated(ctx context.Context, tok *models.EnrichedToken, target models.AppType) {
	e := tokenEvent(ctx, EventSessionValidated, tok)
	e.Metadata = map[string]string{"target_app": string(target)}
	r.Log(ctx, e)
}

// TokenRefresh records a completed refresh.
func (r *Recorder) TokenRefresh(ctx context.Context, tok *models.EnrichedToken) {
	e := tokenEvent(ctx, EventTokenRefresh, tok)
	if tok != nil && tok.AccessTokenExpiresAt != nil {
		e.Metadata = map[string]string{"expires_at": tok.AccessTokenExpiresAt.UTC().Format(time.RFC3339)}
	}
	r.Log(ctx, e)
}

// AuthError records a failure. tok may be nil when no identity is known.
func (r *Recorder) AuthError(ctx context.Context, tok *models.EnrichedToken, app models.AppType, reason string, metadata map[string]string) {
	e := tokenEvent(ctx, EventAuthError, tok)
	if e.AppType == "" {
		e.AppType = app
	}
	e.Error = reason
	e.Metadata = mergeMetadata(map[string]string{"error_type": "authentication"}, metadata)
	r.Log(ctx, e)
}

// PermissionDenied records a failed required-role check.
func (r *Recorder) PermissionDenied(ctx context.Context, tok *models.EnrichedToken, target models.AppType, reason string) {
	e := tokenEvent(ctx, EventPermissionDenied, tok)
	e.Error = reason
	e.Metadata = map[string]string{"target_app": string(target)}
	r.Log(ctx, e)
}

// MigrationEvent records a migration state transition.
func (r *Recorder) MigrationEvent(ctx context.Context, name string, metadata map[string]string) {
	e := tokenEvent(ctx, EventMigration, nil)
	e.Metadata = mergeMetadata(map[string]string{"event_name": name}, metadata)
	r.Log(ctx, e)
}

func mergeMetadata(base, extra map[string]string) map[string]string {
	for k, v := range extra {
		base[k] = v
	}
	return base
}
