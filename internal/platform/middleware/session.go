package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"sharedauth/internal/auth/models"
	dErrors "sharedauth/pkg/domain-errors"
)

// TokenDecoder turns a session cookie value of app back into a token.
type TokenDecoder interface {
	Decode(raw string, app models.AppType) (*models.EnrichedToken, error)
}

// CookieNamer resolves the session cookie name and owning app for a request.
// ok is false when the request targets no known application.
type CookieNamer func(r *http.Request) (name string, app models.AppType, ok bool)

type sessionKey struct{}

type loadedSession struct {
	token *models.EnrichedToken
	err   error
}

// LoadSession decodes the session cookie and stores the outcome on the
// context. It never rejects the request; handlers decide what a missing or
// unreadable cookie means through SessionFrom.
func LoadSession(decoder TokenDecoder, cookieName CookieNamer, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			loaded := loadedSession{err: dErrors.New(dErrors.CodeMissingSessionOrToken, "no session cookie")}

			if name, app, ok := cookieName(r); ok {
				if cookie, err := r.Cookie(name); err == nil && cookie.Value != "" {
					tok, err := decoder.Decode(cookie.Value, app)
					if err != nil {
						logger.InfoContext(ctx, "session cookie rejected",
							"request_id", GetRequestID(ctx),
							"cookie", name,
							"error", err,
						)
					}
					loaded = loadedSession{token: tok, err: err}
				}
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, sessionKey{}, loaded)))
		})
	}
}

// SessionFrom returns the token decoded by LoadSession, or the reason there is none.
func SessionFrom(ctx context.Context) (*models.EnrichedToken, error) {
	loaded, ok := ctx.Value(sessionKey{}).(loadedSession)
	if !ok {
		return nil, dErrors.New(dErrors.CodeMissingSessionOrToken, "session not loaded")
	}
	return loaded.token, loaded.err
}
