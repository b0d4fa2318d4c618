package httptransport

import (
	"net/http"
	"strings"

	"sharedauth/internal/auth/models"
	"sharedauth/internal/platform/middleware"
	dErrors "sharedauth/pkg/domain-errors"
	"sharedauth/pkg/platform/httputil"
	strutil "sharedauth/pkg/platform/strings"
)

// handleSession resumes the caller's token (refreshing it when expired),
// writes the updated cookie and returns the session for the app in the path.
// A session that fails validation is still returned with its error set; the
// UI is expected to send the user back through sign-in.
func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	svc, ok := h.serviceFor(r)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "unknown application"))
		return
	}

	tok, err := middleware.SessionFrom(ctx)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeSessionExpired) {
			h.clearCookies(w, svc)
		}
		httputil.WriteError(w, err)
		return
	}

	tok, err = svc.Resume(ctx, tok)
	if err != nil {
		h.logger.WarnContext(ctx, "resume failed", "request_id", requestID, "app_type", svc.App(), "error", err)
		httputil.WriteError(w, err)
		return
	}
	if err := h.writeSessionCookie(w, svc, tok); err != nil {
		h.logger.ErrorContext(ctx, "failed to write session cookie", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	q := r.URL.Query()
	session, err := svc.Session(ctx, tok, models.Requirements{
		Roles:       parseList(q.Get("required_roles")),
		Permissions: parseList(q.Get("required_permissions")),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if session.Error.IsSet() {
		h.logger.InfoContext(ctx, "session not valid for app",
			"request_id", requestID,
			"app_type", svc.App(),
			"user_id", session.User.ID,
			"error_kind", session.Error,
			"reason", session.Reason,
		)
	}
	httputil.WriteJSON(w, http.StatusOK, session)
}

// handleSignOut runs the sign-out event and clears the app's cookies. A
// missing or unreadable cookie still signs out.
func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	svc, ok := h.serviceFor(r)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "unknown application"))
		return
	}

	tok, _ := middleware.SessionFrom(ctx)
	if err := svc.SignOut(ctx, tok); err != nil {
		h.logger.WarnContext(ctx, "sign-out event failed",
			"request_id", middleware.GetRequestID(ctx),
			"app_type", svc.App(),
			"error", err,
		)
	}
	h.clearCookies(w, svc)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeSessionCookie(w http.ResponseWriter, svc SessionService, tok *models.EnrichedToken) error {
	value, err := h.codec.Encode(tok)
	if err != nil {
		return err
	}
	cfg := svc.CookieConfig()
	http.SetCookie(w, cfg.Options.Cookie(cfg.Names.SessionToken, value, int(svc.SessionMaxAge().Seconds())))
	return nil
}

func (h *Handler) clearCookies(w http.ResponseWriter, svc SessionService) {
	cfg := svc.CookieConfig()
	for _, name := range []string{cfg.Names.SessionToken, cfg.Names.CSRFToken, cfg.Names.CallbackURL} {
		http.SetCookie(w, cfg.Options.Cookie(name, "", -1))
	}
}

// parseList reads a comma separated role or permission list.
func parseList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strutil.DedupeAndTrimLower(strings.Split(raw, ","))
}
