package httptransport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"sharedauth/internal/audit"
	"sharedauth/internal/auth/models"
	"sharedauth/internal/features"
	"sharedauth/internal/migration"
	"sharedauth/internal/platform/middleware"
	dErrors "sharedauth/pkg/domain-errors"
	"sharedauth/pkg/platform/httputil"
)

const (
	defaultAuditEventLimit = 50
	maxAuditEventLimit     = 500
)

type flagView struct {
	features.Flag
	Active bool `json:"active"`
}

type flagsResponse struct {
	Env   string     `json:"env"`
	Flags []flagView `json:"flags"`
}

// handleListFlags resolves every flag for the optional app and user query
// parameters, reporting both the definition and whether it is active.
func (h *Handler) handleListFlags(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ec := models.EvaluationContext{Env: h.cfg.Env, UserID: q.Get("user")}
	if raw := q.Get("app"); raw != "" {
		app, err := models.ParseAppType(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, err.Error()))
			return
		}
		ec.AppType = app
	}

	resolved := h.flags.Flags(ec)
	views := make([]flagView, 0, len(resolved))
	for _, f := range resolved {
		views = append(views, flagView{Flag: f, Active: h.flags.IsEnabled(f.Key, ec)})
	}
	httputil.WriteJSON(w, http.StatusOK, flagsResponse{Env: h.cfg.Env, Flags: views})
}

// handlePatchFlag applies a runtime override to one flag and, when a
// publisher is configured, shares it with the other instances.
func (h *Handler) handlePatchFlag(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	key := features.Key(chi.URLParam(r, "key"))

	patch, ok := httputil.DecodeJSON[features.Patch](w, r, h.logger, requestID)
	if !ok {
		return
	}
	if _, known := h.flags.Resolve(key, models.EvaluationContext{Env: h.cfg.Env}); !known {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "unknown flag: "+string(key)))
		return
	}
	if err := h.flags.Update(key, *patch); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if h.publish != nil {
		if err := h.publish(ctx, h.cfg.Env, key, *patch); err != nil {
			h.logger.WarnContext(ctx, "failed to publish flag override",
				"request_id", requestID,
				"flag", key,
				"error", err,
			)
		}
	}

	h.logger.InfoContext(ctx, "feature flag updated",
		"request_id", requestID,
		"flag", key,
		"actor", middleware.GetAdminActorID(ctx),
	)
	flag, _ := h.flags.Resolve(key, models.EvaluationContext{Env: h.cfg.Env})
	httputil.WriteJSON(w, http.StatusOK, flag)
}

func (h *Handler) handleResetFlags(w http.ResponseWriter, r *http.Request) {
	h.flags.Reset()
	h.logger.InfoContext(r.Context(), "feature flag overrides reset",
		"request_id", middleware.GetRequestID(r.Context()),
		"actor", middleware.GetAdminActorID(r.Context()),
	)
	w.WriteHeader(http.StatusNoContent)
}

type migrationResponse struct {
	migration.Status
	Shims []string `json:"shims"`
}

func (h *Handler) migrationStatus() migrationResponse {
	resp := migrationResponse{Status: h.migration.Status(), Shims: []string{}}
	for _, app := range models.AppTypes {
		if svc, ok := h.services[app]; ok {
			resp.Shims = svc.Shims().Names()
			break
		}
	}
	return resp
}

func (h *Handler) handleMigrationStatus(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.migrationStatus())
}

type startMigrationRequest struct {
	RolloutPercentage int              `json:"rolloutPercentage"`
	LegacySupport     *bool            `json:"legacySupport"`
	FallbackToLegacy  *bool            `json:"fallbackToLegacy"`
	RollbackEnabled   *bool            `json:"rollbackEnabled"`
	AffectedApps      []models.AppType `json:"affectedApps"`
}

func (req *startMigrationRequest) config() migration.Config {
	cfg := migration.DefaultConfig()
	cfg.RolloutPercentage = req.RolloutPercentage
	cfg.AffectedApps = req.AffectedApps
	if req.LegacySupport != nil {
		cfg.LegacySupport = *req.LegacySupport
	}
	if req.FallbackToLegacy != nil {
		cfg.FallbackToLegacy = *req.FallbackToLegacy
	}
	if req.RollbackEnabled != nil {
		cfg.RollbackEnabled = *req.RollbackEnabled
	}
	return cfg
}

func (h *Handler) handleMigrationStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeJSON[startMigrationRequest](w, r, h.logger, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	if err := h.migration.Initialize(ctx, req.config()); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.migrationStatus())
}

type phaseRequest struct {
	Phase string `json:"phase"`
}

func (req *phaseRequest) Validate() error {
	_, err := migration.ParsePhase(req.Phase)
	return err
}

func (h *Handler) handleMigrationPhase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeJSON[phaseRequest](w, r, h.logger, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	phase, _ := migration.ParsePhase(req.Phase)
	if err := h.migration.AdvancePhase(ctx, phase); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.migrationStatus())
}

type rolloutRequest struct {
	Increment int `json:"increment"`
}

func (h *Handler) handleMigrationRollout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeJSON[rolloutRequest](w, r, h.logger, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	if _, err := h.migration.IncrementRollout(ctx, req.Increment); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.migrationStatus())
}

func (h *Handler) handleMigrationRollback(w http.ResponseWriter, r *http.Request) {
	if err := h.migration.Rollback(r.Context()); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.migrationStatus())
}

func (h *Handler) handleMigrationComplete(w http.ResponseWriter, r *http.Request) {
	h.migration.Complete(r.Context())
	httputil.WriteJSON(w, http.StatusOK, h.migrationStatus())
}

// handleAuditMetrics returns the per-app counters, or one app's with ?app=.
func (h *Handler) handleAuditMetrics(w http.ResponseWriter, r *http.Request) {
	if h.recorder == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "audit recorder not configured"))
		return
	}
	raw := r.URL.Query().Get("app")
	if raw == "" {
		httputil.WriteJSON(w, http.StatusOK, h.recorder.AllMetrics())
		return
	}
	app, err := models.ParseAppType(raw)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, err.Error()))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[models.AppType]audit.Counters{app: h.recorder.Metrics(app)})
}

func (h *Handler) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.auditLog == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "audit log not configured"))
		return
	}
	q := r.URL.Query()
	userID := q.Get("user")
	if userID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "user is required"))
		return
	}
	limit := defaultAuditEventLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxAuditEventLimit)
	}

	events, err := h.auditLog.ListByUser(ctx, userID, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit events",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events"))
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}
