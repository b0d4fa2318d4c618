package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"sharedauth/internal/audit"
	"sharedauth/internal/auth/models"
	"sharedauth/internal/auth/service"
	"sharedauth/internal/features"
	"sharedauth/internal/migration"
	"sharedauth/internal/platform/metrics"
	"sharedauth/internal/tokencodec"
	dErrors "sharedauth/pkg/domain-errors"
)

const testAdminToken = "admin-secret"

type stubService struct {
	app     models.AppType
	cookies service.CookieConfig
	shims   *migration.Shims

	resumeErr   error
	resumed     *models.EnrichedToken
	got         models.Requirements
	sessionErr  models.ErrorKind
	signOuts    int
	signedOutID string
}

func newStubService(app models.AppType) *stubService {
	return &stubService{
		app: app,
		cookies: service.CookieConfig{
			Names:   models.CookieNamesFor(app),
			Options: models.DefaultCookieOptions(true, "example.com"),
			PerApp:  true,
		},
		shims: migration.NewShims(nil),
	}
}

func (s *stubService) App() models.AppType { return s.app }

func (s *stubService) Resume(_ context.Context, tok *models.EnrichedToken) (*models.EnrichedToken, error) {
	if s.resumeErr != nil {
		return nil, s.resumeErr
	}
	s.resumed = tok.Clone()
	return tok, nil
}

func (s *stubService) Session(_ context.Context, tok *models.EnrichedToken, required models.Requirements) (*models.EnrichedSession, error) {
	s.got = required
	return &models.EnrichedSession{
		User: models.SessionUser{
			ID:      tok.SubjectID,
			Email:   tok.Email,
			Roles:   tok.Roles,
			AppType: s.app,
		},
		Expires: time.Now().Add(time.Hour),
		Error:   s.sessionErr,
	}, nil
}

func (s *stubService) SignOut(_ context.Context, tok *models.EnrichedToken) error {
	s.signOuts++
	if tok != nil {
		s.signedOutID = tok.SubjectID
	}
	return nil
}

func (s *stubService) CookieConfig() service.CookieConfig { return s.cookies }
func (s *stubService) SessionMaxAge() time.Duration       { return time.Hour }
func (s *stubService) Shims() *migration.Shims            { return s.shims }

type published struct {
	env   string
	key   features.Key
	patch features.Patch
}

type TransportSuite struct {
	suite.Suite
	codec     *tokencodec.Codec
	flags     *features.Engine
	state     *migration.State
	store     *audit.MemoryStore
	recorder  *audit.Recorder
	svc       *stubService
	published []published
	router    http.Handler
}

func TestTransportSuite(t *testing.T) {
	suite.Run(t, new(TransportSuite))
}

func (s *TransportSuite) SetupTest() {
	var err error
	s.codec, err = tokencodec.New("test-signing-secret")
	s.Require().NoError(err)
	s.flags, err = features.NewEngine(features.DefaultDefinitions())
	s.Require().NoError(err)
	s.store = audit.NewMemoryStore()
	s.recorder = audit.NewRecorder(s.store)
	s.state = migration.NewState(true, migration.WithRecorder(s.recorder))
	s.svc = newStubService(models.AppFrontend)
	s.published = nil

	reg := prometheus.NewRegistry()
	h := NewHandler(Config{Env: "production", AdminToken: testAdminToken}, s.codec, s.flags, s.state,
		WithService(s.svc),
		WithRecorder(s.recorder),
		WithAuditReader(s.store),
		WithMetrics(metrics.New(reg), reg),
		WithFlagPublisher(func(_ context.Context, env string, key features.Key, patch features.Patch) error {
			s.published = append(s.published, published{env: env, key: key, patch: patch})
			return nil
		}),
	)
	s.router = NewRouter(h)
}

func (s *TransportSuite) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	if strings.HasPrefix(path, "/admin") {
		req.Header.Set("X-Admin-Token", testAdminToken)
		req.Header.Set("X-Admin-Actor-ID", "ops-1")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *TransportSuite) sessionCookie(tok *models.EnrichedToken) *http.Cookie {
	value, err := s.codec.Encode(tok)
	s.Require().NoError(err)
	return &http.Cookie{Name: "frontend.session-token", Value: value}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (s *TransportSuite) TestSession() {
	tok := &models.EnrichedToken{
		SubjectID: "u1",
		Email:     "u1@example.com",
		SessionID: "sess-1",
		Roles:     []string{"user"},
		AppType:   models.AppFrontend,
	}

	s.Run("returns the session and rewrites the cookie", func() {
		w := s.do(http.MethodPost, "/v1/frontend/session?required_roles=Admin,%20user,admin&required_permissions=read:Users,reports", "", s.sessionCookie(tok))

		s.Equal(http.StatusOK, w.Code)
		body := decode[models.EnrichedSession](s.T(), w)
		s.Equal("u1", body.User.ID)
		s.Equal(models.AppFrontend, body.User.AppType)
		s.Equal([]string{"admin", "user"}, s.svc.got.Roles)
		s.Equal([]string{"read:users", "reports"}, s.svc.got.Permissions)
		s.Equal("sess-1", s.svc.resumed.SessionID)

		cookie := findCookie(w, "frontend.session-token")
		s.Require().NotNil(cookie)
		s.Equal(3600, cookie.MaxAge)
		s.True(cookie.HttpOnly)
		s.True(cookie.Secure)
		decoded, err := s.codec.Decode(cookie.Value, models.AppFrontend)
		s.Require().NoError(err)
		s.Equal("u1", decoded.SubjectID)
	})

	s.Run("app name is case insensitive", func() {
		w := s.do(http.MethodPost, "/v1/FRONTEND/session", "", s.sessionCookie(tok))
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("invalid session is returned with its error", func() {
		s.svc.sessionErr = models.ErrorInsufficientRole
		defer func() { s.svc.sessionErr = models.ErrorNone }()

		w := s.do(http.MethodPost, "/v1/frontend/session", "", s.sessionCookie(tok))
		s.Equal(http.StatusOK, w.Code)
		body := decode[map[string]any](s.T(), w)
		s.Equal(string(models.ErrorInsufficientRole), body["error"])
	})

	s.Run("missing cookie", func() {
		w := s.do(http.MethodPost, "/v1/frontend/session", "")
		s.Equal(http.StatusUnauthorized, w.Code)
		body := decode[map[string]string](s.T(), w)
		s.Equal(string(dErrors.CodeMissingSessionOrToken), body["error"])
	})

	s.Run("tampered cookie", func() {
		w := s.do(http.MethodPost, "/v1/frontend/session", "", &http.Cookie{Name: "frontend.session-token", Value: "garbage"})
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("cookie for another app is ignored", func() {
		c := s.sessionCookie(tok)
		c.Name = "partner.session-token"
		w := s.do(http.MethodPost, "/v1/frontend/session", "", c)
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("value sealed for another app is rejected", func() {
		partnerTok := tok.Clone()
		partnerTok.AppType = models.AppPartner
		c := s.sessionCookie(partnerTok)
		s.Equal("frontend.session-token", c.Name)

		w := s.do(http.MethodPost, "/v1/frontend/session", "", c)
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("unknown app", func() {
		w := s.do(http.MethodPost, "/v1/mobile/session", "")
		s.Equal(http.StatusNotFound, w.Code)

		w = s.do(http.MethodPost, "/v1/partner/session", "")
		s.Equal(http.StatusNotFound, w.Code)
	})

	s.Run("resume failure", func() {
		s.svc.resumeErr = dErrors.New(dErrors.CodeInternal, "boom")
		defer func() { s.svc.resumeErr = nil }()

		w := s.do(http.MethodPost, "/v1/frontend/session", "", s.sessionCookie(tok))
		s.Equal(http.StatusInternalServerError, w.Code)
	})
}

func (s *TransportSuite) TestSignOut() {
	tok := &models.EnrichedToken{SubjectID: "u1", SessionID: "sess-1", AppType: models.AppFrontend}

	w := s.do(http.MethodPost, "/v1/frontend/signout", "", s.sessionCookie(tok))

	s.Equal(http.StatusNoContent, w.Code)
	s.Equal(1, s.svc.signOuts)
	s.Equal("u1", s.svc.signedOutID)
	for _, name := range []string{"frontend.session-token", "frontend.csrf-token", "frontend.callback-url"} {
		c := findCookie(w, name)
		s.Require().NotNil(c, name)
		s.Equal(-1, c.MaxAge, name)
		s.Empty(c.Value, name)
	}

	s.Run("without a cookie", func() {
		w := s.do(http.MethodPost, "/v1/frontend/signout", "")
		s.Equal(http.StatusNoContent, w.Code)
		s.Equal(2, s.svc.signOuts)
	})
}

func (s *TransportSuite) TestAdminRequiresToken() {
	req := httptest.NewRequest(http.MethodGet, "/admin/flags", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Equal(http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/flags", nil)
	req.Header.Set("X-Admin-Token", "wrong")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *TransportSuite) TestFlags() {
	s.Run("list", func() {
		w := s.do(http.MethodGet, "/admin/flags?app=admin&user=u1", "")
		s.Equal(http.StatusOK, w.Code)
		body := decode[flagsResponse](s.T(), w)
		s.Equal("production", body.Env)
		s.NotEmpty(body.Flags)
		for _, f := range body.Flags {
			if f.Key == features.AuditLogging {
				s.True(f.Active)
			}
		}
	})

	s.Run("list rejects an unknown app", func() {
		w := s.do(http.MethodGet, "/admin/flags?app=mobile", "")
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("patch", func() {
		w := s.do(http.MethodPut, "/admin/flags/audit_logging", `{"enabled":false}`)
		s.Equal(http.StatusOK, w.Code)
		s.False(s.flags.IsEnabled(features.AuditLogging, models.EvaluationContext{Env: "production"}))
		s.Require().Len(s.published, 1)
		s.Equal("production", s.published[0].env)
		s.Equal(features.AuditLogging, s.published[0].key)
	})

	s.Run("patch rejects an invalid rollout", func() {
		w := s.do(http.MethodPut, "/admin/flags/session_refresh", `{"rolloutPercentage":150}`)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("patch unknown flag", func() {
		w := s.do(http.MethodPut, "/admin/flags/teleport", `{"enabled":true}`)
		s.Equal(http.StatusNotFound, w.Code)
	})

	s.Run("patch with a malformed body", func() {
		w := s.do(http.MethodPut, "/admin/flags/audit_logging", `{`)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("reset", func() {
		w := s.do(http.MethodPost, "/admin/flags/reset", "")
		s.Equal(http.StatusNoContent, w.Code)
		s.True(s.flags.IsEnabled(features.AuditLogging, models.EvaluationContext{Env: "production"}))
	})
}

func (s *TransportSuite) TestMigrationLifecycle() {
	w := s.do(http.MethodGet, "/admin/migration", "")
	s.Equal(http.StatusOK, w.Code)
	status := decode[migrationResponse](s.T(), w)
	s.False(status.Active)
	s.True(status.ModeEnabled)
	s.NotNil(status.Shims)

	w = s.do(http.MethodPost, "/admin/migration/start", `{"rolloutPercentage":10,"affectedApps":["admin"]}`)
	s.Equal(http.StatusOK, w.Code)
	status = decode[migrationResponse](s.T(), w)
	s.True(status.Active)
	s.Equal(10, status.RolloutPercentage)
	s.True(status.LegacySupport)
	s.Equal([]models.AppType{models.AppAdmin}, status.AffectedApps)

	w = s.do(http.MethodPost, "/admin/migration/phase", `{"phase":"Gradual"}`)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(migration.PhaseGradual, s.state.Status().Phase)

	w = s.do(http.MethodPost, "/admin/migration/phase", `{"phase":"preparation"}`)
	s.Equal(http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, "/admin/migration/phase", `{"phase":"sideways"}`)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/admin/migration/rollout", `{"increment":95}`)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(100, s.state.Status().RolloutPercentage)

	w = s.do(http.MethodPost, "/admin/migration/rollout", `{"increment":0}`)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/admin/migration/rollback", "")
	s.Equal(http.StatusOK, w.Code)
	s.Equal(0, s.state.Status().RolloutPercentage)
	s.Equal(migration.PhasePreparation, s.state.Status().Phase)

	w = s.do(http.MethodPost, "/admin/migration/complete", "")
	s.Equal(http.StatusOK, w.Code)
	s.False(s.state.Status().Active)
	s.False(s.state.Status().LegacySupport)

	s.Len(s.store.OfType(audit.EventMigration), 5)
}

func (s *TransportSuite) TestMigrationRollbackDisabled() {
	w := s.do(http.MethodPost, "/admin/migration/start", `{"rolloutPercentage":50,"rollbackEnabled":false}`)
	s.Require().Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/admin/migration/rollback", "")
	s.Equal(http.StatusConflict, w.Code)
	s.Equal(50, s.state.Status().RolloutPercentage)
}

func (s *TransportSuite) TestMigrationStartRejectsBadInput() {
	w := s.do(http.MethodPost, "/admin/migration/start", `{"rolloutPercentage":101}`)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/admin/migration/start", `{"rolloutPercentage":5,"affectedApps":["mobile"]}`)
	s.Equal(http.StatusBadRequest, w.Code)
	s.False(s.state.Status().Active)
}

func (s *TransportSuite) TestAudit() {
	ctx := context.Background()
	s.recorder.Log(ctx, audit.Event{Type: audit.EventSignIn, UserID: "u1", AppType: models.AppAdmin})
	s.recorder.Log(ctx, audit.Event{Type: audit.EventSignOut, UserID: "u1", AppType: models.AppAdmin})
	s.recorder.Log(ctx, audit.Event{Type: audit.EventSignIn, UserID: "u2", AppType: models.AppPartner})

	s.Run("metrics for one app", func() {
		w := s.do(http.MethodGet, "/admin/audit/metrics?app=admin", "")
		s.Equal(http.StatusOK, w.Code)
		body := decode[map[models.AppType]audit.Counters](s.T(), w)
		s.Require().Contains(body, models.AppAdmin)
		s.Equal(int64(1), body[models.AppAdmin].SignIns)
		s.Equal(int64(1), body[models.AppAdmin].SignOuts)
		s.NotContains(body, models.AppPartner)
	})

	s.Run("metrics for every app", func() {
		w := s.do(http.MethodGet, "/admin/audit/metrics", "")
		s.Equal(http.StatusOK, w.Code)
		body := decode[map[models.AppType]audit.Counters](s.T(), w)
		s.Equal(int64(1), body[models.AppPartner].SignIns)
	})

	s.Run("events for a user", func() {
		w := s.do(http.MethodGet, "/admin/audit/events?user=u1&limit=1", "")
		s.Equal(http.StatusOK, w.Code)
		body := decode[struct {
			Events []audit.Event `json:"events"`
		}](s.T(), w)
		s.Require().Len(body.Events, 1)
		s.Equal(audit.EventSignOut, body.Events[0].Type)
	})

	s.Run("events require a user", func() {
		w := s.do(http.MethodGet, "/admin/audit/events", "")
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("events reject a bad limit", func() {
		w := s.do(http.MethodGet, "/admin/audit/events?user=u1&limit=-3", "")
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *TransportSuite) TestProbesAndMetrics() {
	w := s.do(http.MethodGet, "/health", "")
	s.Equal(http.StatusOK, w.Code)
	s.Equal("application/json", w.Header().Get("Content-Type"))
	s.NotEmpty(w.Header().Get("X-Request-ID"))

	s.do(http.MethodPost, "/v1/frontend/session", "")
	w = s.do(http.MethodGet, "/metrics", "")
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "sharedauth_http_request_duration_seconds")
	s.Contains(w.Body.String(), `route="/v1/{app}/session"`)
}

func TestHandlerWithoutOptionalDependencies(t *testing.T) {
	codec, err := tokencodec.New("secret")
	require.NoError(t, err)
	flags, err := features.NewEngine(features.DefaultDefinitions())
	require.NoError(t, err)
	router := NewRouter(NewHandler(Config{Env: "development", AdminToken: "t"}, codec, flags, migration.NewState(false)))

	for _, path := range []string{"/admin/audit/metrics", "/admin/audit/events?user=u1"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-Admin-Token", "t")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/migration", nil)
	req.Header.Set("X-Admin-Token", "t")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	status := decode[migrationResponse](t, w)
	assert.Empty(t, status.Shims)
	assert.False(t, status.ModeEnabled)
}

func TestParseList(t *testing.T) {
	assert.Nil(t, parseList(""))
	assert.Nil(t, parseList("  "))
	assert.Equal(t, []string{"admin", "user"}, parseList("Admin, user ,ADMIN"))
}

func TestFlagPublisherFailureIsNotFatal(t *testing.T) {
	codec, err := tokencodec.New("secret")
	require.NoError(t, err)
	flags, err := features.NewEngine(features.DefaultDefinitions())
	require.NoError(t, err)
	router := NewRouter(NewHandler(Config{Env: "production", AdminToken: "t"}, codec, flags, migration.NewState(false),
		WithFlagPublisher(func(context.Context, string, features.Key, features.Patch) error {
			return errors.New("redis down")
		}),
	))

	req := httptest.NewRequest(http.MethodPut, "/admin/flags/session_refresh", strings.NewReader(`{"enabled":false}`))
	req.Header.Set("X-Admin-Token", "t")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, flags.IsEnabled(features.SessionRefresh, models.EvaluationContext{Env: "production"}))
}
