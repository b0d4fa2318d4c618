package enrich

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"sharedauth/internal/audit"
	"sharedauth/internal/auth/models"
	"sharedauth/internal/platform/metrics"
	dErrors "sharedauth/pkg/domain-errors"
)

type failingResolver struct{ err error }

func (f failingResolver) Resolve(context.Context, Subject, models.AppType) ([]string, error) {
	return nil, f.err
}

type EnricherSuite struct {
	suite.Suite
	store    *audit.MemoryStore
	metrics  *metrics.Metrics
	now      time.Time
	enricher *Enricher
}

func TestEnricherSuite(t *testing.T) {
	suite.Run(t, new(EnricherSuite))
}

func (s *EnricherSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.store = audit.NewMemoryStore()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.enricher = s.newEnricher()
}

func (s *EnricherSuite) newEnricher(opts ...Option) *Enricher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	base := []Option{
		WithRecorder(audit.NewRecorder(s.store, audit.WithLogger(logger))),
		WithMetrics(s.metrics),
		WithLogger(logger),
		WithClock(func() time.Time { return s.now }),
	}
	return New(append(base, opts...)...)
}

func (s *EnricherSuite) token(email string) *models.EnrichedToken {
	return &models.EnrichedToken{SubjectID: "u1", Email: email, AppType: models.AppFrontend, AccessToken: "at"}
}

func (s *EnricherSuite) TestAuthoritativeRolesWin() {
	identity := &models.Identity{ID: "u1", Email: "someone@example.com", Roles: []string{"Admin", "USER", "admin"}}

	res := s.enricher.Enrich(context.Background(), s.token("someone@example.com"), identity, models.AppAdmin)
	s.Require().NoError(res.Err)
	s.False(res.Degraded)
	s.Equal(RoleSourceProvider, res.RoleSource)
	s.Equal([]string{"admin", "user"}, res.Token.Roles)
	s.Equal(models.AppAdmin, res.Token.AppType)
	s.Equal("admin", res.Token.LegacyRole)
	s.Contains(res.Token.Permissions, "access:admin_panel")
	s.Contains(res.Token.Permissions, "manage:system")
	s.Equal("2026-03-01T12:00:00Z", res.Token.Metadata["last_login_at"])
	s.True(res.Token.IsActive)
}

func (s *EnricherSuite) TestEmptyProviderRolesAreAuthoritative() {
	identity := &models.Identity{ID: "u1", Email: "admin@example.com", Roles: []string{}}

	res := s.enricher.Enrich(context.Background(), s.token("admin@example.com"), identity, models.AppAdmin)
	s.Require().NoError(res.Err)
	s.Equal(RoleSourceProvider, res.RoleSource)
	s.Empty(res.Token.Roles)
	s.ElementsMatch([]string{"read:profile", "update:profile", "access:admin_panel"}, res.Token.Permissions)
}

func (s *EnricherSuite) TestReEnrichKeepsProviderRoles() {
	s.Run("declared user is not promoted by an admin-looking email", func() {
		tok := s.token("ops-admin@example.com")
		tok.Roles = []string{"user"}
		tok.RoleSource = models.RoleSourceProvider

		res := s.enricher.Enrich(context.Background(), tok, nil, models.AppAdmin)
		s.Require().NoError(res.Err)
		s.Equal(RoleSourceProvider, res.RoleSource)
		s.Equal([]string{"user"}, res.Token.Roles)
		s.Equal(models.RoleSourceProvider, res.Token.RoleSource)
		s.NotContains(res.Token.Permissions, "manage:system")
	})

	s.Run("declared admin keeps admin without a matching email", func() {
		tok := s.token("jane@example.com")
		tok.Roles = []string{"admin"}
		tok.RoleSource = models.RoleSourceProvider

		res := s.enricher.Enrich(context.Background(), tok, nil, models.AppAdmin)
		s.Require().NoError(res.Err)
		s.Equal([]string{"admin"}, res.Token.Roles)
		s.Contains(res.Token.Permissions, "manage:system")
	})

	s.Run("fallback roles are resolved again", func() {
		tok := s.token("jane@example.com")
		tok.Roles = []string{"admin", "user"}
		tok.RoleSource = models.RoleSourceFallback

		res := s.enricher.Enrich(context.Background(), tok, nil, models.AppAdmin)
		s.Require().NoError(res.Err)
		s.Equal(RoleSourceFallback, res.RoleSource)
		s.Equal([]string{"viewer", "user"}, res.Token.Roles)
	})
}

func (s *EnricherSuite) TestHeuristicFallback() {
	tests := []struct {
		name  string
		email string
		app   models.AppType
		want  []string
	}{
		{"admin email on admin app", "ops-admin@example.com", models.AppAdmin, []string{"admin", "user"}},
		{"support email on admin app", "Support@example.com", models.AppAdmin, []string{"admin", "user"}},
		{"plain email on admin app", "jane@example.com", models.AppAdmin, []string{"viewer", "user"}},
		{"partner email on partner app", "partner@acme.io", models.AppPartner, []string{"partner", "business_user", "user"}},
		{"business email on partner app", "business@acme.io", models.AppPartner, []string{"partner", "business_user", "user"}},
		{"plain email on partner app", "jane@acme.io", models.AppPartner, []string{"user"}},
		{"frontend", "admin@example.com", models.AppFrontend, []string{"user"}},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			res := s.enricher.Enrich(context.Background(), s.token(tt.email), nil, tt.app)
			s.Require().NoError(res.Err)
			s.Equal(RoleSourceFallback, res.RoleSource)
			s.Equal(tt.want, res.Token.Roles)
		})
	}
}

func (s *EnricherSuite) TestLookupFailureDegrades() {
	enricher := s.newEnricher(WithResolver(failingResolver{err: errors.New("directory down")}))
	tok := s.token("jane@example.com")

	res := enricher.Enrich(context.Background(), tok, nil, models.AppAdmin)
	s.True(res.Degraded)
	s.Error(res.Err)
	s.Same(tok, res.Token, "unenriched input is returned")
	s.Len(s.store.OfType(audit.EventAuthError), 1)
	s.InDelta(1, testutil.ToFloat64(s.metrics.EnrichmentDegraded), 0)
}

func (s *EnricherSuite) TestIdentityMismatchDegrades() {
	identity := &models.Identity{ID: "someone-else", Roles: []string{"admin"}}

	res := s.enricher.Enrich(context.Background(), s.token("jane@example.com"), identity, models.AppAdmin)
	s.True(res.Degraded)
	s.True(dErrors.HasCode(res.Err, dErrors.CodeIdentityMismatch))
	s.Empty(res.Token.Roles)
}

func (s *EnricherSuite) TestDoesNotMutateInput() {
	tok := s.token("jane@example.com")
	tok.Metadata = map[string]string{"theme": "dark"}

	res := s.enricher.Enrich(context.Background(), tok, nil, models.AppPartner)
	s.Require().NoError(res.Err)
	s.Equal("dark", res.Token.Metadata["theme"])
	s.NotContains(tok.Metadata, "last_login_at")
	s.Nil(tok.Roles)
}

func (s *EnricherSuite) TestNilToken() {
	res := s.enricher.Enrich(context.Background(), nil, nil, models.AppAdmin)
	s.True(dErrors.HasCode(res.Err, dErrors.CodeMissingSessionOrToken))
	s.Nil(res.Token)
}
