// Package token owns the lifecycle of an EnrichedToken: issuing it at sign-in,
// deciding whether its access token has expired and refreshing it against the
// Identity Provider.
//
// A token moves Fresh → Expired → Fresh on a successful refresh, or
// Expired → Errored when the refresh fails. Errored tokens are terminal until
// the user signs in again; Refresh and GetOrRefresh hand them back untouched.
package token

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"sharedauth/internal/audit"
	"sharedauth/internal/auth/models"
	"sharedauth/internal/platform/metrics"
	"sharedauth/internal/platform/tracer"
	"sharedauth/internal/provider"
	dErrors "sharedauth/pkg/domain-errors"
	"sharedauth/pkg/platform/sentinel"
)

//go:generate mockgen -source=manager.go -destination=mocks/mocks.go -package=mocks Refresher

// ErrNoRefreshToken is returned by Refresh when the token has nothing to refresh with.
var ErrNoRefreshToken = dErrors.New(dErrors.CodeNoRefreshToken, "no refresh token available")

// maxLedgerHops bounds how far a rotation chain is followed.
const maxLedgerHops = 8

// Refresher exchanges a refresh token with the Identity Provider.
// *provider.Client satisfies it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*provider.RefreshResult, error)
}

// Manager issues and refreshes tokens. It is safe for concurrent use.
type Manager struct {
	refresher Refresher
	ledger    RotationLedger
	recorder  *audit.Recorder
	metrics   *metrics.Metrics
	tracer    tracer.Tracer
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string

	flights singleflight.Group
}

type Option func(*Manager)

func WithLedger(l RotationLedger) Option {
	return func(m *Manager) {
		m.ledger = l
	}
}

func WithRecorder(r *audit.Recorder) Option {
	return func(m *Manager) {
		m.recorder = r
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(m *Manager) {
		m.tracer = t
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithSessionIDs replaces the session id generator (uuid v4 by default).
func WithSessionIDs(gen func() string) Option {
	return func(m *Manager) {
		m.newID = gen
	}
}

func New(refresher Refresher, opts ...Option) *Manager {
	m := &Manager{
		refresher: refresher,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.ledger == nil {
		m.ledger = NewMemoryRotationLedger(defaultLedgerTTL)
	}
	if m.tracer == nil {
		m.tracer = tracer.Noop{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Issue builds the initial token for a sign-in. Without provider tokens the
// token gets an opaque credentials marker, no refresh token and no expiry.
func (m *Manager) Issue(_ context.Context, identity models.Identity, app models.AppType, tokens *models.ProviderTokens) (*models.EnrichedToken, error) {
	if strings.TrimSpace(identity.ID) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "identity id is required")
	}
	if !app.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown app type: "+string(app))
	}

	now := m.now()
	tok := &models.EnrichedToken{
		SubjectID:     identity.ID,
		Email:         identity.Email,
		DisplayName:   identity.DisplayName,
		SessionID:     m.newID(),
		AccessToken:   models.CredentialsAccessToken,
		AppType:       app,
		IsActive:      true,
		LegacyRole:    identity.RawRole,
		IssuedAt:      now,
		LastRefreshAt: now,
	}
	if identity.HasAuthoritativeRoles() {
		tok.Roles = append([]string{}, identity.Roles...)
		tok.RoleSource = models.RoleSourceProvider
	}

	if tokens != nil && tokens.AccessToken != "" {
		tok.AccessToken = tokens.AccessToken
		if tokens.RefreshToken != "" {
			rt := tokens.RefreshToken
			tok.RefreshToken = &rt
		}
		if tokens.ExpiresIn > 0 {
			exp := now.Add(tokens.ExpiresIn)
			tok.AccessTokenExpiresAt = &exp
		}
	}
	return tok, nil
}

// IsExpired reports whether the access token has expired. Tokens without an
// expiry never expire.
func (m *Manager) IsExpired(tok *models.EnrichedToken) bool {
	if tok == nil || tok.AccessTokenExpiresAt == nil {
		return false
	}
	return !m.now().Before(*tok.AccessTokenExpiresAt)
}

// GetOrRefresh returns tok unchanged while it is fresh and refreshes it once
// expired. An expired token that cannot be refreshed comes back flagged
// RefreshFailed.
func (m *Manager) GetOrRefresh(ctx context.Context, tok *models.EnrichedToken) (*models.EnrichedToken, error) {
	if tok == nil {
		return nil, dErrors.New(dErrors.CodeMissingSessionOrToken, "token is required")
	}
	if tok.Error.IsSet() || !m.IsExpired(tok) {
		return tok, nil
	}
	if !tok.CanRefresh() {
		failed := tok.WithError(models.ErrorRefreshFailed)
		m.recorder.AuthError(ctx, tok, tok.AppType, "access token expired without refresh token", nil)
		m.metrics.ObserveRefresh(string(tok.AppType), "no_refresh_token", 0)
		return failed, nil
	}
	return m.Refresh(ctx, tok)
}

// flightResult is shared by every caller that joined the same refresh flight.
type flightResult struct {
	rotation *Rotation
	replayed bool
	failure  models.ErrorKind
	cause    error
}

// Refresh exchanges the token's refresh token for a new access token.
//
// A token without a refresh token fails with ErrNoRefreshToken. Provider
// failures do not surface as errors: the original token comes back with Error
// set to RefreshFailed, or RefreshTokenReused when the provider reports the
// refresh token as already used and no newer rotation is known locally.
// A caller whose ctx ends while waiting gets the untouched token and an error;
// the shared exchange keeps running for everyone else.
func (m *Manager) Refresh(ctx context.Context, tok *models.EnrichedToken) (*models.EnrichedToken, error) {
	if tok == nil {
		return nil, dErrors.New(dErrors.CodeMissingSessionOrToken, "token is required")
	}
	if tok.Error.IsSet() {
		return tok, nil
	}
	if !tok.CanRefresh() {
		return tok, ErrNoRefreshToken
	}

	start := m.now()
	presented := *tok.RefreshToken
	ctx, span := m.tracer.Start(ctx, "token.refresh",
		tracer.String("app_type", string(tok.AppType)),
		tracer.String("refresh_token.fp", tracer.Fingerprint(presented)),
	)

	// The flight outlives any single caller: one tab going away must not fail
	// the refresh for the others sharing it. The provider timeout bounds it.
	flightCtx := context.WithoutCancel(ctx)
	ch := m.flights.DoChan(ledgerKey(presented), func() (any, error) {
		return m.exchange(flightCtx, presented), nil
	})
	var res *flightResult
	select {
	case r := <-ch:
		res = r.Val.(*flightResult)
	case <-ctx.Done():
		span.SetAttributes(tracer.String("outcome", "abandoned"))
		span.End(ctx.Err())
		m.metrics.ObserveRefresh(string(tok.AppType), "abandoned", m.now().Sub(start))
		return tok, dErrors.Wrap(ctx.Err(), dErrors.CodeInternal, "refresh abandoned by caller")
	}

	var out *models.EnrichedToken
	outcome := "ok"
	switch {
	case res.failure.IsSet():
		out = tok.WithError(res.failure)
		outcome = "failed"
		if res.failure == models.ErrorRefreshTokenReused {
			outcome = "reused"
			m.metrics.IncrementRefreshReuse()
		}
		m.logger.WarnContext(ctx, "token refresh failed",
			"app_type", tok.AppType,
			"session_id", tok.SessionID,
			"error_kind", res.failure,
			"error", res.cause,
		)
		m.recorder.AuthError(ctx, tok, tok.AppType, "token refresh failed", map[string]string{
			"error_kind":    string(res.failure),
			"provider_kind": string(provider.KindOf(res.cause)),
		})
	default:
		out = m.apply(tok, res.rotation)
		if res.replayed {
			outcome = "replayed"
		}
		m.recorder.TokenRefresh(ctx, out)
	}

	span.SetAttributes(tracer.String("outcome", outcome))
	span.End(res.cause)
	m.metrics.ObserveRefresh(string(tok.AppType), outcome, m.now().Sub(start))
	return out, nil
}

// exchange runs once per flight. The ledger is consulted before the provider
// so a refresh token this deployment already rotated is answered locally.
func (m *Manager) exchange(ctx context.Context, presented string) *flightResult {
	refreshWith := presented
	if r := m.newest(ctx, presented); r != nil {
		if r.liveAt(m.now()) {
			return &flightResult{rotation: r, replayed: true}
		}
		refreshWith = r.RefreshToken
	}

	result, err := m.refresher.Refresh(ctx, refreshWith)
	if err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			// another replica may have rotated it in the meantime
			if r := m.newest(ctx, presented); r != nil && r.liveAt(m.now()) {
				return &flightResult{rotation: r, replayed: true}
			}
			return &flightResult{failure: models.ErrorRefreshTokenReused, cause: err}
		}
		return &flightResult{failure: models.ErrorRefreshFailed, cause: err}
	}

	now := m.now()
	rotation := Rotation{
		AccessToken:  result.AccessToken,
		RefreshToken: refreshWith,
		RotatedAt:    now,
	}
	if result.RefreshToken != nil {
		rotation.RefreshToken = *result.RefreshToken
	}
	if result.ExpiresIn > 0 {
		rotation.ExpiresAt = now.Add(result.ExpiresIn)
	}
	if err := m.ledger.Record(ctx, refreshWith, rotation); err != nil {
		m.logger.WarnContext(ctx, "failed to record refresh rotation", "error", err)
	}
	return &flightResult{rotation: &rotation}
}

// newest follows the rotation chain starting at refreshToken and returns the
// latest known rotation, or nil.
func (m *Manager) newest(ctx context.Context, refreshToken string) *Rotation {
	var latest *Rotation
	current := refreshToken
	for range maxLedgerHops {
		r, err := m.ledger.Lookup(ctx, current)
		if errors.Is(err, sentinel.ErrNotFound) {
			return latest
		}
		if err != nil {
			m.logger.WarnContext(ctx, "rotation ledger lookup failed", "error", err)
			return latest
		}
		latest = r
		if r.RefreshToken == current {
			return latest
		}
		current = r.RefreshToken
	}
	return latest
}

func (m *Manager) apply(tok *models.EnrichedToken, r *Rotation) *models.EnrichedToken {
	out := tok.Clone()
	out.AccessToken = r.AccessToken
	out.AccessTokenExpiresAt = nil
	if !r.ExpiresAt.IsZero() {
		exp := r.ExpiresAt
		out.AccessTokenExpiresAt = &exp
	}
	if r.RefreshToken != "" {
		rt := r.RefreshToken
		out.RefreshToken = &rt
	}
	out.LastRefreshAt = m.now()
	return out
}
