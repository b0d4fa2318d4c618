package validation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"sharedauth/internal/auth/models"
	"sharedauth/internal/platform/metrics"
	"sharedauth/internal/provider"
	"sharedauth/pkg/platform/sentinel"
)

//go:generate mockgen -source=remote.go -destination=mocks/mocks.go -package=mocks RemoteChecker

const (
	ReasonRemoteTimeout  = "Remote validation timeout"
	ReasonRemoteFailed   = "Remote validation failed"
	ReasonRemoteRejected = "Remote validation rejected"

	defaultRemoteTimeout = 3 * time.Second
)

// RemoteChecker asks the Identity Provider about an access token.
// *provider.Client satisfies it.
type RemoteChecker interface {
	Validate(ctx context.Context, accessToken string, app models.AppType) (*provider.ValidateResult, error)
}

// RemoteValidator confirms a token with the Identity Provider. Every failure,
// including a timeout, is an invalid result.
type RemoteValidator struct {
	checker RemoteChecker
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type RemoteOption func(*RemoteValidator)

func WithRemoteTimeout(d time.Duration) RemoteOption {
	return func(r *RemoteValidator) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithRemoteMetrics(m *metrics.Metrics) RemoteOption {
	return func(r *RemoteValidator) {
		r.metrics = m
	}
}

func WithRemoteLogger(logger *slog.Logger) RemoteOption {
	return func(r *RemoteValidator) {
		r.logger = logger
	}
}

func NewRemote(checker RemoteChecker, opts ...RemoteOption) *RemoteValidator {
	r := &RemoteValidator{checker: checker, timeout: defaultRemoteTimeout}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

func (r *RemoteValidator) Validate(ctx context.Context, tok *models.EnrichedToken, target models.AppType) models.ValidationResult {
	res := r.validate(ctx, tok, target)
	res.Source = models.SourceRemote
	r.metrics.IncrementValidation(string(target), res.IsValid)
	return res
}

func (r *RemoteValidator) validate(ctx context.Context, tok *models.EnrichedToken, target models.AppType) models.ValidationResult {
	if tok == nil || tok.AccessToken == "" {
		return models.Invalid(models.ErrorMissingSessionOrToken, ReasonMissing)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.checker.Validate(ctx, tok.AccessToken, target)
	if err != nil {
		if errors.Is(err, sentinel.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			r.logger.WarnContext(ctx, "remote validation timed out", "target_app", target, "timeout", r.timeout)
			return models.Invalid(models.ErrorValidationTimeout, ReasonRemoteTimeout)
		}
		r.logger.WarnContext(ctx, "remote validation failed", "target_app", target, "error", err)
		return models.Invalid(models.ErrorSessionValidation, ReasonRemoteFailed)
	}
	if !result.Valid {
		return models.Invalid(models.ErrorSessionValidation, ReasonRemoteRejected)
	}
	if result.User != nil && result.User.ID != "" && result.User.ID != tok.SubjectID {
		return models.Invalid(models.ErrorIdentityMismatch, ReasonIdentityMismatch)
	}
	return models.ValidationResult{IsValid: true}
}
