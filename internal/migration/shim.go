package migration

import (
	"context"
	"sync"
	"time"

	"sharedauth/internal/auth/models"
	"sharedauth/internal/platform/metrics"
	dErrors "sharedauth/pkg/domain-errors"
)

const (
	PathLegacy   = "legacy"
	PathModern   = "modern"
	PathFallback = "fallback"
)

// Handler is one side of a shim.
type Handler[In, Out any] func(ctx context.Context, in In) (Out, error)

// Shim dispatches a single callback to its legacy or modern implementation.
// useModern is evaluated on every Execute.
type Shim[In, Out any] struct {
	name    string
	metrics *metrics.Metrics

	mu        sync.RWMutex
	useModern func(in In) bool
	legacy    Handler[In, Out]
	modern    Handler[In, Out]
	fallback  func() bool
}

func NewShim[In, Out any](name string, m *metrics.Metrics) *Shim[In, Out] {
	return &Shim[In, Out]{name: name, metrics: m}
}

func (s *Shim[In, Out]) Name() string {
	return s.name
}

// Register installs the dispatch condition and both implementations,
// replacing any earlier registration.
func (s *Shim[In, Out]) Register(useModern func(in In) bool, legacy, modern Handler[In, Out]) {
	if useModern == nil || legacy == nil || modern == nil {
		panic(dErrors.New(dErrors.CodeInvalidInput, "migration shim "+s.name+": condition and both handlers are required"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.useModern = useModern
	s.legacy = legacy
	s.modern = modern
}

// FallbackWhen retries a failed modern call on the legacy handler whenever
// fallback reports true at the time of the failure.
func (s *Shim[In, Out]) FallbackWhen(fallback func() bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = fallback
}

func (s *Shim[In, Out]) Registered() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.useModern != nil
}

// Execute runs the modern or legacy handler. A modern failure is retried on
// the legacy handler while the fallback condition holds. Executing a shim
// that was never registered is a wiring bug and panics with CodeUnknownShim.
func (s *Shim[In, Out]) Execute(ctx context.Context, in In) (Out, error) {
	s.mu.RLock()
	useModern, legacy, modern, fallback := s.useModern, s.legacy, s.modern, s.fallback
	s.mu.RUnlock()
	if useModern == nil {
		panic(dErrors.New(dErrors.CodeUnknownShim, "migration shim "+s.name+" is not registered"))
	}

	if useModern(in) {
		s.metrics.IncrementShimDispatch(s.name, PathModern)
		out, err := modern(ctx, in)
		if err == nil || fallback == nil || !fallback() {
			return out, err
		}
		s.metrics.IncrementShimDispatch(s.name, PathFallback)
		return legacy(ctx, in)
	}
	s.metrics.IncrementShimDispatch(s.name, PathLegacy)
	return legacy(ctx, in)
}

// JWTCallbackInput is what the token callback sees. Identity and Tokens are
// only set on the initial sign-in.
type JWTCallbackInput struct {
	Token    *models.EnrichedToken
	Identity *models.Identity
	Tokens   *models.ProviderTokens
	App      models.AppType
}

type SessionCallbackInput struct {
	Token    *models.EnrichedToken
	App      models.AppType
	Required models.Requirements
	Expires  time.Time
}

type SignInInput struct {
	Identity models.Identity
	Provider string
	App      models.AppType
}

type SignOutInput struct {
	Token *models.EnrichedToken
	App   models.AppType
}

// Shims is the fixed set of auth callbacks that can be routed during a migration.
type Shims struct {
	JWTCallback     *Shim[JWTCallbackInput, *models.EnrichedToken]
	SessionCallback *Shim[SessionCallbackInput, *models.EnrichedSession]
	SignInCallback  *Shim[SignInInput, bool]
	SignInEvent     *Shim[SignInInput, struct{}]
	SignOutEvent    *Shim[SignOutInput, struct{}]
}

func NewShims(m *metrics.Metrics) *Shims {
	return &Shims{
		JWTCallback:     NewShim[JWTCallbackInput, *models.EnrichedToken]("jwt_callback", m),
		SessionCallback: NewShim[SessionCallbackInput, *models.EnrichedSession]("session_callback", m),
		SignInCallback:  NewShim[SignInInput, bool]("sign_in_callback", m),
		SignInEvent:     NewShim[SignInInput, struct{}]("sign_in_event", m),
		SignOutEvent:    NewShim[SignOutInput, struct{}]("sign_out_event", m),
	}
}

// FallbackWhen installs the same fallback condition on every shim.
func (s *Shims) FallbackWhen(fallback func() bool) {
	s.JWTCallback.FallbackWhen(fallback)
	s.SessionCallback.FallbackWhen(fallback)
	s.SignInCallback.FallbackWhen(fallback)
	s.SignInEvent.FallbackWhen(fallback)
	s.SignOutEvent.FallbackWhen(fallback)
}

type named interface {
	Name() string
	Registered() bool
}

// Names lists the registered shims in a stable order.
func (s *Shims) Names() []string {
	all := []named{s.JWTCallback, s.SessionCallback, s.SignInCallback, s.SignInEvent, s.SignOutEvent}
	names := make([]string, 0, len(all))
	for _, shim := range all {
		if shim.Registered() {
			names = append(names, shim.Name())
		}
	}
	return names
}
