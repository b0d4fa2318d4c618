// Package migration tracks a gradual move from the legacy auth callbacks to
// the enriched ones, and dispatches each callback to the right side.
package migration

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"sharedauth/internal/audit"
	"sharedauth/internal/auth/models"
	"sharedauth/internal/features"
	dErrors "sharedauth/pkg/domain-errors"
)

type Phase string

const (
	PhasePreparation Phase = "preparation"
	PhaseGradual     Phase = "gradual"
	PhaseCompletion  Phase = "completion"
	PhaseCleanup     Phase = "cleanup"
)

var phaseOrder = map[Phase]int{
	PhasePreparation: 0,
	PhaseGradual:     1,
	PhaseCompletion:  2,
	PhaseCleanup:     3,
}

func (p Phase) IsValid() bool {
	_, ok := phaseOrder[p]
	return ok
}

func ParsePhase(raw string) (Phase, error) {
	p := Phase(strings.ToLower(strings.TrimSpace(raw)))
	if !p.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown migration phase: "+raw)
	}
	return p, nil
}

// Config is supplied when a migration starts.
type Config struct {
	LegacySupport     bool
	FallbackToLegacy  bool
	RolloutPercentage int
	RollbackEnabled   bool
	AffectedApps      []models.AppType
}

func DefaultConfig() Config {
	return Config{
		LegacySupport:    true,
		FallbackToLegacy: true,
		RollbackEnabled:  true,
	}
}

// Status is a point-in-time copy of the migration state.
type Status struct {
	Active            bool             `json:"active"`
	ModeEnabled       bool             `json:"modeEnabled"`
	Phase             Phase            `json:"phase"`
	StartedAt         time.Time        `json:"startedAt"`
	RolloutPercentage int              `json:"rolloutPercentage"`
	LegacySupport     bool             `json:"legacySupport"`
	FallbackToLegacy  bool             `json:"fallbackToLegacy"`
	RollbackEnabled   bool             `json:"rollbackEnabled"`
	AffectedApps      []models.AppType `json:"affectedApps"`
}

// State is the process-wide migration state. Writers replace the whole status
// under the lock so readers never see a half-applied transition.
type State struct {
	mu          sync.RWMutex
	status      Status
	modeEnabled bool
	recorder    *audit.Recorder
	logger      *slog.Logger
	now         func() time.Time
}

type Option func(*State)

func WithRecorder(r *audit.Recorder) Option {
	return func(s *State) {
		s.recorder = r
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *State) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *State) {
		s.now = now
	}
}

// NewState builds an inactive migration. modeEnabled mirrors
// AUTH_MIGRATION_MODE; without it the state never reports migration mode.
func NewState(modeEnabled bool, opts ...Option) *State {
	cfg := DefaultConfig()
	s := &State{
		modeEnabled: modeEnabled,
		now:         time.Now,
		status: Status{
			Phase:            PhasePreparation,
			LegacySupport:    cfg.LegacySupport,
			FallbackToLegacy: cfg.FallbackToLegacy,
			RollbackEnabled:  cfg.RollbackEnabled,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.status.ModeEnabled = modeEnabled
	return s
}

// Initialize starts the migration with cfg.
func (s *State) Initialize(ctx context.Context, cfg Config) error {
	if cfg.RolloutPercentage < 0 || cfg.RolloutPercentage > 100 {
		return dErrors.New(dErrors.CodeInvalidInput, "rollout percentage must be within 0..100")
	}
	for _, app := range cfg.AffectedApps {
		if !app.IsValid() {
			return dErrors.New(dErrors.CodeInvalidInput, "unknown app type: "+string(app))
		}
	}

	s.mu.Lock()
	next := s.status
	next.Active = true
	next.StartedAt = s.now()
	next.RolloutPercentage = cfg.RolloutPercentage
	next.LegacySupport = cfg.LegacySupport
	next.FallbackToLegacy = cfg.FallbackToLegacy
	next.RollbackEnabled = cfg.RollbackEnabled
	next.AffectedApps = slices.Clone(cfg.AffectedApps)
	s.status = next
	s.mu.Unlock()

	s.emit(ctx, "migration_initialized", map[string]string{
		"rollout_percentage": strconv.Itoa(cfg.RolloutPercentage),
		"legacy_support":     strconv.FormatBool(cfg.LegacySupport),
		"affected_apps":      joinApps(cfg.AffectedApps),
	})
	return nil
}

// AdvancePhase moves forward to phase. Moving backwards is rejected; use
// Rollback for that. Re-entering the current phase is a no-op.
func (s *State) AdvancePhase(ctx context.Context, phase Phase) error {
	if !phase.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown migration phase: "+string(phase))
	}

	s.mu.Lock()
	previous := s.status.Phase
	if phaseOrder[phase] < phaseOrder[previous] {
		s.mu.Unlock()
		return dErrors.New(dErrors.CodeInvalidPhaseChange,
			"cannot move migration phase from "+string(previous)+" back to "+string(phase))
	}
	if phase == previous {
		s.mu.Unlock()
		return nil
	}
	s.status.Phase = phase
	s.mu.Unlock()

	s.emit(ctx, "migration_phase_changed", map[string]string{
		"previous_phase": string(previous),
		"new_phase":      string(phase),
	})
	return nil
}

// IncrementRollout raises the rollout percentage by n, capped at 100, and
// returns the new value.
func (s *State) IncrementRollout(ctx context.Context, n int) (int, error) {
	if n <= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "rollout increment must be positive")
	}

	s.mu.Lock()
	previous := s.status.RolloutPercentage
	next := min(100, previous+n)
	s.status.RolloutPercentage = next
	s.mu.Unlock()

	s.emit(ctx, "rollout_percentage_increased", map[string]string{
		"previous_percentage": strconv.Itoa(previous),
		"new_percentage":      strconv.Itoa(next),
	})
	return next, nil
}

// Rollback sends everyone back to the legacy path.
func (s *State) Rollback(ctx context.Context) error {
	s.mu.Lock()
	if !s.status.RollbackEnabled {
		s.mu.Unlock()
		return dErrors.New(dErrors.CodeRollbackDisabled, "migration rollback is disabled")
	}
	previous := s.status.Phase
	s.status.RolloutPercentage = 0
	s.status.FallbackToLegacy = true
	s.status.Phase = PhasePreparation
	s.mu.Unlock()

	s.emit(ctx, "migration_rolled_back", map[string]string{
		"previous_phase": string(previous),
		"reason":         "manual rollback",
	})
	return nil
}

// Complete ends the migration and switches legacy support off.
func (s *State) Complete(ctx context.Context) {
	s.mu.Lock()
	started := s.status.StartedAt
	s.status.Active = false
	s.status.Phase = PhaseCompletion
	s.status.LegacySupport = false
	s.status.FallbackToLegacy = false
	s.mu.Unlock()

	meta := map[string]string{}
	if !started.IsZero() {
		meta["duration_ms"] = strconv.FormatInt(s.now().Sub(started).Milliseconds(), 10)
	}
	s.emit(ctx, "migration_completed", meta)
}

// SetRollbackEnabled toggles whether Rollback is allowed.
func (s *State) SetRollbackEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.RollbackEnabled = enabled
}

func (s *State) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status
	st.AffectedApps = slices.Clone(s.status.AffectedApps)
	return st
}

// IsInMigrationMode is true only while a migration is active and
// AUTH_MIGRATION_MODE is on.
func (s *State) IsInMigrationMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.Active && s.modeEnabled
}

func (s *State) ShouldMaintainLegacyCompatibility() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.LegacySupport
}

func (s *State) ShouldFallbackToLegacy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.FallbackToLegacy
}

// Affects reports whether app takes part in the migration. An empty list means
// every app does.
func (s *State) Affects(app models.AppType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.status.AffectedApps) == 0 || slices.Contains(s.status.AffectedApps, app)
}

// ShouldUseNewFeature reports whether name is rolled out to userID. Outside
// migration mode everything is new. The bucket is deterministic per
// (user, feature); without a user id the feature name alone is the seed.
func (s *State) ShouldUseNewFeature(name, userID string) bool {
	if !s.IsInMigrationMode() {
		return true
	}
	s.mu.RLock()
	pct := s.status.RolloutPercentage
	s.mu.RUnlock()
	return features.InRollout(userID+name, pct)
}

func (s *State) emit(ctx context.Context, name string, metadata map[string]string) {
	st := s.Status()
	s.logger.InfoContext(ctx, "migration state changed",
		"event", name,
		"phase", st.Phase,
		"rollout_percentage", st.RolloutPercentage,
		"active", st.Active,
	)
	s.recorder.MigrationEvent(ctx, name, metadata)
}

func joinApps(apps []models.AppType) string {
	parts := make([]string, len(apps))
	for i, app := range apps {
		parts[i] = string(app)
	}
	return strings.Join(parts, ",")
}
