package features

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"sharedauth/internal/auth/models"
	"sharedauth/internal/platform/metrics"
	dErrors "sharedauth/pkg/domain-errors"
)

// Source supplies runtime flag overrides shared across processes.
type Source interface {
	Overrides(ctx context.Context, env string) (map[Key]Patch, error)
}

// snapshot is immutable once published.
type snapshot struct {
	defs    Definitions
	runtime map[Key]Patch
}

// Engine evaluates feature flags. Reads are lock-free against the current
// snapshot; writers serialize on mu and publish a fresh snapshot.
type Engine struct {
	mu      sync.Mutex
	current atomic.Pointer[snapshot]
	initial Definitions

	env     string
	source  Source
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithSource attaches a runtime override source for the given environment.
func WithSource(env string, source Source) Option {
	return func(e *Engine) {
		e.env = env
		e.source = source
	}
}

// NewEngine validates defs and returns an engine serving them.
func NewEngine(defs Definitions, opts ...Option) (*Engine, error) {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	defs = defs.clone()
	if err := validate(defs); err != nil {
		return nil, err
	}
	e.initial = defs
	e.current.Store(&snapshot{defs: defs.clone(), runtime: map[Key]Patch{}})
	return e, nil
}

// IsEnabled resolves key for the evaluation context.
func (e *Engine) IsEnabled(key Key, ec models.EvaluationContext) bool {
	snap := e.current.Load()
	enabled := snap.isEnabled(key, ec, map[Key]bool{})
	e.metrics.IncrementFlagEvaluation(string(key), enabled)
	return enabled
}

// Resolve returns the flag after every override layer has been merged.
func (e *Engine) Resolve(key Key, ec models.EvaluationContext) (Flag, bool) {
	return e.current.Load().resolve(key, ec)
}

// Flags returns every resolved flag for the evaluation context.
func (e *Engine) Flags(ec models.EvaluationContext) []Flag {
	snap := e.current.Load()
	keys := make([]Key, 0, len(snap.defs.Flags))
	for k := range snap.defs.Flags {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]Flag, 0, len(keys))
	for _, k := range keys {
		f, _ := snap.resolve(k, ec)
		out = append(out, f)
	}
	return out
}

// Register adds or replaces a base flag definition.
func (e *Engine) Register(flag Flag) error {
	if flag.Key == "" {
		return dErrors.New(dErrors.CodeInvalidFlagConfig, "flag key is required")
	}
	return e.mutate(func(s *snapshot) {
		s.defs.Flags[flag.Key] = flag.clone()
	})
}

// Update applies a runtime patch to one flag. Runtime patches take precedence
// over the environment and app-type layers.
func (e *Engine) Update(key Key, patch Patch) error {
	return e.mutate(func(s *snapshot) {
		if existing, ok := s.runtime[key]; ok {
			patch = mergePatch(existing, patch)
		}
		s.runtime[key] = patch
	})
}

// SetOverrides replaces the whole runtime layer.
func (e *Engine) SetOverrides(overrides map[Key]Patch) error {
	return e.mutate(func(s *snapshot) {
		s.runtime = clonePatches(overrides)
	})
}

// Reset restores the definitions the engine was created with.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current.Store(&snapshot{defs: e.initial.clone(), runtime: map[Key]Patch{}})
}

func (e *Engine) mutate(fn func(*snapshot)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.current.Load()
	next := &snapshot{defs: cur.defs.clone(), runtime: clonePatches(cur.runtime)}
	fn(next)
	if err := validate(next.defs); err != nil {
		return err
	}
	for key, p := range next.runtime {
		if _, ok := next.defs.Flags[key]; !ok {
			return dErrors.New(dErrors.CodeInvalidFlagConfig, fmt.Sprintf("override for unknown flag %q", key))
		}
		if err := validateRollout(key, p.RolloutPercentage); err != nil {
			return err
		}
	}
	e.current.Store(next)
	return nil
}

// Refresh pulls runtime overrides from the source. On failure the previous
// snapshot keeps serving.
func (e *Engine) Refresh(ctx context.Context) error {
	if e.source == nil {
		return nil
	}
	overrides, err := e.source.Overrides(ctx, e.env)
	if err != nil {
		e.metrics.IncrementFlagSnapshotRefresh("error")
		e.logger.WarnContext(ctx, "feature flag refresh failed, keeping previous snapshot", "error", err)
		return err
	}
	if err := e.SetOverrides(overrides); err != nil {
		e.metrics.IncrementFlagSnapshotRefresh("rejected")
		e.logger.WarnContext(ctx, "feature flag overrides rejected", "error", err)
		return err
	}
	e.metrics.IncrementFlagSnapshotRefresh("ok")
	return nil
}

// RunRefresher refreshes every interval until ctx is done.
func (e *Engine) RunRefresher(ctx context.Context, interval time.Duration) {
	if e.source == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = e.Refresh(ctx)
		}
	}
}

func (s *snapshot) resolve(key Key, ec models.EvaluationContext) (Flag, bool) {
	base, ok := s.defs.Flags[key]
	if !ok {
		return Flag{}, false
	}
	f := base.clone()
	if p, ok := s.defs.EnvOverrides[ec.Env][key]; ok {
		f = p.Apply(f)
	}
	if p, ok := s.defs.AppOverrides[ec.AppType][key]; ok {
		f = p.Apply(f)
	}
	if p, ok := s.runtime[key]; ok {
		f = p.Apply(f)
	}
	return f, true
}

func (s *snapshot) isEnabled(key Key, ec models.EvaluationContext, visiting map[Key]bool) bool {
	if visiting[key] {
		return false
	}
	f, ok := s.resolve(key, ec)
	if !ok || !f.Enabled {
		return false
	}
	if len(f.Environments) > 0 && !slices.Contains(f.Environments, ec.Env) {
		return false
	}
	if len(f.AppTypes) > 0 && !slices.Contains(f.AppTypes, ec.AppType) {
		return false
	}
	if f.Rollout() < 100 && !InRollout(rolloutSeed(key, ec), f.Rollout()) {
		return false
	}
	visiting[key] = true
	defer delete(visiting, key)
	for _, dep := range f.DependsOn {
		if !s.isEnabled(dep, ec, visiting) {
			return false
		}
	}
	return true
}

func rolloutSeed(key Key, ec models.EvaluationContext) string {
	if ec.UserID != "" {
		return ec.UserID + "-" + string(key)
	}
	return string(ec.AppType) + "-" + ec.Env + "-" + string(key)
}

func mergePatch(base, over Patch) Patch {
	out := base
	if over.Enabled != nil {
		out.Enabled = over.Enabled
	}
	if over.RolloutPercentage != nil {
		out.RolloutPercentage = over.RolloutPercentage
	}
	if over.Environments != nil {
		out.Environments = over.Environments
	}
	if over.AppTypes != nil {
		out.AppTypes = over.AppTypes
	}
	if over.Description != nil {
		out.Description = over.Description
	}
	return out
}

func validate(defs Definitions) error {
	for key, f := range defs.Flags {
		if f.Key != key {
			return dErrors.New(dErrors.CodeInvalidFlagConfig, fmt.Sprintf("flag %q registered under key %q", f.Key, key))
		}
		if err := validateRollout(key, f.RolloutPercentage); err != nil {
			return err
		}
		for _, dep := range f.DependsOn {
			if _, ok := defs.Flags[dep]; !ok {
				return dErrors.New(dErrors.CodeInvalidFlagConfig, fmt.Sprintf("flag %q depends on unknown flag %q", key, dep))
			}
		}
	}
	for _, layer := range overrideLayers(defs) {
		for key, p := range layer {
			if _, ok := defs.Flags[key]; !ok {
				return dErrors.New(dErrors.CodeInvalidFlagConfig, fmt.Sprintf("override for unknown flag %q", key))
			}
			if err := validateRollout(key, p.RolloutPercentage); err != nil {
				return err
			}
		}
	}
	if cycle := findCycle(defs.Flags); cycle != nil {
		return dErrors.New(dErrors.CodeInvalidFlagConfig, fmt.Sprintf("circular flag dependency: %v", cycle))
	}
	return nil
}

func overrideLayers(defs Definitions) []map[Key]Patch {
	layers := make([]map[Key]Patch, 0, len(defs.EnvOverrides)+len(defs.AppOverrides))
	for _, l := range defs.EnvOverrides {
		layers = append(layers, l)
	}
	for _, l := range defs.AppOverrides {
		layers = append(layers, l)
	}
	return layers
}

func validateRollout(key Key, pct *int) error {
	if pct != nil && (*pct < 0 || *pct > 100) {
		return dErrors.New(dErrors.CodeInvalidFlagConfig, fmt.Sprintf("flag %q rollout %d outside 0..100", key, *pct))
	}
	return nil
}

// findCycle returns the first dependency cycle found, or nil.
func findCycle(flags map[Key]Flag) []Key {
	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[Key]int, len(flags))
	var path []Key
	var visit func(Key) []Key
	visit = func(k Key) []Key {
		switch state[k] {
		case inProgress:
			start := slices.Index(path, k)
			return append(slices.Clone(path[start:]), k)
		case done:
			return nil
		}
		state[k] = inProgress
		path = append(path, k)
		for _, dep := range flags[k].DependsOn {
			if c := visit(dep); c != nil {
				return c
			}
		}
		path = path[:len(path)-1]
		state[k] = done
		return nil
	}

	keys := make([]Key, 0, len(flags))
	for k := range flags {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if c := visit(k); c != nil {
			return c
		}
	}
	return nil
}
