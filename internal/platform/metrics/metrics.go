package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the shared-auth core.
// All methods are nil-safe so components can run without metrics in tests.
type Metrics struct {
	TokenRefreshes        *prometheus.CounterVec
	TokenRefreshDuration  prometheus.Histogram
	Validations           *prometheus.CounterVec
	FlagEvaluations       *prometheus.CounterVec
	AuditEvents           *prometheus.CounterVec
	AuditSinkFailures     prometheus.Counter
	AuditDropped          prometheus.Counter
	ShimDispatches        *prometheus.CounterVec
	EnrichmentDegraded    prometheus.Counter
	ProviderCallDuration  *prometheus.HistogramVec
	RefreshReuseDetected  prometheus.Counter
	FlagSnapshotRefreshes *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	SessionOutcomes       *prometheus.CounterVec
}

// New registers collectors on reg. Pass prometheus.DefaultRegisterer in main and
// a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TokenRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sharedauth_token_refreshes_total",
			Help: "Token refresh attempts by outcome",
		}, []string{"app_type", "outcome"}),
		TokenRefreshDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sharedauth_token_refresh_duration_ms",
			Help:    "Duration of token refresh operations in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
		Validations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sharedauth_session_validations_total",
			Help: "Cross-app session validations by target app and result",
		}, []string{"app_type", "result"}),
		FlagEvaluations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sharedauth_flag_evaluations_total",
			Help: "Feature flag evaluations by key and result",
		}, []string{"flag", "result"}),
		AuditEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sharedauth_audit_events_total",
			Help: "Audit events recorded by type",
		}, []string{"type"}),
		AuditSinkFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "sharedauth_audit_sink_failures_total",
			Help: "Audit events the sink failed to persist",
		}),
		AuditDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "sharedauth_audit_dropped_total",
			Help: "Audit events dropped because the async buffer was full",
		}),
		ShimDispatches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sharedauth_migration_shim_dispatches_total",
			Help: "Migration shim dispatches by shim and path",
		}, []string{"shim", "path"}),
		EnrichmentDegraded: f.NewCounter(prometheus.CounterOpts{
			Name: "sharedauth_enrichment_degraded_total",
			Help: "Tokens returned unenriched because role lookup failed",
		}),
		ProviderCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sharedauth_provider_call_duration_ms",
			Help:    "Identity Provider call duration in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"endpoint", "outcome"}),
		RefreshReuseDetected: f.NewCounter(prometheus.CounterOpts{
			Name: "sharedauth_refresh_token_reuse_total",
			Help: "Refresh attempts rejected because the refresh token was already used",
		}),
		FlagSnapshotRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sharedauth_flag_snapshot_refreshes_total",
			Help: "Feature flag snapshot refreshes from external sources by outcome",
		}, []string{"outcome"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sharedauth_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status class",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
		SessionOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sharedauth_session_outcomes_total",
			Help: "Session callback outcomes by app and error kind, for users in the advanced monitoring rollout",
		}, []string{"app_type", "outcome"}),
	}
}

func (m *Metrics) ObserveRefresh(app, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.TokenRefreshes.WithLabelValues(app, outcome).Inc()
	m.TokenRefreshDuration.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) IncrementValidation(app string, valid bool) {
	if m == nil {
		return
	}
	m.Validations.WithLabelValues(app, resultLabel(valid)).Inc()
}

func (m *Metrics) IncrementFlagEvaluation(flag string, enabled bool) {
	if m == nil {
		return
	}
	m.FlagEvaluations.WithLabelValues(flag, resultLabel(enabled)).Inc()
}

func (m *Metrics) IncrementAuditEvent(eventType string) {
	if m == nil {
		return
	}
	m.AuditEvents.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncrementAuditSinkFailure() {
	if m == nil {
		return
	}
	m.AuditSinkFailures.Inc()
}

func (m *Metrics) IncrementAuditDropped() {
	if m == nil {
		return
	}
	m.AuditDropped.Inc()
}

func (m *Metrics) IncrementShimDispatch(shim, path string) {
	if m == nil {
		return
	}
	m.ShimDispatches.WithLabelValues(shim, path).Inc()
}

func (m *Metrics) IncrementEnrichmentDegraded() {
	if m == nil {
		return
	}
	m.EnrichmentDegraded.Inc()
}

func (m *Metrics) ObserveProviderCall(endpoint, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ProviderCallDuration.WithLabelValues(endpoint, outcome).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) IncrementRefreshReuse() {
	if m == nil {
		return
	}
	m.RefreshReuseDetected.Inc()
}

func (m *Metrics) IncrementFlagSnapshotRefresh(outcome string) {
	if m == nil {
		return
	}
	m.FlagSnapshotRefreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveHTTPRequest(route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(route, status).Observe(d.Seconds())
}

func (m *Metrics) IncrementSessionOutcome(app, outcome string) {
	if m == nil {
		return
	}
	m.SessionOutcomes.WithLabelValues(app, outcome).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "true"
	}
	return "false"
}
