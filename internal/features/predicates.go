package features

import "sharedauth/internal/auth/models"

// Scoped binds an engine to one evaluation context.
type Scoped struct {
	engine *Engine
	ec     models.EvaluationContext
}

// For returns the helper predicates for ec.
func (e *Engine) For(ec models.EvaluationContext) Scoped {
	return Scoped{engine: e, ec: ec}
}

func (s Scoped) Enabled(key Key) bool {
	return s.engine.IsEnabled(key, s.ec)
}

func (s Scoped) ShouldUseEnhancedJWT() bool {
	return s.Enabled(EnhancedJWTClaims)
}

func (s Scoped) ShouldValidateCrossApp() bool {
	return s.Enabled(CrossAppValidation)
}

func (s Scoped) ShouldAuditLog() bool {
	return s.Enabled(AuditLogging)
}

func (s Scoped) ShouldRefreshSessions() bool {
	return s.Enabled(SessionRefresh)
}

func (s Scoped) ShouldUseRoleBasedAccess() bool {
	return s.Enabled(RoleBasedAccess)
}

func (s Scoped) ShouldUseSecureCookies() bool {
	return s.Enabled(SecureCookies)
}

// IsInMigrationMode reports the flag only. The process-wide migration state
// has its own gate in package migration.
func (s Scoped) IsInMigrationMode() bool {
	return s.Enabled(MigrationMode)
}

func (s Scoped) ShouldMaintainLegacyCompatibility() bool {
	return s.Enabled(LegacyCompatibility)
}

func (s Scoped) ShouldUseAdvancedMonitoring() bool {
	return s.Enabled(AdvancedMonitoring)
}
