package features

import (
	"slices"

	"sharedauth/internal/auth/models"
)

// Key names a capability that can be switched per environment, app and user.
type Key string

const (
	EnhancedJWTClaims   Key = "enhanced_jwt_claims"
	CrossAppValidation  Key = "cross_app_validation"
	AuditLogging        Key = "audit_logging"
	SessionRefresh      Key = "session_refresh"
	RoleBasedAccess     Key = "role_based_access"
	SecureCookies       Key = "secure_cookies"
	MigrationMode       Key = "migration_mode"
	LegacyCompatibility Key = "legacy_compatibility"
	AdvancedMonitoring  Key = "advanced_monitoring"
	CustomProviders     Key = "custom_providers"
)

// Flag is one feature flag definition.
// A nil RolloutPercentage means 100; nil allow-lists mean "everyone".
type Flag struct {
	Key               Key              `json:"key" yaml:"key"`
	Enabled           bool             `json:"enabled" yaml:"enabled"`
	RolloutPercentage *int             `json:"rolloutPercentage,omitempty" yaml:"rolloutPercentage,omitempty"`
	Environments      []string         `json:"environments,omitempty" yaml:"environments,omitempty"`
	AppTypes          []models.AppType `json:"appTypes,omitempty" yaml:"appTypes,omitempty"`
	DependsOn         []Key            `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`
	Description       string           `json:"description,omitempty" yaml:"description,omitempty"`
}

// Rollout returns the effective rollout percentage.
func (f Flag) Rollout() int {
	if f.RolloutPercentage == nil {
		return 100
	}
	return *f.RolloutPercentage
}

func (f Flag) clone() Flag {
	c := f
	c.Environments = slices.Clone(f.Environments)
	c.AppTypes = slices.Clone(f.AppTypes)
	c.DependsOn = slices.Clone(f.DependsOn)
	if f.RolloutPercentage != nil {
		p := *f.RolloutPercentage
		c.RolloutPercentage = &p
	}
	return c
}

// Patch is a partial flag override. Nil fields leave the flag untouched.
type Patch struct {
	Enabled           *bool             `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	RolloutPercentage *int              `json:"rolloutPercentage,omitempty" yaml:"rolloutPercentage,omitempty"`
	Environments      *[]string         `json:"environments,omitempty" yaml:"environments,omitempty"`
	AppTypes          *[]models.AppType `json:"appTypes,omitempty" yaml:"appTypes,omitempty"`
	Description       *string           `json:"description,omitempty" yaml:"description,omitempty"`
}

// Apply merges the patch into f and returns the result.
func (p Patch) Apply(f Flag) Flag {
	out := f.clone()
	if p.Enabled != nil {
		out.Enabled = *p.Enabled
	}
	if p.RolloutPercentage != nil {
		r := *p.RolloutPercentage
		out.RolloutPercentage = &r
	}
	if p.Environments != nil {
		out.Environments = slices.Clone(*p.Environments)
	}
	if p.AppTypes != nil {
		out.AppTypes = slices.Clone(*p.AppTypes)
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	return out
}

// Definitions is the full flag configuration: base flags plus environment and
// app-type override layers.
type Definitions struct {
	Flags        map[Key]Flag
	EnvOverrides map[string]map[Key]Patch
	AppOverrides map[models.AppType]map[Key]Patch
}

func (d Definitions) clone() Definitions {
	out := Definitions{
		Flags:        make(map[Key]Flag, len(d.Flags)),
		EnvOverrides: make(map[string]map[Key]Patch, len(d.EnvOverrides)),
		AppOverrides: make(map[models.AppType]map[Key]Patch, len(d.AppOverrides)),
	}
	for k, f := range d.Flags {
		out.Flags[k] = f.clone()
	}
	for env, patches := range d.EnvOverrides {
		out.EnvOverrides[env] = clonePatches(patches)
	}
	for app, patches := range d.AppOverrides {
		out.AppOverrides[app] = clonePatches(patches)
	}
	return out
}

func clonePatches(in map[Key]Patch) map[Key]Patch {
	out := make(map[Key]Patch, len(in))
	for k, p := range in {
		out[k] = p
	}
	return out
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

// DefaultDefinitions returns the flag set every application starts from.
func DefaultDefinitions() Definitions {
	flags := []Flag{
		{Key: EnhancedJWTClaims, Enabled: true, Description: "Enhanced JWT claims with roles and permissions"},
		{Key: CrossAppValidation, Enabled: true, Description: "Cross-application session validation"},
		{Key: AuditLogging, Enabled: true, Description: "Comprehensive audit logging for auth events"},
		{Key: SessionRefresh, Enabled: true, Description: "Automatic session refresh functionality"},
		{Key: RoleBasedAccess, Enabled: true, Description: "Role-based access control"},
		{Key: SecureCookies, Enabled: true, Description: "Enhanced cookie security settings"},
		{Key: MigrationMode, Enabled: false, RolloutPercentage: intPtr(0), Description: "Migration mode for gradual rollout"},
		{Key: LegacyCompatibility, Enabled: true, Description: "Backward compatibility with legacy auth"},
		{Key: AdvancedMonitoring, Enabled: false, RolloutPercentage: intPtr(25), Description: "Advanced monitoring and metrics"},
		{Key: CustomProviders, Enabled: false, Description: "Custom authentication providers"},
	}
	defs := Definitions{Flags: make(map[Key]Flag, len(flags))}
	for _, f := range flags {
		defs.Flags[f.Key] = f
	}

	defs.EnvOverrides = map[string]map[Key]Patch{
		"development": {
			MigrationMode:      {Enabled: boolPtr(false), RolloutPercentage: intPtr(0)},
			AdvancedMonitoring: {Enabled: boolPtr(true), RolloutPercentage: intPtr(100)},
			CustomProviders:    {Enabled: boolPtr(true)},
		},
		"staging": {
			MigrationMode:      {Enabled: boolPtr(true), RolloutPercentage: intPtr(50)},
			AdvancedMonitoring: {Enabled: boolPtr(true), RolloutPercentage: intPtr(75)},
		},
		"production": {
			MigrationMode:      {Enabled: boolPtr(false), RolloutPercentage: intPtr(0)},
			AdvancedMonitoring: {Enabled: boolPtr(true), RolloutPercentage: intPtr(25)},
		},
	}
	defs.AppOverrides = map[models.AppType]map[Key]Patch{
		models.AppAdmin: {
			AdvancedMonitoring: {Enabled: boolPtr(true), RolloutPercentage: intPtr(100)},
			CustomProviders:    {Enabled: boolPtr(true)},
		},
		models.AppPartner: {
			RoleBasedAccess:    {Enabled: boolPtr(true)},
			CrossAppValidation: {Enabled: boolPtr(true)},
		},
		models.AppFrontend: {
			LegacyCompatibility: {Enabled: boolPtr(true)},
		},
	}
	return defs
}
