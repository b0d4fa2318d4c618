package models

import (
	"maps"
	"slices"
	"time"
)

// CredentialsAccessToken marks tokens issued by the pure credentials flow, where
// the Identity Provider hands back no OAuth token pair.
const CredentialsAccessToken = "credentials-token"

// Identity is the base identity returned by the Identity Provider.
// Roles is nil when the provider did not supply roles; an empty non-nil slice
// means the provider asserted "no roles".
type Identity struct {
	ID          string
	Email       string
	DisplayName string
	Roles       []string
	RawRole     string
}

// HasAuthoritativeRoles reports whether the provider supplied a roles array.
func (i *Identity) HasAuthoritativeRoles() bool {
	return i != nil && i.Roles != nil
}

// RoleSource records where a token's roles came from.
type RoleSource string

const (
	// RoleSourceProvider roles were asserted by the Identity Provider and are
	// kept as-is when the token is re-enriched.
	RoleSourceProvider RoleSource = "provider"
	// RoleSourceFallback roles were derived locally and are re-resolved.
	RoleSourceFallback RoleSource = "fallback"
)

// ProviderTokens is the optional OAuth pair handed back at sign-in.
type ProviderTokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// EnrichedToken is the server-side view of one login session.
// SubjectID and Email never change after Issue.
type EnrichedToken struct {
	SubjectID   string
	Email       string
	DisplayName string
	SessionID   string

	AccessToken          string
	AccessTokenExpiresAt *time.Time // nil means the access token never expires
	RefreshToken         *string    // nil disables refresh

	Roles       []string
	RoleSource  RoleSource
	Permissions []string
	AppType     AppType
	Metadata    map[string]string
	IsActive    bool

	// LegacyRole is the single role string legacy shims carry instead of Roles.
	LegacyRole string

	IssuedAt      time.Time
	LastRefreshAt time.Time

	Error ErrorKind
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (t *EnrichedToken) Clone() *EnrichedToken {
	if t == nil {
		return nil
	}
	c := *t
	c.Roles = slices.Clone(t.Roles)
	c.Permissions = slices.Clone(t.Permissions)
	c.Metadata = maps.Clone(t.Metadata)
	if t.AccessTokenExpiresAt != nil {
		exp := *t.AccessTokenExpiresAt
		c.AccessTokenExpiresAt = &exp
	}
	if t.RefreshToken != nil {
		rt := *t.RefreshToken
		c.RefreshToken = &rt
	}
	return &c
}

// CanRefresh reports whether the token structurally supports refresh.
func (t *EnrichedToken) CanRefresh() bool {
	return t != nil && t.RefreshToken != nil && *t.RefreshToken != ""
}

// Usable reports whether the token may authorize any action.
func (t *EnrichedToken) Usable() bool {
	return t != nil && !t.Error.IsSet()
}

// WithError returns a copy of the token flagged with kind. Identity and roles are kept
// so the UI can still show who the user was.
func (t *EnrichedToken) WithError(kind ErrorKind) *EnrichedToken {
	c := t.Clone()
	c.Error = kind
	return c
}

// SessionUser is the user block of an EnrichedSession.
type SessionUser struct {
	ID          string            `json:"id"`
	Email       string            `json:"email"`
	Name        string            `json:"name,omitempty"`
	Role        string            `json:"role,omitempty"`
	Roles       []string          `json:"roles"`
	Permissions []string          `json:"permissions"`
	AppType     AppType           `json:"appType"`
	IsActive    bool              `json:"isActive"`
	Metadata    map[string]string `json:"metadata"`
}

// EnrichedSession is derived from an EnrichedToken on every access and handed to the UI.
// It is never persisted on its own.
type EnrichedSession struct {
	User        SessionUser `json:"user"`
	AccessToken string      `json:"accessToken,omitempty"`
	Expires     time.Time   `json:"expires"`
	Error       ErrorKind   `json:"error,omitempty"`
	// Reason carries the validator's explanation for server-side logging only.
	Reason string `json:"-"`
}

// ValidationSource records where a validation decision was made.
type ValidationSource string

const (
	SourceLocal  ValidationSource = "local"
	SourceRemote ValidationSource = "remote"
)

// ValidationResult is the output of one validation call. Never persisted.
type ValidationResult struct {
	IsValid       bool
	Reason        string
	ShouldRefresh bool
	ErrorKind     ErrorKind
	Source        ValidationSource
}

// Valid builds a passing local result.
func Valid() ValidationResult {
	return ValidationResult{IsValid: true, Source: SourceLocal}
}

// Invalid builds a failing local result.
func Invalid(kind ErrorKind, reason string) ValidationResult {
	return ValidationResult{IsValid: false, Reason: reason, ErrorKind: kind, Source: SourceLocal}
}
