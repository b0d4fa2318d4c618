package audit

import (
	"time"

	"sharedauth/internal/auth/models"
)

// EventType is the closed set of auth events the recorder accepts.
type EventType string

const (
	EventSignIn           EventType = "sign_in"
	EventSignOut          EventType = "sign_out"
	EventSessionCreated   EventType = "session_created"
	EventSessionUpdated   EventType = "session_updated"
	EventSessionExpired   EventType = "session_expired"
	EventSessionValidated EventType = "session_validated"
	EventTokenRefresh     EventType = "token_refresh"
	EventAuthError        EventType = "auth_error"
	EventPermissionDenied EventType = "permission_denied"
	EventMigration        EventType = "migration_event"
)

func (t EventType) IsValid() bool {
	switch t {
	case EventSignIn, EventSignOut, EventSessionCreated, EventSessionUpdated,
		EventSessionExpired, EventSessionValidated, EventTokenRefresh,
		EventAuthError, EventPermissionDenied, EventMigration:
		return true
	}
	return false
}

// Event is emitted from domain logic to capture key auth actions. It is
// append-only and transport-agnostic so sinks can fan out.
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	UserID    string            `json:"userId,omitempty"`
	Email     string            `json:"email,omitempty"`
	AppType   models.AppType    `json:"appType,omitempty"`
	SessionID string            `json:"sessionId,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"userAgent,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
	Error     string            `json:"error,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Counters are the per-application auth metrics.
type Counters struct {
	SignIns          int64     `json:"signInCount"`
	SignOuts         int64     `json:"signOutCount"`
	Errors           int64     `json:"errorCount"`
	ActiveSessions   int64     `json:"activeSessionCount"`
	TokenRefreshes   int64     `json:"tokenRefreshCount"`
	PermissionDenied int64     `json:"permissionDeniedCount"`
	LastActivity     time.Time `json:"lastActivity"`
}
