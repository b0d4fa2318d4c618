package models

import (
	"fmt"
	"strings"
)

// AppType identifies one of the consuming front-ends. The set is closed.
type AppType string

const (
	AppFrontend AppType = "frontend"
	AppPartner  AppType = "partner"
	AppAdmin    AppType = "admin"
)

// AppTypes lists every consuming application in a stable order.
var AppTypes = []AppType{AppFrontend, AppPartner, AppAdmin}

func (a AppType) IsValid() bool {
	return a == AppFrontend || a == AppPartner || a == AppAdmin
}

func (a AppType) String() string {
	return string(a)
}

// ParseAppType accepts any casing and surrounding whitespace.
func ParseAppType(raw string) (AppType, error) {
	app := AppType(strings.ToLower(strings.TrimSpace(raw)))
	if !app.IsValid() {
		return "", fmt.Errorf("unknown app type %q", raw)
	}
	return app, nil
}

// Well-known role names. Identity providers may send others; they pass through.
const (
	RoleUser         = "user"
	RoleViewer       = "viewer"
	RolePartner      = "partner"
	RoleBusinessUser = "business_user"
	RoleAdmin        = "admin"
	RoleSuperAdmin   = "super_admin"
)

// ErrorKind is the sentinel carried on a token or session instead of a thrown error.
// Any non-empty kind means the UI must force re-authentication.
type ErrorKind string

const (
	ErrorNone                  ErrorKind = ""
	ErrorMissingSessionOrToken ErrorKind = "MissingSessionOrToken"
	ErrorTokenExpired          ErrorKind = "TokenExpired"
	ErrorSessionExpired        ErrorKind = "SessionExpired"
	ErrorRefreshFailed         ErrorKind = "RefreshFailed"
	ErrorRefreshTokenReused    ErrorKind = "RefreshTokenReused"
	ErrorIdentityMismatch      ErrorKind = "IdentityMismatch"
	ErrorInsufficientRole      ErrorKind = "InsufficientRole"
	ErrorInsufficientPerm      ErrorKind = "InsufficientPermission"
	ErrorAppMismatch           ErrorKind = "AppMismatch"
	ErrorValidationTimeout     ErrorKind = "ValidationTimeout"
	ErrorSessionValidation     ErrorKind = "SessionValidationFailed"
	ErrorCallbackFailed        ErrorKind = "CallbackFailed"
)

func (k ErrorKind) IsSet() bool {
	return k != ErrorNone
}

func (k ErrorKind) String() string {
	return string(k)
}

// EvaluationContext is built once at the top of a request and threaded down to
// every feature flag decision made while serving it.
type EvaluationContext struct {
	Env     string
	AppType AppType
	UserID  string
}

// WithUser returns a copy of the context scoped to a user.
func (c EvaluationContext) WithUser(userID string) EvaluationContext {
	c.UserID = userID
	return c
}
