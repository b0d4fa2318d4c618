package domainerrors

import "errors"

// Code represents an auth failure category independent of transport layer.
// Codes describe what went wrong in session/token terms, not HTTP terms.
type Code string

const (
	CodeInvalidInput Code = "invalid_input"
	CodeInternal     Code = "internal_error"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"

	// Session and token lifecycle failures.
	CodeMissingSessionOrToken Code = "missing_session_or_token"
	CodeTokenExpired          Code = "token_expired"
	CodeSessionExpired        Code = "session_expired"
	CodeIdentityMismatch      Code = "identity_mismatch"
	CodeInsufficientRole      Code = "insufficient_role"
	CodeRefreshFailed         Code = "refresh_failed"
	CodeRefreshTokenReused    Code = "refresh_token_reused"
	CodeNoRefreshToken        Code = "no_refresh_token"
	CodeValidationTimeout     Code = "validation_timeout"
	CodeSignInDenied          Code = "sign_in_denied"

	// Configuration and registration errors. UnknownShim is raised with panic.
	CodeUnknownShim        Code = "unknown_shim"
	CodeInvalidFlagConfig  Code = "invalid_flag_config"
	CodeInvalidPhaseChange Code = "invalid_phase_change"
	CodeRollbackDisabled   Code = "rollback_disabled"
)

// Error wraps auth or infrastructure failures with a stable code.
// It is transport-agnostic and can be used across service, store, and client layers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code is preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code of the outermost domain error in the chain,
// or CodeInternal when err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
