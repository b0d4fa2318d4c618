package provider

import (
	"errors"
	"fmt"

	"sharedauth/pkg/platform/sentinel"
)

// ErrorKind is the normalized failure taxonomy for Identity Provider calls.
type ErrorKind string

const (
	// ErrorTimeout means the call did not finish before its deadline.
	ErrorTimeout ErrorKind = "timeout"
	// ErrorNetwork means no response was received, or the circuit is open.
	ErrorNetwork ErrorKind = "network"
	// ErrorRejected means the provider refused the request (4xx).
	ErrorRejected ErrorKind = "rejected"
	// ErrorReused means the refresh token was already used or rotated.
	ErrorReused ErrorKind = "reused"
	// ErrorServer means the provider failed (5xx).
	ErrorServer ErrorKind = "server"
	// ErrorBadResponse means a 2xx response could not be understood.
	ErrorBadResponse ErrorKind = "bad_response"
)

// Error wraps one failed provider call.
type Error struct {
	Kind     ErrorKind
	Endpoint string
	Status   int
	Message  string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("identity provider %s [%s]", e.Endpoint, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" status %d", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets callers match provider failures against the dependency sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case sentinel.ErrTimeout:
		return e.Kind == ErrorTimeout
	case sentinel.ErrUnavailable:
		return e.Kind == ErrorNetwork || e.Kind == ErrorServer
	case sentinel.ErrAlreadyUsed:
		return e.Kind == ErrorReused
	}
	return false
}

// KindOf extracts the error kind, defaulting to ErrorNetwork for foreign errors.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ErrorNetwork
}

// trips reports whether the failure should count against the circuit breaker.
func (k ErrorKind) trips() bool {
	return k == ErrorTimeout || k == ErrorNetwork || k == ErrorServer
}
