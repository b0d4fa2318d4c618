package sentinel

import "errors"

// Sentinel dependency errors. Stores and the identity provider client return
// these (optionally wrapped) so services translate them into domain errors
// exactly once.
var (
	ErrNotFound    = errors.New("not found")
	ErrAlreadyUsed = errors.New("already used")
	ErrUnavailable = errors.New("unavailable")
	ErrTimeout     = errors.New("timeout")
)
