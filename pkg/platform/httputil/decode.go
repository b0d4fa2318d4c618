package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	dErrors "sharedauth/pkg/domain-errors"
)

// MaxBodyBytes bounds admin command bodies. Flag patches and migration
// commands are a few hundred bytes at most.
const MaxBodyBytes = 64 << 10

// Validatable is implemented by request types that check themselves after
// decoding.
type Validatable interface {
	Validate() error
}

// Normalizable is implemented by request types that fill defaults or fold
// case before validation.
type Normalizable interface {
	Normalize()
}

// DecodeJSON reads exactly one JSON object from the request body into a T,
// then normalizes and validates it. Unknown fields, trailing data, an empty
// body and bodies over MaxBodyBytes are rejected. On failure it writes the
// error response and returns nil, false.
//
//	req, ok := httputil.DecodeJSON[phaseRequest](w, r, h.logger, requestID)
//	if !ok {
//	    return
//	}
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, requestID string) (*T, bool) {
	var req T
	if err := decodeStrict(w, r, &req); err != nil {
		logger.WarnContext(r.Context(), "rejected request body",
			"error", err,
			"path", r.URL.Path,
			"request_id", requestID,
		)
		WriteError(w, err)
		return nil, false
	}

	if err := PrepareRequest(&req); err != nil {
		logger.WarnContext(r.Context(), "invalid request",
			"error", err,
			"path", r.URL.Path,
			"request_id", requestID,
		)
		var domainErr *dErrors.Error
		if !errors.As(err, &domainErr) {
			err = dErrors.New(dErrors.CodeInvalidInput, err.Error())
		}
		WriteError(w, err)
		return nil, false
	}
	return &req, true
}

// PrepareRequest normalizes, then validates a request.
func PrepareRequest(req any) error {
	if n, ok := req.(Normalizable); ok {
		n.Normalize()
	}
	if v, ok := req.(Validatable); ok {
		return v.Validate()
	}
	return nil
}

func decodeStrict(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return dErrors.New(dErrors.CodeInvalidInput, "request body is required")
		case errors.As(err, &tooLarge):
			return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		default:
			return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid request body")
		}
	}
	if dec.More() {
		return dErrors.New(dErrors.CodeInvalidInput, "request body must hold a single JSON object")
	}
	return nil
}
