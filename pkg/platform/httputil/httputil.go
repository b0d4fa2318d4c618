package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "sharedauth/pkg/domain-errors"
)

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Errors after WriteHeader cannot change the status code, so we ignore encoding errors.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError translates a domain error into a JSON error envelope. Errors
// without a domain code are reported as internal_error with no detail.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		response := map[string]string{
			"error": DomainCodeToHTTPCode(domainErr.Code),
		}
		if domainErr.Message != "" && domainErr.Code != dErrors.CodeInternal {
			response["error_description"] = domainErr.Message
		}
		WriteJSON(w, DomainCodeToHTTPStatus(domainErr.Code), response)
		return
	}

	WriteJSON(w, http.StatusInternalServerError, map[string]string{
		"error": DomainCodeToHTTPCode(dErrors.CodeInternal),
	})
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput, dErrors.CodeInvalidFlagConfig:
		return http.StatusBadRequest
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeInvalidPhaseChange, dErrors.CodeRollbackDisabled:
		return http.StatusConflict
	case dErrors.CodeMissingSessionOrToken, dErrors.CodeTokenExpired, dErrors.CodeSessionExpired,
		dErrors.CodeIdentityMismatch, dErrors.CodeRefreshFailed, dErrors.CodeRefreshTokenReused,
		dErrors.CodeNoRefreshToken, dErrors.CodeSignInDenied:
		return http.StatusUnauthorized
	case dErrors.CodeInsufficientRole:
		return http.StatusForbidden
	case dErrors.CodeValidationTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// DomainCodeToHTTPCode translates domain error codes to the "error" field of
// the JSON envelope.
func DomainCodeToHTTPCode(code dErrors.Code) string {
	switch code {
	case dErrors.CodeInvalidInput:
		return "bad_request"
	case dErrors.CodeUnknownShim, "":
		return string(dErrors.CodeInternal)
	default:
		return string(code)
	}
}
