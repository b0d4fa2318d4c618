package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "sharedauth/pkg/domain-errors"
)

type phaseRequest struct {
	Phase string `json:"phase"`
}

func (r *phaseRequest) Normalize() {
	if r.Phase == "" {
		r.Phase = "gradual"
	}
}

type rolloutRequest struct {
	Increment int `json:"increment"`
}

func (r *rolloutRequest) Validate() error {
	if r.Increment <= 0 {
		return errors.New("increment must be positive")
	}
	return nil
}

type appRequest struct {
	App string `json:"app"`
}

func (r *appRequest) Validate() error {
	if r.App == "" {
		return dErrors.New(dErrors.CodeNotFound, "app is required")
	}
	return nil
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestDecodeJSON(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	post := func(body string) *http.Request {
		return httptest.NewRequest(http.MethodPost, "/admin/migration/rollout", strings.NewReader(body))
	}

	t.Run("successful decode", func(t *testing.T) {
		result, ok := DecodeJSON[rolloutRequest](httptest.NewRecorder(), post(`{"increment":10}`), logger, "req-1")
		assert.True(t, ok)
		require.NotNil(t, result)
		assert.Equal(t, 10, result.Increment)
	})

	rejected := []struct {
		name string
		body string
		desc string
	}{
		{"invalid JSON", `{invalid`, "invalid request body"},
		{"empty body", ``, "request body is required"},
		{"unknown field", `{"increment":10,"percent":5}`, "invalid request body"},
		{"trailing document", `{"increment":10}{"increment":20}`, "request body must hold a single JSON object"},
		{"oversized body", `{"increment":10,"pad":"` + strings.Repeat("x", MaxBodyBytes) + `"}`, "request body exceeds 65536 bytes"},
	}
	for _, tc := range rejected {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			result, ok := DecodeJSON[rolloutRequest](w, post(tc.body), logger, "req-1")
			assert.False(t, ok)
			assert.Nil(t, result)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			body := decodeError(t, w)
			assert.Equal(t, "bad_request", body["error"])
			assert.Equal(t, tc.desc, body["error_description"])
		})
	}

	t.Run("normalizes before validating", func(t *testing.T) {
		result, ok := DecodeJSON[phaseRequest](httptest.NewRecorder(), post(`{}`), logger, "req-1")
		require.True(t, ok)
		assert.Equal(t, "gradual", result.Phase)
	})

	t.Run("plain validation error becomes bad_request", func(t *testing.T) {
		w := httptest.NewRecorder()
		_, ok := DecodeJSON[rolloutRequest](w, post(`{"increment":0}`), logger, "req-1")
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, "bad_request", body["error"])
		assert.Equal(t, "increment must be positive", body["error_description"])
	})

	t.Run("domain error code is preserved", func(t *testing.T) {
		w := httptest.NewRecorder()
		_, ok := DecodeJSON[appRequest](w, post(`{}`), logger, "req-1")
		assert.False(t, ok)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "not_found", decodeError(t, w)["error"])
	})
}

func TestWriteError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{dErrors.New(dErrors.CodeMissingSessionOrToken, "no session"), http.StatusUnauthorized, "missing_session_or_token"},
		{dErrors.New(dErrors.CodeSessionExpired, "expired"), http.StatusUnauthorized, "session_expired"},
		{dErrors.New(dErrors.CodeInsufficientRole, "nope"), http.StatusForbidden, "insufficient_role"},
		{dErrors.New(dErrors.CodeValidationTimeout, "slow"), http.StatusGatewayTimeout, "validation_timeout"},
		{dErrors.New(dErrors.CodeInvalidPhaseChange, "backwards"), http.StatusConflict, "invalid_phase_change"},
		{dErrors.New(dErrors.CodeRollbackDisabled, "off"), http.StatusConflict, "rollback_disabled"},
		{dErrors.New(dErrors.CodeInvalidFlagConfig, "cycle"), http.StatusBadRequest, "invalid_flag_config"},
		{errors.New("raw"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tc.err)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.code, decodeError(t, w)["error"])
		})
	}

	t.Run("internal details are not exposed", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db password wrong"))
		_, exposed := decodeError(t, w)["error_description"]
		assert.False(t, exposed)
	})
}
