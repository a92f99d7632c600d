package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/logger"
)

func newTestHandler() *HTTPHandler {
	return NewHTTPHandler(nil, &logger.Logger{Logger: zerolog.Nop()})
}

func identityRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("X-User-Id", "u-req")
	req.Header.Set("X-User-Name", "Renate Quist")
	req.Header.Set("X-User-Email", "renate@example.com")
	req.Header.Set("X-Entity-Id", "ent-1")
	return req
}

func TestCreateRequest_MissingIdentityHeaders(t *testing.T) {
	h := newTestHandler()

	rec := httptest.NewRecorder()
	h.CreateRequest(rec, httptest.NewRequest(http.MethodPost, "/api/v1/requests", strings.NewReader("{}")))

	assert.Equal(t, http.StatusForbidden, rec.Code)

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(errors.ErrCodeUnauthorized), body.Error.Code)
}

func TestCreateRequest_MalformedBody(t *testing.T) {
	h := newTestHandler()

	rec := httptest.NewRecorder()
	h.CreateRequest(rec, identityRequest(http.MethodPost, "/api/v1/requests", "{not json"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRequest_RequiresID(t *testing.T) {
	h := newTestHandler()

	rec := httptest.NewRecorder()
	h.GetRequest(rec, httptest.NewRequest(http.MethodGet, "/api/v1/requests/get", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDecideStep_MissingIdentityHeaders(t *testing.T) {
	h := newTestHandler()

	rec := httptest.NewRecorder()
	h.DecideStep(rec, httptest.NewRequest(http.MethodPost, "/api/v1/requests/decide", strings.NewReader("{}")))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWriteError_MapsCodesToStatuses(t *testing.T) {
	h := newTestHandler()

	cases := []struct {
		err    error
		status int
		code   errors.Code
	}{
		{errors.InvalidInput("title", "required"), http.StatusBadRequest, errors.ErrCodeValidation},
		{errors.Unauthorized("not the approver"), http.StatusForbidden, errors.ErrCodeUnauthorized},
		{errors.Conflict("stale version"), http.StatusConflict, errors.ErrCodeConflict},
		{errors.NotFound("request", "abc"), http.StatusNotFound, errors.ErrCodeNotFound},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		h.writeError(rec, tc.err)

		assert.Equal(t, tc.status, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, string(tc.code), body.Error.Code)
	}
}
