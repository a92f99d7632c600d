package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrCodeNotFound, CodeOf(NotFound("request", "abc")))
	assert.Equal(t, ErrCodeValidation, CodeOf(InvalidInput("title", "required")))
	assert.Equal(t, ErrCodeUnauthorized, CodeOf(Unauthorized("nope")))
	assert.Equal(t, ErrCodeConflict, CodeOf(Conflict("stale")))
	assert.Equal(t, ErrCodeExternal, CodeOf(External("roster", stderrors.New("timeout"))))
	assert.Equal(t, ErrCodeInternal, CodeOf(stderrors.New("plain")))
}

func TestCodeOf_Wrapped(t *testing.T) {
	inner := Conflict("stale")
	wrapped := fmt.Errorf("saving request: %w", inner)
	assert.Equal(t, ErrCodeConflict, CodeOf(wrapped))
	assert.True(t, Is(wrapped, ErrCodeConflict))
	assert.False(t, Is(wrapped, ErrCodeNotFound))
}

func TestWrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(cause, ErrCodeExternal, "roster unreachable")
	require.Error(t, err)
	assert.Equal(t, ErrCodeExternal, CodeOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "roster unreachable")
	assert.Contains(t, err.Error(), "connection refused")

	assert.NoError(t, Wrap(nil, ErrCodeInternal, "ignored"))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(InvalidInput("period", "required")))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(Unauthorized("nope")))
	assert.Equal(t, http.StatusConflict, HTTPStatus(Conflict("stale")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound("request", "abc")))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(External("roster", stderrors.New("down"))))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(stderrors.New("plain")))
}
