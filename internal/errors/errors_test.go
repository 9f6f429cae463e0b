package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestErrorDistinguishesTransportFromStatus(t *testing.T) {
	transport := NewTransportError(http.MethodPost, "/gamestates", fmt.Errorf("connection refused"))
	assert.True(t, transport.IsTransport())
	assert.True(t, IsTransportError(fmt.Errorf("save: %w", transport)))
	assert.Equal(t, 0, StatusOf(transport))
	assert.Equal(t, "CONNECTION_FAILED", transport.Code)

	rejected := NewStatusError(http.MethodPost, "/gamestates", http.StatusConflict, "", "stale")
	assert.False(t, rejected.IsTransport())
	assert.False(t, IsTransportError(rejected))
	assert.Equal(t, http.StatusConflict, StatusOf(fmt.Errorf("wrapped: %w", rejected)))
	assert.Equal(t, "CONFLICT", rejected.Code)
	assert.Contains(t, rejected.Error(), "stale")
}

func TestNotFoundDetection(t *testing.T) {
	assert.True(t, IsNotFoundError(ErrResourceNotFound))
	assert.True(t, IsNotFoundError(NewStatusError(http.MethodGet, "/x", http.StatusNotFound, "", "")))
	assert.True(t, IsNotFoundError(NewNotFoundError("theme", nil)))
	assert.False(t, IsNotFoundError(NewStatusError(http.MethodGet, "/x", http.StatusInternalServerError, "", "")))
	assert.False(t, IsNotFoundError(nil))
}

func TestWrapErrorKeepsType(t *testing.T) {
	base := NewValidationError("bad payload", nil)
	wrapped := WrapError(base, "save", ErrorTypeError)
	require.Error(t, wrapped)
	assert.True(t, IsValidationError(wrapped))
	assert.Contains(t, wrapped.Error(), "save: bad payload")

	assert.Nil(t, WrapError(nil, "noop", ErrorTypeError))
	assert.True(t, IsUnauthorizedError(NewStatusError(http.MethodGet, "/users/me", http.StatusUnauthorized, "", "")))
}
