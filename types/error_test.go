package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorBuilders(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(ErrUpstreamError, "upstream call failed").
		WithCause(cause).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithProvider("openai")

	assert.Equal(t, ErrUpstreamError, err.Code)
	assert.Equal(t, 502, err.HTTPStatus)
	assert.True(t, err.Retryable)
	assert.Equal(t, "openai", err.Provider)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "UPSTREAM_ERROR")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewError(ErrRateLimited, "slow down").WithRetryable(true)))
	assert.False(t, IsRetryable(NewError(ErrInvalidRequest, "bad payload")))
	assert.False(t, IsRetryable(errors.New("plain error")))
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, ErrToolNotFound, GetErrorCode(NewError(ErrToolNotFound, "no such tool")))
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain error")))
}
