package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	err := NewError(ErrGenerationFailed, "mesh generation failed")
	assert.Equal(t, "[GENERATION_FAILED] mesh generation failed", err.Error())

	cause := errors.New("connection refused")
	err = NewError(ErrUpstreamError, "trellis unreachable").WithCause(cause)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestError_Builders(t *testing.T) {
	err := NewError(ErrQuotaExceeded, "quota exceeded").
		WithHTTPStatus(402).
		WithRetryable(true).
		WithProvider("gemini")

	assert.Equal(t, 402, err.HTTPStatus)
	assert.True(t, err.Retryable)
	assert.Equal(t, "gemini", err.Provider)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewError(ErrUpstreamTimeout, "timeout").WithRetryable(true)))
	assert.False(t, IsRetryable(NewError(ErrInvalidRequest, "bad")))
	assert.False(t, IsRetryable(errors.New("plain error")))
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, ErrGenerationBusy, GetErrorCode(NewError(ErrGenerationBusy, "busy")))
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
}
