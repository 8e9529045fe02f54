package sdkerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSdkError_Retriable(t *testing.T) {
	tests := []struct {
		name string
		err  *SdkError
		want bool
	}{
		{"api 408", NewAPIError(408, "timeout", ""), true},
		{"api 409", NewAPIError(409, "conflict", ""), true},
		{"api 425", NewAPIError(425, "too early", ""), true},
		{"api 429", NewAPIError(429, "rate limited", ""), true},
		{"api 500", NewAPIError(500, "server error", ""), true},
		{"api 501", NewAPIError(501, "not implemented", ""), false},
		{"api 505", NewAPIError(505, "http version", ""), false},
		{"api 404", NewAPIError(404, "not found", ""), false},
		{"api 400", NewAPIError(400, "bad request", ""), false},
		{"http error", Wrap(KindHTTP, "connection reset", errors.New("reset")), true},
		{"timeout error", New(KindTimeout, "deadline exceeded"), true},
		{"invalid request", NewInvalidRequest("empty messages"), false},
		{"stream invariant", NewStreamInvariantViolation("duplicate MessageStart"), false},
		{"retry exhausted", NewRetryExhausted(3, errors.New("x")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Retriable())
		})
	}
}

func TestSdkError_Unwrap(t *testing.T) {
	cause := errors.New("network reset")
	err := Wrap(KindHTTP, "dial failed", cause)

	require.ErrorIs(t, err, cause)
}

func TestSdkError_Error_APIError(t *testing.T) {
	err := NewAPIError(429, "rate limited", "rate_limit_exceeded")
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "rate_limit_exceeded")
}

func TestSdkError_Error_RetryExhausted(t *testing.T) {
	last := NewAPIError(503, "unavailable", "")
	err := NewRetryExhausted(3, last)
	assert.Contains(t, err.Error(), "3 attempts")
	assert.Contains(t, err.Error(), "unavailable")
}
