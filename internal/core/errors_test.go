package core

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAPIError_Classification(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantType   ErrorType
		wantMsg    string
	}{
		{
			name:       "unauthorized",
			statusCode: http.StatusUnauthorized,
			body:       `{"error":{"message":"invalid api key"}}`,
			wantType:   ErrorTypeAuthentication,
			wantMsg:    "invalid api key",
		},
		{
			name:       "forbidden",
			statusCode: http.StatusForbidden,
			body:       `{"error":{"message":"no access"}}`,
			wantType:   ErrorTypeAuthentication,
			wantMsg:    "no access",
		},
		{
			name:       "rate limited",
			statusCode: http.StatusTooManyRequests,
			body:       `{"error":{"message":"slow down"}}`,
			wantType:   ErrorTypeRateLimit,
			wantMsg:    "slow down",
		},
		{
			name:       "not found",
			statusCode: http.StatusNotFound,
			body:       `{"error":{"message":"no such model"}}`,
			wantType:   ErrorTypeNotFound,
			wantMsg:    "no such model",
		},
		{
			name:       "bad request",
			statusCode: http.StatusBadRequest,
			body:       `{"error":{"message":"missing messages"}}`,
			wantType:   ErrorTypeInvalidRequest,
			wantMsg:    "missing messages",
		},
		{
			name:       "server error",
			statusCode: http.StatusInternalServerError,
			body:       `{"error":{"message":"boom"}}`,
			wantType:   ErrorTypeProvider,
			wantMsg:    "boom",
		},
		{
			name:       "non-JSON body falls back to raw text",
			statusCode: http.StatusBadGateway,
			body:       "upstream unavailable",
			wantType:   ErrorTypeProvider,
			wantMsg:    "upstream unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := ParseAPIError("openai", tt.statusCode, []byte(tt.body), nil)

			assert.Equal(t, tt.wantType, apiErr.Type)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
			assert.Equal(t, tt.statusCode, apiErr.StatusCode, "observed status must be carried")
			assert.Equal(t, "openai", apiErr.Provider)
			assert.Equal(t, tt.body, apiErr.Detail, "raw body must be preserved")
		})
	}
}

func TestAPIError_Retryable(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want bool
	}{
		{"rate limit", NewRateLimitError("openai", "slow down"), true},
		{"500", NewProviderError("openai", 500, "boom", nil), true},
		{"503", NewProviderError("openai", 503, "down", nil), true},
		{"599", NewProviderError("openai", 599, "odd", nil), true},
		{"network failure (no status)", &APIError{Type: ErrorTypeProvider}, true},
		{"authentication", NewAuthenticationError("openai", 401, "bad key"), false},
		{"forbidden", NewAuthenticationError("openai", 403, "no access"), false},
		{"invalid request", NewInvalidRequestError("bad input", nil), false},
		{"not found", &APIError{Type: ErrorTypeNotFound, StatusCode: 404}, false},
		{"stream error", NewStreamError("openai", "bad frame", "", nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Retryable())
		})
	}
}

func TestAPIError_ErrorString(t *testing.T) {
	withProvider := NewRateLimitError("openai", "slow down")
	assert.Equal(t, "[openai] rate_limit_error: slow down", withProvider.Error())

	withoutProvider := NewInvalidRequestError("bad input", nil)
	assert.Equal(t, "invalid_request_error: bad input", withoutProvider.Error())
}

func TestAPIError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	apiErr := NewProviderError("openai", 502, "upstream failed", cause)

	require.ErrorIs(t, apiErr, cause)
}
