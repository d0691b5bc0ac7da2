package core

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorType represents the class of a failure surfaced to callers.
type ErrorType string

const (
	// ErrorTypeProvider indicates an upstream service error (5xx).
	ErrorTypeProvider ErrorType = "provider_error"
	// ErrorTypeRateLimit indicates a rate limit error (429).
	ErrorTypeRateLimit ErrorType = "rate_limit_error"
	// ErrorTypeInvalidRequest indicates a client error (4xx).
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	// ErrorTypeAuthentication indicates an authentication error (401/403).
	ErrorTypeAuthentication ErrorType = "authentication_error"
	// ErrorTypeNotFound indicates a not found error (404).
	ErrorTypeNotFound ErrorType = "not_found_error"
	// ErrorTypeStream indicates a protocol violation inside an SSE stream:
	// a service-reported error event or a frame that was not valid JSON.
	ErrorTypeStream ErrorType = "stream_error"
)

// APIError is the single typed error surfaced by the adapter. StatusCode is
// zero when the failure happened below HTTP (network, decode). Detail holds
// the raw error payload from the service for diagnosis.
type APIError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code,omitempty"`
	Provider   string    `json:"provider,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure class may succeed on a later
// attempt: rate limits, upstream 5xx, and sub-HTTP transport failures.
func (e *APIError) Retryable() bool {
	switch {
	case e.Type == ErrorTypeRateLimit:
		return true
	case e.Type == ErrorTypeProvider && (e.StatusCode == 0 || e.StatusCode >= 500):
		return true
	}
	return false
}

// NewProviderError creates a new upstream service error.
func NewProviderError(provider string, statusCode int, message string, err error) *APIError {
	return &APIError{
		Type:       ErrorTypeProvider,
		Message:    message,
		StatusCode: statusCode,
		Provider:   provider,
		Err:        err,
	}
}

// NewRateLimitError creates a new rate limit error (429).
func NewRateLimitError(provider string, message string) *APIError {
	return &APIError{
		Type:       ErrorTypeRateLimit,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
		Provider:   provider,
	}
}

// NewInvalidRequestError creates a new invalid request error (400).
func NewInvalidRequestError(message string, err error) *APIError {
	return &APIError{
		Type:       ErrorTypeInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

// NewAuthenticationError creates a new authentication error carrying the
// observed status (401 or 403).
func NewAuthenticationError(provider string, statusCode int, message string) *APIError {
	return &APIError{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: statusCode,
		Provider:   provider,
	}
}

// NewStreamError creates a stream protocol error. Detail carries the raw
// offending frame so callers can diagnose without inspecting internals.
func NewStreamError(provider, message, detail string, err error) *APIError {
	return &APIError{
		Type:     ErrorTypeStream,
		Message:  message,
		Provider: provider,
		Detail:   detail,
		Err:      err,
	}
}

// ParseAPIError parses an error response from the service and returns an
// appropriate APIError. The raw body is preserved in Detail.
func ParseAPIError(provider string, statusCode int, body []byte, originalErr error) *APIError {
	// Most OpenAI-compatible services wrap errors as {"error":{"message":...}}
	var errorResponse struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	message := string(body)
	if err := json.Unmarshal(body, &errorResponse); err == nil && errorResponse.Error.Message != "" {
		message = errorResponse.Error.Message
	}

	var apiErr *APIError
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		apiErr = NewAuthenticationError(provider, statusCode, message)
	case statusCode == http.StatusTooManyRequests:
		apiErr = NewRateLimitError(provider, message)
	case statusCode == http.StatusNotFound:
		apiErr = &APIError{Type: ErrorTypeNotFound, Message: message, StatusCode: statusCode, Provider: provider}
	case statusCode >= 400 && statusCode < 500:
		apiErr = &APIError{Type: ErrorTypeInvalidRequest, Message: message, StatusCode: statusCode, Provider: provider, Err: originalErr}
	default:
		apiErr = NewProviderError(provider, statusCode, message, originalErr)
	}
	apiErr.Detail = string(body)
	return apiErr
}
