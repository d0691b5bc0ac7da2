// Package llmclient provides the base HTTP client for LLM providers with:
// - Request marshaling/unmarshaling
// - Bounded retries with exponential backoff and jitter
// - Failure classification (429/5xx/network retryable, other 4xx fatal)
// - Per-attempt timeouts and circuit breaking
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"modelstream/internal/core"
	"modelstream/internal/metrics"
	"modelstream/internal/pkg/httpclient"
)

// Config holds configuration for the LLM client.
type Config struct {
	// ProviderName identifies the provider for error messages
	ProviderName string

	// BaseURL is the API base URL
	BaseURL string

	// Retry configuration
	MaxRetries     int           // Maximum number of retry attempts (default: 3)
	InitialBackoff time.Duration // Initial backoff duration (default: 1s)
	MaxBackoff     time.Duration // Maximum backoff duration (default: 30s)
	BackoffFactor  float64       // Backoff multiplier (default: 2.0)
	Jitter         bool          // Randomize delays to avoid thundering herds

	// Circuit breaker configuration
	CircuitBreaker *CircuitBreakerConfig
}

// CircuitBreakerConfig holds circuit breaker settings.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of failures before opening the circuit
	FailureThreshold int
	// SuccessThreshold is the number of successes needed to close an open circuit
	SuccessThreshold int
	// Timeout is how long to wait before attempting to close an open circuit
	Timeout time.Duration
}

// DefaultConfig returns default client configuration.
func DefaultConfig(providerName, baseURL string) Config {
	return Config{
		ProviderName:   providerName,
		BaseURL:        baseURL,
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
		CircuitBreaker: &CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
		},
	}
}

// HeaderSetter is a function that sets headers on an HTTP request.
type HeaderSetter func(req *http.Request)

// Client is a base HTTP client for LLM providers.
type Client struct {
	httpClient     *http.Client
	config         Config
	headerSetter   HeaderSetter
	circuitBreaker *circuitBreaker
	logger         *slog.Logger
}

// New creates a new LLM client with the given configuration.
func New(config Config, headerSetter HeaderSetter) *Client {
	return NewWithHTTPClient(httpclient.NewDefaultHTTPClient(), config, headerSetter)
}

// NewWithHTTPClient creates a new LLM client with a custom HTTP client.
func NewWithHTTPClient(httpClient *http.Client, config Config, headerSetter HeaderSetter) *Client {
	c := &Client{
		httpClient:   httpClient,
		config:       config,
		headerSetter: headerSetter,
		logger:       slog.Default().With("provider", config.ProviderName),
	}

	if config.CircuitBreaker != nil {
		c.circuitBreaker = newCircuitBreaker(
			config.CircuitBreaker.FailureThreshold,
			config.CircuitBreaker.SuccessThreshold,
			config.CircuitBreaker.Timeout,
		)
	}

	return c
}

// SetBaseURL updates the base URL.
func (c *Client) SetBaseURL(url string) {
	c.config.BaseURL = url
}

// BaseURL returns the current base URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Request represents an HTTP request to be made.
type Request struct {
	Method   string
	Endpoint string
	Body     any // Will be JSON marshaled if not nil
	Headers  map[string]string

	// Timeout bounds each individual attempt. Exceeding it cancels the
	// in-flight attempt and counts as a retryable network failure against
	// the same attempt budget. Zero means no per-attempt bound.
	Timeout time.Duration
}

// Response represents an HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Do executes a request with retries and circuit breaking, then unmarshals the response.
func (c *Client) Do(ctx context.Context, req Request, result any) error {
	resp, err := c.DoRaw(ctx, req)
	if err != nil {
		return err
	}

	if result != nil {
		if err := json.Unmarshal(resp.Body, result); err != nil {
			return core.NewProviderError(c.config.ProviderName, http.StatusBadGateway, "failed to unmarshal response: "+err.Error(), err)
		}
	}

	return nil
}

// DoRaw executes a request with retries and circuit breaking, returning the raw response.
func (c *Client) DoRaw(ctx context.Context, req Request) (*Response, error) {
	var resp *Response
	err := c.withRetries(ctx, req, func(ctx context.Context) (finished bool, err error) {
		attemptCtx := ctx
		if req.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, req.Timeout)
			defer cancel()
		}
		r, status, body, err := c.attempt(attemptCtx, req)
		if err != nil {
			return false, err
		}
		if status < 200 || status > 299 {
			return false, core.ParseAPIError(c.config.ProviderName, status, body, nil)
		}
		resp = r
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// DoStream executes a streaming request, returning the response body for
// the SSE pipeline. Only attempts that fail before any body bytes are
// delivered (transport errors, non-2xx statuses) are retried; once the
// body is handed to the caller there are no further attempts. The caller
// must close the returned body.
func (c *Client) DoStream(ctx context.Context, req Request) (io.ReadCloser, error) {
	var body io.ReadCloser
	err := c.withRetries(ctx, req, func(ctx context.Context) (finished bool, err error) {
		// The per-attempt timeout bounds time to response headers only:
		// once the body is handed over, the stream lives until the caller
		// closes it (or the parent context ends). A deadline context
		// would fire mid-stream, so arm a stoppable timer instead.
		attemptCtx, cancel := context.WithCancel(ctx)
		var timer *time.Timer
		if req.Timeout > 0 {
			timer = time.AfterFunc(req.Timeout, cancel)
		}
		fail := func() {
			if timer != nil {
				timer.Stop()
			}
			cancel()
		}

		httpReq, err := c.buildRequest(attemptCtx, req)
		if err != nil {
			fail()
			return true, err
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			fail()
			return false, c.networkError(err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			respBody, readErr := io.ReadAll(resp.Body)
			if readErr != nil {
				respBody = []byte("failed to read error response")
			}
			_ = resp.Body.Close()
			fail()
			return false, core.ParseAPIError(c.config.ProviderName, resp.StatusCode, respBody, nil)
		}

		if timer != nil {
			timer.Stop()
		}
		body = &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// withRetries drives the attempt loop: Idle -> Attempting -> Success, or
// RetryableFailure -> (backoff) -> Attempting, or NonRetryableFailure ->
// Failed. The attempt budget is MaxRetries+1 physical attempts; retryable
// HTTP statuses and network failures share it.
func (c *Client) withRetries(ctx context.Context, req Request, attempt func(ctx context.Context) (bool, error)) error {
	if c.circuitBreaker != nil && !c.circuitBreaker.Allow() {
		return core.NewProviderError(c.config.ProviderName, http.StatusServiceUnavailable,
			"circuit breaker is open - provider temporarily unavailable", nil)
	}

	maxAttempts := c.config.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attemptN := 1; attemptN <= maxAttempts; attemptN++ {
		if attemptN > 1 {
			backoff := c.calculateBackoff(attemptN - 1)
			c.logger.Debug("retrying request",
				"endpoint", req.Endpoint,
				"attempt", attemptN,
				"backoff", backoff,
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		finished, err := attempt(ctx)

		if err == nil {
			metrics.RequestAttempts.WithLabelValues(c.config.ProviderName, metrics.OutcomeSuccess).Inc()
			if c.circuitBreaker != nil {
				c.circuitBreaker.RecordSuccess()
			}
			return nil
		}

		// A finished attempt carries a terminal error regardless of class
		// (e.g. request construction failures).
		if finished || !isRetryableError(err) {
			metrics.RequestAttempts.WithLabelValues(c.config.ProviderName, metrics.OutcomeFatal).Inc()
			if c.circuitBreaker != nil && isServerError(err) {
				c.circuitBreaker.RecordFailure()
			}
			return err
		}

		metrics.RequestAttempts.WithLabelValues(c.config.ProviderName, metrics.OutcomeRetryable).Inc()
		if c.circuitBreaker != nil {
			c.circuitBreaker.RecordFailure()
		}
		lastErr = err

		// The caller's context ending is terminal even when the attempt
		// error itself would have been retryable.
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	metrics.RetriesExhausted.WithLabelValues(c.config.ProviderName).Inc()
	return c.exhaustedError(maxAttempts, lastErr)
}

// exhaustedError wraps the last observed failure with attempt-count context.
func (c *Client) exhaustedError(attempts int, lastErr error) error {
	msg := fmt.Sprintf("request failed after %d attempts", attempts)
	if apiErr := asAPIError(lastErr); apiErr != nil {
		wrapped := *apiErr
		wrapped.Message = msg + ": " + apiErr.Message
		wrapped.Err = lastErr
		return &wrapped
	}
	return core.NewProviderError(c.config.ProviderName, http.StatusBadGateway, msg, lastErr)
}

// attempt performs one physical HTTP round trip and reads the full body.
func (c *Client) attempt(ctx context.Context, req Request) (*Response, int, []byte, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, 0, nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, nil, c.networkError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, nil, c.networkError(err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, resp.StatusCode, body, nil
}

// networkError classifies a sub-HTTP failure (connection reset, timeout,
// cancelled attempt) as a retryable provider error with no status code.
func (c *Client) networkError(err error) error {
	return &core.APIError{
		Type:     core.ErrorTypeProvider,
		Message:  "request failed: " + err.Error(),
		Provider: c.config.ProviderName,
		Err:      err,
	}
}

// buildRequest creates an HTTP request from a Request.
func (c *Client) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	url := c.config.BaseURL + req.Endpoint

	var bodyReader io.Reader
	if req.Body != nil {
		bodyBytes, err := json.Marshal(req.Body)
		if err != nil {
			return nil, core.NewInvalidRequestError("failed to marshal request", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, bodyReader)
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to create request", err)
	}

	// Set default content type for requests with body
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	// Apply provider-specific headers
	if c.headerSetter != nil {
		c.headerSetter(httpReq)
	}

	// Apply request-specific headers
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	return httpReq, nil
}

// calculateBackoff returns the delay before attempt n+1. The curve is
// exponential with a cap, optionally jittered by up to 25%; it is
// non-decreasing in the number of prior attempts and bounded above.
func (c *Client) calculateBackoff(priorAttempts int) time.Duration {
	backoff := float64(c.config.InitialBackoff) * math.Pow(c.config.BackoffFactor, float64(priorAttempts-1))
	if backoff > float64(c.config.MaxBackoff) {
		backoff = float64(c.config.MaxBackoff)
	}
	if c.config.Jitter {
		backoff += backoff * 0.25 * rand.Float64()
		if backoff > float64(c.config.MaxBackoff) {
			backoff = float64(c.config.MaxBackoff)
		}
	}
	return time.Duration(backoff)
}

// isRetryableError reports whether the failure may succeed on a later
// attempt: 429, any 5xx, or a sub-HTTP transport failure.
func isRetryableError(err error) bool {
	if apiErr := asAPIError(err); apiErr != nil {
		return apiErr.Retryable()
	}
	return false
}

// isServerError reports whether the failure should trip the circuit
// breaker: upstream 5xx and transport failures, but not caller mistakes.
func isServerError(err error) bool {
	if apiErr := asAPIError(err); apiErr != nil {
		return apiErr.Type == core.ErrorTypeProvider
	}
	return false
}

func asAPIError(err error) *core.APIError {
	var apiErr *core.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}

// cancelReadCloser ties the request's cancel function to the body so the
// connection is released exactly once, when the caller closes the stream.
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
	once   sync.Once
}

func (c *cancelReadCloser) Close() error {
	var err error
	c.once.Do(func() {
		err = c.ReadCloser.Close()
		c.cancel()
	})
	return err
}
