// Package openai provides the OpenAI-compatible provider adapter.
package openai

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"modelstream/internal/cache"
	"modelstream/internal/core"
	"modelstream/internal/pkg/llmclient"
	"modelstream/internal/providers"
	"modelstream/internal/stream"
)

func init() {
	providers.Register("openai", func(cfg providers.Config) (providers.Provider, error) {
		return New(cfg), nil
	})
}

const defaultBaseURL = "https://api.openai.com/v1"

// Provider implements providers.Provider against any OpenAI-compatible
// chat completions endpoint.
type Provider struct {
	client          *llmclient.Client
	apiKey          string
	cache           cache.Cache
	timeout         time.Duration
	wrapToolResults bool
}

// New creates a new provider from resolved configuration.
func New(cfg providers.Config) *Provider {
	p := &Provider{
		apiKey:          cfg.APIKey,
		cache:           cfg.Cache,
		timeout:         cfg.Timeout,
		wrapToolResults: cfg.WrapToolResultArrays,
	}

	clientCfg := llmclient.DefaultConfig("openai", defaultBaseURL)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.MaxRetries > 0 {
		clientCfg.MaxRetries = cfg.MaxRetries
	}
	if cfg.InitialBackoff > 0 {
		clientCfg.InitialBackoff = cfg.InitialBackoff
	}
	if cfg.MaxBackoff > 0 {
		clientCfg.MaxBackoff = cfg.MaxBackoff
	}
	if cfg.BackoffFactor > 0 {
		clientCfg.BackoffFactor = cfg.BackoffFactor
	}

	p.client = llmclient.New(clientCfg, p.setHeaders)
	return p
}

// NewWithHTTPClient creates a provider with a custom HTTP client.
// If httpClient is nil, http.DefaultClient is used.
func NewWithHTTPClient(cfg providers.Config, httpClient *http.Client) *Provider {
	p := New(cfg)
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	clientCfg := llmclient.DefaultConfig("openai", defaultBaseURL)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.MaxRetries > 0 {
		clientCfg.MaxRetries = cfg.MaxRetries
	}
	p.client = llmclient.NewWithHTTPClient(httpClient, clientCfg, p.setHeaders)
	return p
}

// SetBaseURL allows configuring a custom base URL for the provider.
func (p *Provider) SetBaseURL(url string) {
	p.client.SetBaseURL(url)
}

// setHeaders sets the required headers for OpenAI-compatible API requests.
func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	// Forward request ID if present in context using OpenAI's
	// X-Client-Request-Id header. The service requires ASCII-only
	// characters and max 512 bytes, otherwise returns 400.
	if requestID := core.RequestIDFrom(req.Context()); requestID != "" && isValidClientRequestID(requestID) {
		req.Header.Set("X-Client-Request-Id", requestID)
	}
}

// isValidClientRequestID checks if the request ID is valid for the
// X-Client-Request-Id header: ASCII characters only, max 512 characters.
func isValidClientRequestID(id string) bool {
	if len(id) > 512 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] > 127 {
			return false
		}
	}
	return true
}

// normalizeRequest applies the tool-result array compatibility shim to
// outbound tool messages when configured. The caller's request is never
// mutated; cache keys are derived from the normalized form.
func (p *Provider) normalizeRequest(req *core.ChatRequest) *core.ChatRequest {
	if !p.wrapToolResults {
		return req
	}
	changed := false
	messages := make([]core.Message, len(req.Messages))
	for i, msg := range req.Messages {
		if msg.Role == "tool" {
			if wrapped := core.WrapToolResultArray(msg.Content); wrapped != msg.Content {
				msg.Content = wrapped
				changed = true
			}
		}
		messages[i] = msg
	}
	if !changed {
		return req
	}
	out := *req
	out.Messages = messages
	return &out
}

// ChatCompletion sends a blocking chat completion request. Identical
// repeated requests are served from the response cache when one is
// configured.
func (p *Provider) ChatCompletion(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	ctx = core.EnsureRequestID(ctx)
	req = p.normalizeRequest(req)

	var cacheKey string
	if p.cache != nil {
		key, err := cache.Key(req)
		if err == nil {
			cacheKey = key
			if cached, err := p.cache.Get(ctx, cacheKey); err == nil && cached != nil {
				return cached, nil
			} else if err != nil {
				slog.Debug("response cache read failed", "error", err)
			}
		}
	}

	var resp core.ChatResponse
	err := p.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Body:     req,
		Timeout:  p.timeout,
	}, &resp)
	if err != nil {
		return nil, err
	}
	resp.Provider = "openai"
	if resp.Model == "" {
		resp.Model = req.Model
	}

	if p.cache != nil && cacheKey != "" {
		if err := p.cache.Set(ctx, cacheKey, &resp); err != nil {
			slog.Debug("response cache write failed", "error", err)
		}
	}
	return &resp, nil
}

// StreamChatCompletion starts a streaming completion and returns the
// aggregating stream. The stream owns the response body.
func (p *Provider) StreamChatCompletion(ctx context.Context, req *core.ChatRequest) (*stream.ChatStream, error) {
	ctx = core.EnsureRequestID(ctx)
	body, err := p.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Body:     p.normalizeRequest(req).WithStreaming(),
		Timeout:  p.timeout,
	})
	if err != nil {
		return nil, err
	}
	return stream.New(body, stream.WithProvider("openai")), nil
}

// Embeddings sends an embeddings request through the same retrying executor.
func (p *Provider) Embeddings(ctx context.Context, req *core.EmbeddingRequest) (*core.EmbeddingResponse, error) {
	ctx = core.EnsureRequestID(ctx)
	var resp core.EmbeddingResponse
	err := p.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/embeddings",
		Body:     req,
		Timeout:  p.timeout,
	}, &resp)
	if err != nil {
		return nil, err
	}
	resp.Provider = "openai"
	return &resp, nil
}

// ListModels retrieves the list of available models.
func (p *Provider) ListModels(ctx context.Context) (*core.ModelsResponse, error) {
	var resp core.ModelsResponse
	err := p.client.Do(ctx, llmclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/models",
		Timeout:  p.timeout,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
