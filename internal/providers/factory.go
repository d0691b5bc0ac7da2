// Package providers provides a factory for creating provider instances.
package providers

import (
	"context"
	"fmt"
	"time"

	"modelstream/internal/cache"
	"modelstream/internal/core"
	"modelstream/internal/stream"
)

// Provider is the surface a concrete provider adapter exposes to the
// host framework.
type Provider interface {
	// ChatCompletion sends a blocking chat completion request.
	ChatCompletion(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error)

	// StreamChatCompletion starts a streaming completion. The returned
	// stream owns the response body; callers must Close it.
	StreamChatCompletion(ctx context.Context, req *core.ChatRequest) (*stream.ChatStream, error)

	// Embeddings sends an embeddings request through the same retrying
	// executor as chat.
	Embeddings(ctx context.Context, req *core.EmbeddingRequest) (*core.EmbeddingResponse, error)

	// ListModels retrieves the models available behind the endpoint.
	ListModels(ctx context.Context) (*core.ModelsResponse, error)
}

// Config is the fully resolved configuration for one provider instance.
type Config struct {
	Type    string
	APIKey  string
	BaseURL string

	// Retry/backoff policy; zero values fall back to llmclient defaults.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64

	// Timeout bounds each physical attempt of every request.
	Timeout time.Duration

	// Cache, when non-nil, serves repeated non-streaming completions.
	Cache cache.Cache

	// WrapToolResultArrays enables the compatibility shim that wraps
	// top-level JSON arrays in tool results.
	WrapToolResultArrays bool
}

// Builder creates a provider instance from configuration.
type Builder func(cfg Config) (Provider, error)

// registry holds all registered provider builders.
var registry = make(map[string]Builder)

// Register allows provider packages to register themselves.
// This should be called from init() functions in provider packages.
func Register(providerType string, builder Builder) {
	registry[providerType] = builder
}

// Create instantiates a provider based on configuration.
func Create(cfg Config) (Provider, error) {
	builder, ok := registry[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
	return builder(cfg)
}

// ListRegistered returns a list of all registered provider types.
func ListRegistered() []string {
	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	return types
}
