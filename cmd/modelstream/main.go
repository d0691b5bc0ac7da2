// Package main is the entry point for the modelstream CLI, a thin client
// that streams chat completions from an OpenAI-compatible endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"modelstream/config"
	"modelstream/internal/cache"
	"modelstream/internal/core"
	"modelstream/internal/logging"
	"modelstream/internal/providers"

	// Import provider packages to trigger their init() registration
	_ "modelstream/internal/providers/openai"
)

func main() {
	model := flag.String("model", "", "Model to use (overrides configuration)")
	noStream := flag.Bool("no-stream", false, "Wait for the full response instead of streaming")
	timeout := flag.Duration("timeout", 0, "Per-attempt timeout (overrides configuration)")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	logging.Setup(*verbose)

	prompt := strings.Join(flag.Args(), " ")
	if prompt == "" {
		fmt.Fprintln(os.Stderr, "usage: modelstream [flags] <prompt>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *model != "" {
		cfg.Provider.Model = *model
	}
	if *timeout > 0 {
		cfg.Provider.TimeoutMS = int(timeout.Milliseconds())
	}

	provider, closeCache, err := buildProvider(cfg)
	if err != nil {
		slog.Error("failed to create provider", "error", err)
		os.Exit(1)
	}
	defer closeCache()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	req := &core.ChatRequest{
		Model: cfg.Provider.Model,
		Messages: []core.Message{
			{Role: "user", Content: prompt},
		},
	}

	if *noStream {
		err = runBlocking(ctx, provider, req)
	} else {
		err = runStreaming(ctx, provider, req)
	}
	if err != nil {
		var apiErr *core.APIError
		if errors.As(err, &apiErr) {
			slog.Error("request failed",
				"type", apiErr.Type,
				"status", apiErr.StatusCode,
				"message", apiErr.Message,
			)
		} else {
			slog.Error("request failed", "error", err)
		}
		os.Exit(1)
	}
}

// buildProvider resolves configuration into a provider instance plus a
// cleanup function for the response cache.
func buildProvider(cfg *config.Config) (providers.Provider, func(), error) {
	pcfg := providers.Config{
		Type:                 cfg.Provider.Type,
		APIKey:               cfg.Provider.APIKey,
		BaseURL:              cfg.Provider.BaseURL,
		MaxRetries:           cfg.Retry.MaxRetries,
		InitialBackoff:       time.Duration(cfg.Retry.InitialBackoffMS) * time.Millisecond,
		MaxBackoff:           time.Duration(cfg.Retry.MaxBackoffMS) * time.Millisecond,
		BackoffFactor:        cfg.Retry.BackoffFactor,
		Timeout:              time.Duration(cfg.Provider.TimeoutMS) * time.Millisecond,
		WrapToolResultArrays: cfg.Provider.WrapToolResultArrays,
	}

	cleanup := func() {}
	switch cfg.Cache.Backend {
	case "":
		// No response cache.
	case "memory":
		pcfg.Cache = cache.NewMemoryCache(time.Duration(cfg.Cache.TTLSeconds) * time.Second)
	case "redis":
		rc, err := cache.NewRedisCache(cache.RedisConfig{
			URL: cfg.Cache.RedisURL,
			TTL: time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}
		pcfg.Cache = rc
		cleanup = func() { _ = rc.Close() }
	default:
		return nil, nil, fmt.Errorf("unknown cache backend: %s", cfg.Cache.Backend)
	}

	provider, err := providers.Create(pcfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return provider, cleanup, nil
}

// runStreaming prints tokens as they arrive, then the finalized message's
// tool calls and finish reason.
func runStreaming(ctx context.Context, provider providers.Provider, req *core.ChatRequest) error {
	s, err := provider.StreamChatCompletion(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	for {
		chunk, err := s.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		fmt.Print(chunk.Content)
	}
	fmt.Println()

	msg, err := s.Message()
	if err != nil {
		return err
	}
	choice := msg.Choices[0]
	for _, tc := range choice.Message.ToolCalls {
		slog.Info("tool call requested", "id", tc.ID, "tool", tc.Name, "args", tc.Args)
	}
	if choice.FinishReason != "" {
		slog.Debug("generation finished", "reason", choice.FinishReason, "model", msg.Model)
	}
	return nil
}

// runBlocking waits for the complete response.
func runBlocking(ctx context.Context, provider providers.Provider, req *core.ChatRequest) error {
	resp, err := provider.ChatCompletion(ctx, req)
	if err != nil {
		return err
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("response contained no choices")
	}
	fmt.Println(resp.Choices[0].Message.Content)
	return nil
}
