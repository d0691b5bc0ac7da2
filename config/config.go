// Package config provides configuration management for the application.
// Resolution order: built-in defaults, then an optional YAML file, then
// environment variables (which always win). A .env file in the working
// directory is honored for local development.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	Retry    RetryConfig    `yaml:"retry"`
	Cache    CacheConfig    `yaml:"cache"`
}

// ProviderConfig identifies the upstream service and credentials.
type ProviderConfig struct {
	Type    string `yaml:"type"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// TimeoutMS bounds each physical request attempt, in milliseconds.
	// Zero disables the per-attempt bound.
	TimeoutMS int `yaml:"timeout_ms"`

	// WrapToolResultArrays enables the tool-result array compatibility shim.
	WrapToolResultArrays bool `yaml:"wrap_tool_result_arrays"`
}

// RetryConfig tunes the retry/backoff executor.
type RetryConfig struct {
	MaxRetries       int     `yaml:"max_retries"`
	InitialBackoffMS int     `yaml:"initial_backoff_ms"`
	MaxBackoffMS     int     `yaml:"max_backoff_ms"`
	BackoffFactor    float64 `yaml:"backoff_factor"`
}

// CacheConfig tunes the completion response cache.
type CacheConfig struct {
	// Backend is "", "memory", or "redis".
	Backend string `yaml:"backend"`
	// RedisURL is required for the redis backend.
	RedisURL string `yaml:"redis_url"`
	// TTLSeconds is the cache entry lifetime; zero means the backend default.
	TTLSeconds int `yaml:"ttl_seconds"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Provider: ProviderConfig{
			Type:  "openai",
			Model: "gpt-4o-mini",
		},
		Retry: RetryConfig{
			MaxRetries:       3,
			InitialBackoffMS: 1000,
			MaxBackoffMS:     30000,
			BackoffFactor:    2.0,
		},
	}
}

// Load reads configuration from an optional YAML file (MODELSTREAM_CONFIG)
// and the environment.
func Load() (*Config, error) {
	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	cfg := Defaults()

	if path := os.Getenv("MODELSTREAM_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if cfg.Provider.APIKey == "" {
		return nil, fmt.Errorf("no API key configured: set MODELSTREAM_API_KEY or OPENAI_API_KEY")
	}
	return &cfg, nil
}

// applyEnv overlays environment variables onto the configuration.
// MODELSTREAM_* variables win over the provider's conventional names.
func applyEnv(cfg *Config) {
	setString(&cfg.Provider.APIKey, "MODELSTREAM_API_KEY", "OPENAI_API_KEY")
	setString(&cfg.Provider.BaseURL, "MODELSTREAM_BASE_URL", "OPENAI_BASE_URL")
	setString(&cfg.Provider.Model, "MODELSTREAM_MODEL")
	setString(&cfg.Provider.Type, "MODELSTREAM_PROVIDER")
	setInt(&cfg.Provider.TimeoutMS, "MODELSTREAM_TIMEOUT_MS")

	setInt(&cfg.Retry.MaxRetries, "MODELSTREAM_MAX_RETRIES")
	setInt(&cfg.Retry.InitialBackoffMS, "MODELSTREAM_INITIAL_BACKOFF_MS")
	setInt(&cfg.Retry.MaxBackoffMS, "MODELSTREAM_MAX_BACKOFF_MS")

	setString(&cfg.Cache.Backend, "MODELSTREAM_CACHE_BACKEND")
	setString(&cfg.Cache.RedisURL, "MODELSTREAM_CACHE_REDIS_URL")
	setInt(&cfg.Cache.TTLSeconds, "MODELSTREAM_CACHE_TTL_SECONDS")

	if v := os.Getenv("MODELSTREAM_WRAP_TOOL_RESULT_ARRAYS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Provider.WrapToolResultArrays = b
		}
	}
}

// setString assigns the first non-empty environment value among keys.
func setString(dst *string, keys ...string) {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			*dst = v
			return
		}
	}
}

// setInt assigns the environment value when it parses as an integer.
func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
