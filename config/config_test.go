package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable the loader reads so tests do not pick up
// ambient credentials from the developer's shell.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MODELSTREAM_CONFIG",
		"MODELSTREAM_API_KEY", "OPENAI_API_KEY",
		"MODELSTREAM_BASE_URL", "OPENAI_BASE_URL",
		"MODELSTREAM_MODEL", "MODELSTREAM_PROVIDER", "MODELSTREAM_TIMEOUT_MS",
		"MODELSTREAM_MAX_RETRIES", "MODELSTREAM_INITIAL_BACKOFF_MS", "MODELSTREAM_MAX_BACKOFF_MS",
		"MODELSTREAM_CACHE_BACKEND", "MODELSTREAM_CACHE_REDIS_URL", "MODELSTREAM_CACHE_TTL_SECONDS",
		"MODELSTREAM_WRAP_TOOL_RESULT_ARRAYS",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoad_RequiresAPIKey(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no API key configured")
}

func TestLoad_DefaultsWithAPIKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider.Type)
	assert.Equal(t, "gpt-4o-mini", cfg.Provider.Model)
	assert.Equal(t, "sk-test", cfg.Provider.APIKey)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, 1000, cfg.Retry.InitialBackoffMS)
	assert.Equal(t, 30000, cfg.Retry.MaxBackoffMS)
	assert.Equal(t, 2.0, cfg.Retry.BackoffFactor)
}

func TestLoad_EnvOverridesConventionalNames(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-conventional")
	t.Setenv("MODELSTREAM_API_KEY", "sk-ours")
	t.Setenv("OPENAI_BASE_URL", "https://conventional.example")
	t.Setenv("MODELSTREAM_BASE_URL", "https://ours.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-ours", cfg.Provider.APIKey)
	assert.Equal(t, "https://ours.example", cfg.Provider.BaseURL)
}

func TestLoad_YAMLFileThenEnvWins(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider:
  api_key: sk-from-file
  model: gpt-4o
retry:
  max_retries: 5
cache:
  backend: memory
  ttl_seconds: 60
`), 0o600))

	t.Setenv("MODELSTREAM_CONFIG", path)
	t.Setenv("MODELSTREAM_MODEL", "gpt-4o-mini")

	cfg, err := Load()
	require.NoError(t, err)

	// File values apply where the environment is silent.
	assert.Equal(t, "sk-from-file", cfg.Provider.APIKey)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 60, cfg.Cache.TTLSeconds)
	// The environment wins where both are set.
	assert.Equal(t, "gpt-4o-mini", cfg.Provider.Model)
}

func TestLoad_BadYAMLFails(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: [not a mapping"), 0o600))

	t.Setenv("MODELSTREAM_CONFIG", path)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_IntAndBoolOverlays(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("MODELSTREAM_MAX_RETRIES", "7")
	t.Setenv("MODELSTREAM_TIMEOUT_MS", "2500")
	t.Setenv("MODELSTREAM_WRAP_TOOL_RESULT_ARRAYS", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Retry.MaxRetries)
	assert.Equal(t, 2500, cfg.Provider.TimeoutMS)
	assert.True(t, cfg.Provider.WrapToolResultArrays)
}
