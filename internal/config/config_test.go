package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	// os.WriteFile writes a byte slice to a file. The 0644 is the Unix file
	// permission (owner read/write, group and others read-only).
	err := os.WriteFile(configPath, []byte(content), 0644)
	require.NoError(t, err)
	return configPath
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
server:
  port: 9090
  read_timeout: 10s
  write_timeout: 60s

providers:
  anthropic:
    api_key: ${TEST_API_KEY}
    base_url: https://example.com/v1
    models:
      - model-a
      - model-b
    priority: 1
`)

	// Set the environment variable that ${TEST_API_KEY} should resolve to.
	// t.Setenv auto-restores the original value when the test finishes.
	t.Setenv("TEST_API_KEY", "my-secret-key")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)

	anthropic, ok := cfg.Providers["anthropic"]
	assert.True(t, ok, "anthropic provider should exist")
	assert.Equal(t, "my-secret-key", anthropic.APIKey)
	assert.Equal(t, "https://example.com/v1", anthropic.BaseURL)
	assert.Equal(t, []string{"model-a", "model-b"}, anthropic.Models)
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, `
providers:
  openai:
    api_key: sk-test
    models: [gpt-4o]
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	// Defaults filled in by defaults() should survive when the file
	// doesn't set them.
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Minute, cfg.Server.StreamTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.NonStreamTimeout)
	assert.Equal(t, "./pricing", cfg.Pricing.Dir)
	assert.Equal(t, ModeBYOK, cfg.Mode)
}

func TestLoadEnvOverride(t *testing.T) {
	// Verify that LLMGATE_ env vars override YAML values.
	configPath := writeConfig(t, `
server:
  port: 8080
  read_timeout: 30s
  write_timeout: 120s

providers:
  openai:
    api_key: sk-test
    models: [gpt-4o]
`)

	// This should override server.port from 8080 to 3000.
	t.Setenv("LLMGATE_SERVER_PORT", "3000")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoad_NoProvidersFails(t *testing.T) {
	configPath := writeConfig(t, `
server:
  port: 8080
`)

	_, err := Load(configPath)
	require.Error(t, err)
}

func TestPriorityOrder(t *testing.T) {
	configPath := writeConfig(t, `
providers:
  openrouter:
    api_key: k1
    models: [m1]
    priority: 5
  anthropic:
    api_key: k2
    models: [m2]
    priority: 1
  openai:
    api_key: k3
    models: [m3]
    priority: 1
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	// anthropic and openai tie on priority 1; lexical order breaks the
	// tie, so anthropic sorts before openai. openrouter's priority 5
	// sorts last.
	assert.Equal(t, []string{"anthropic", "openai", "openrouter"}, cfg.PriorityOrder())
}

func TestHasCredential(t *testing.T) {
	configPath := writeConfig(t, `
providers:
  openai:
    api_key: sk-test
    models: [gpt-4o]
  anthropic:
    api_key: ""
    models: [claude-3-5-sonnet]
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.True(t, cfg.HasCredential("openai"))
	assert.False(t, cfg.HasCredential("anthropic"))
	assert.False(t, cfg.HasCredential("missing"))
}
