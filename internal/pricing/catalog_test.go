package pricing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDescriptor(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoad_LookupFallthrough(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "openai.yaml", `
provider: openai
currency: USD
unit: per_million_tokens
models:
  gpt-4o:
    input: 2.5
    output: 10.0
`)

	cat, err := Load(dir)
	require.NoError(t, err)

	// Raw id.
	e, currency, ok := cat.Lookup("openai", "gpt-4o")
	require.True(t, ok)
	assert.Equal(t, "USD", currency)
	assert.Equal(t, 2.5, e.Input)

	// Provider-prefixed id strips down to the raw id.
	e2, _, ok := cat.Lookup("openai", "openai/gpt-4o")
	require.True(t, ok)
	assert.Equal(t, e, e2)

	// Unknown model.
	_, _, ok = cat.Lookup("openai", "gpt-5-nonexistent")
	assert.False(t, ok)

	// Unknown provider.
	_, _, ok = cat.Lookup("made-up-provider", "gpt-4o")
	assert.False(t, ok)
}

func TestLoad_AnthropicCacheNormalization(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "anthropic.yaml", `
provider: anthropic
currency: USD
models:
  claude-3-5-sonnet:
    input: 3.0
    output: 15.0
    5m_cache_write: 3.75
    1h_cache_write: 6.0
    cache_read: 0.3
`)

	cat, err := Load(dir)
	require.NoError(t, err)

	e, _, ok := cat.Lookup("anthropic", "claude-3-5-sonnet")
	require.True(t, ok)
	// 1h write tier takes precedence per normalize()'s fall-through order.
	assert.Equal(t, 6.0, e.CacheWrite)
	assert.Equal(t, 0.3, e.CacheRead)
}

func TestLoad_XAICacheNormalization(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "xai.yaml", `
provider: xai
currency: USD
models:
  grok-4:
    input: 3.0
    output: 15.0
    cached_input: 0.75
`)

	cat, err := Load(dir)
	require.NoError(t, err)

	e, _, ok := cat.Lookup("xai", "grok-4")
	require.True(t, ok)
	assert.Equal(t, 0.75, e.CacheRead)
}

func TestSetModel(t *testing.T) {
	cat := &Catalog{table: map[string]*providerTable{}}
	cat.SetModel("openrouter", "meta/llama-3", Entry{Input: 0.1, Output: 0.2}, "USD")

	e, currency, ok := cat.Lookup("openrouter", "meta/llama-3")
	require.True(t, ok)
	assert.Equal(t, "USD", currency)
	assert.Equal(t, 0.1, e.Input)
}
