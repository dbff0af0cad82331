package router

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmgate/gateway/internal/gatewayerr"
	"github.com/llmgate/gateway/internal/pricing"
)

// fakeConfig is a minimal Config for router tests, independent of the
// real config package.
type fakeConfig struct {
	order       []string
	credentials map[string]bool
}

func (f fakeConfig) PriorityOrder() []string { return f.order }
func (f fakeConfig) HasCredential(provider string) bool { return f.credentials[provider] }

func writeDescriptor(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func testCatalog(t *testing.T) *pricing.Catalog {
	t.Helper()
	dir := t.TempDir()
	writeDescriptor(t, dir, "openai.yaml", `
provider: openai
currency: USD
unit: per_million_tokens
models:
  gpt-4o:
    input: 2.5
    output: 10
`)
	writeDescriptor(t, dir, "anthropic.yaml", `
provider: anthropic
currency: USD
unit: per_million_tokens
models:
  claude-3-5-sonnet-20241022:
    input: 3
    output: 15
  gpt-4o:
    input: 3
    output: 15
`)
	cat, err := pricing.Load(dir)
	require.NoError(t, err)
	return cat
}

func TestResolve_ExplicitPrefix(t *testing.T) {
	cfg := fakeConfig{order: []string{"anthropic", "openai"}, credentials: map[string]bool{"anthropic": true, "openai": true}}
	r := New(cfg, testCatalog(t))

	provider, model, err := r.Resolve("openai/gpt-4o", "")
	require.NoError(t, err)
	assert.Equal(t, "openai", provider)
	assert.Equal(t, "gpt-4o", model)
}

func TestResolve_ExplicitPrefix_NoCredential(t *testing.T) {
	cfg := fakeConfig{order: []string{"anthropic", "openai"}, credentials: map[string]bool{"anthropic": true}}
	r := New(cfg, testCatalog(t))

	_, _, err := r.Resolve("openai/gpt-4o", "")
	gwErr, ok := gatewayerr.As(err)
	require.True(t, ok)
	assert.Equal(t, gatewayerr.KindModelNotSupported, gwErr.Kind)
}

func TestResolve_ClientHint_WinsOverPriority(t *testing.T) {
	cfg := fakeConfig{order: []string{"anthropic", "openai"}, credentials: map[string]bool{"anthropic": true, "openai": true}}
	r := New(cfg, testCatalog(t))

	// gpt-4o is served by both openai and anthropic catalogs; anthropic is
	// first in priority order, but the client hint should win.
	provider, model, err := r.Resolve("gpt-4o", "openai")
	require.NoError(t, err)
	assert.Equal(t, "openai", provider)
	assert.Equal(t, "gpt-4o", model)
}

func TestResolve_PriorityOrder_NoHint(t *testing.T) {
	cfg := fakeConfig{order: []string{"anthropic", "openai"}, credentials: map[string]bool{"anthropic": true, "openai": true}}
	r := New(cfg, testCatalog(t))

	provider, _, err := r.Resolve("gpt-4o", "")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", provider)
}

func TestResolve_ModelNotSupported(t *testing.T) {
	cfg := fakeConfig{order: []string{"anthropic"}, credentials: map[string]bool{"anthropic": true}}
	r := New(cfg, testCatalog(t))

	_, _, err := r.Resolve("nonexistent-model", "")
	gwErr, ok := gatewayerr.As(err)
	require.True(t, ok)
	assert.Equal(t, gatewayerr.KindModelNotSupported, gwErr.Kind)
	assert.Equal(t, 400, gwErr.HTTPStatus())
}

func TestResolve_NoProvidersConfigured(t *testing.T) {
	cfg := fakeConfig{order: nil, credentials: nil}
	r := New(cfg, testCatalog(t))

	_, _, err := r.Resolve("gpt-4o", "")
	gwErr, ok := gatewayerr.As(err)
	require.True(t, ok)
	assert.Equal(t, gatewayerr.KindNoProvidersConfigured, gwErr.Kind)
	assert.Equal(t, 503, gwErr.HTTPStatus())
}

func TestResolve_IncidentalSlashNotProviderQualifier(t *testing.T) {
	cfg := fakeConfig{order: []string{"openai"}, credentials: map[string]bool{"openai": true}}
	r := New(cfg, testCatalog(t))

	// "meta-llama" isn't a configured provider, so the slash here is just
	// part of the raw model id, not a routing qualifier.
	_, _, err := r.Resolve("meta-llama/llama-3.1-70b-instruct", "")
	_, ok := gatewayerr.As(err)
	require.True(t, ok)
}

func TestReindex_PicksUpNewModel(t *testing.T) {
	cfg := fakeConfig{order: []string{"openai"}, credentials: map[string]bool{"openai": true}}
	cat := testCatalog(t)
	r := New(cfg, cat)

	cat.SetModel("openai", "gpt-5", pricing.Entry{Input: 1, Output: 2}, "USD")
	r.Reindex()

	provider, _, err := r.Resolve("gpt-5", "")
	require.NoError(t, err)
	assert.Equal(t, "openai", provider)
}
