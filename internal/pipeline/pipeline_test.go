package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmgate/gateway/internal/canonical"
	"github.com/llmgate/gateway/internal/config"
	"github.com/llmgate/gateway/internal/pricing"
	"github.com/llmgate/gateway/internal/provider"
	"github.com/llmgate/gateway/internal/router"
	"github.com/llmgate/gateway/internal/streaming"
	"github.com/llmgate/gateway/internal/usage"
)

// fakeProvider is a canned provider.Provider stand-in so pipeline tests
// exercise the adapter path without a real upstream.
type fakeProvider struct {
	name  string
	resp  *canonical.CanonicalResponse
	err   error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) ChatCompletion(ctx context.Context, req *canonical.CanonicalRequest) (*canonical.CanonicalResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeProvider) ChatCompletionStream(ctx context.Context, req *canonical.CanonicalRequest) (io.ReadCloser, error) {
	return nil, f.err
}

func (f *fakeProvider) Format() provider.WireFormat { return provider.FormatOpenAIChat }

func testCatalog(t *testing.T) *pricing.Catalog {
	t.Helper()
	dir := t.TempDir()
	content := `
provider: openai
currency: USD
models:
  gpt-4o:
    input: 2.5
    output: 10
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "openai.yaml"), []byte(content), 0644))
	cat, err := pricing.Load(dir)
	require.NoError(t, err)
	return cat
}

func newTestPipeline(t *testing.T, prov provider.Provider) *Pipeline {
	t.Helper()
	catalog := testCatalog(t)

	cfg := &config.Config{
		Providers: map[string]config.ProviderConfig{
			"openai": {APIKey: "sk-test"},
		},
	}

	rt := router.New(cfg, catalog)

	store, err := usage.Open(":memory:", catalog)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	providers := map[string]provider.Provider{}
	if prov != nil {
		providers["openai"] = prov
	}

	return New(cfg, rt, providers, http.DefaultClient, store, nil, nil)
}

func TestHandleChat_AdapterPath_NonStreamingSuccess(t *testing.T) {
	prov := &fakeProvider{
		name: "openai",
		resp: &canonical.CanonicalResponse{
			ID:    "resp-1",
			Model: "gpt-4o",
			Choices: []canonical.Choice{
				{Index: 0, Message: canonical.Message{Role: canonical.RoleAssistant, Content: []canonical.ContentPart{{Type: canonical.PartText, Text: "hi"}}}, FinishReason: canonical.FinishStop},
			},
			Usage: canonical.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
		},
	}
	p := newTestPipeline(t, prov)

	body := []byte(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	p.HandleChat(rec, req, streaming.ClientOpenAIChat)

	assert.Equal(t, http.StatusOK, rec.Code)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Equal(t, "gpt-4o", decoded["model"])
}

func TestHandleChat_UnknownModel_ReturnsModelNotSupported(t *testing.T) {
	p := newTestPipeline(t, &fakeProvider{name: "openai"})

	body := []byte(`{"model":"does-not-exist","messages":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	p.HandleChat(rec, req, streaming.ClientOpenAIChat)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChat_MissingModel_ReturnsInvalidInput(t *testing.T) {
	p := newTestPipeline(t, &fakeProvider{name: "openai"})

	body := []byte(`{"messages":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	p.HandleChat(rec, req, streaming.ClientOpenAIChat)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChat_ProviderError_RecordsErrorOutcome(t *testing.T) {
	p := newTestPipeline(t, &fakeProvider{name: "openai", err: assertError{}})

	body := []byte(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	p.HandleChat(rec, req, streaming.ClientOpenAIChat)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
