package provider

import (
	"net/http"
)

// ProviderConfig is the subset of a single provider's configuration the
// registry needs to construct a client.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
}

// defaultBaseURLs backs providers that don't set an explicit base_url in
// configuration.
var defaultBaseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"anthropic":  "https://api.anthropic.com/v1",
	"xai":        "https://api.x.ai/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"ollama":     "http://localhost:11434/v1",
}

// DefaultBaseURL returns the well-known base URL for a provider name when
// its configuration doesn't set an explicit one, or "" if name isn't one
// of the providers this registry knows how to build. Exported so the
// passthrough path in internal/pipeline (which bypasses Build/Provider
// entirely for the Anthropic↔xAI passthrough case) can still reach the
// same default.
func DefaultBaseURL(name string) string {
	return defaultBaseURLs[name]
}

// newHTTPClient returns the long-lived pooled client every provider
// shares the shape of (spec §5: "kept as long-lived pooled clients with
// connection reuse; no per-request allocation of transport"). It carries
// no Timeout of its own: the per-request context deadline (spec §5's
// configurable stream/non-stream server-side timeout, enforced by
// internal/pipeline) is the only deadline that should ever fire, so a
// slow upstream surfaces as gatewayerr.GatewayTimeout rather than a
// generic client-timeout error the 504 mapping never sees.
func newHTTPClient() *http.Client {
	return &http.Client{}
}

// Build constructs the Provider clients for every entry in cfgs, silently
// skipping any provider name it doesn't recognize (the config layer only
// rejects an empty provider set; it does not check names).
func Build(cfgs map[string]ProviderConfig) map[string]Provider {
	out := make(map[string]Provider, len(cfgs))
	client := newHTTPClient()

	for name, cfg := range cfgs {
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultBaseURLs[name]
		}

		switch name {
		case "openai":
			out[name] = NewOpenAIProvider(cfg.APIKey, baseURL, client)
		case "openai_responses":
			out[name] = NewOpenAIResponsesProvider(cfg.APIKey, baseURL, client)
		case "anthropic":
			out[name] = NewAnthropicProvider(cfg.APIKey, baseURL, client)
		case "xai":
			out[name] = NewXAIProvider(cfg.APIKey, baseURL, client)
		case "openrouter":
			out[name] = NewOpenRouterProvider(cfg.APIKey, baseURL, client)
		case "ollama":
			out[name] = NewOllamaProvider(baseURL, client)
		}
	}

	return out
}
