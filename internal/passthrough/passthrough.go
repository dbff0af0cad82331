// Package passthrough implements the fast path the pipeline takes when
// the client's wire format already matches the provider's native format
// (spec §4.F): the request body is forwarded with minimal modification,
// and usage is extracted by sniffing the response bytes rather than by
// running it through the canonical adapters.
package passthrough

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/llmgate/gateway/internal/canonical"
	"github.com/llmgate/gateway/internal/gatewayerr"
	"github.com/llmgate/gateway/internal/streaming"
)

// Client forwards a client request body to an upstream almost verbatim,
// merging in required defaults (e.g. Anthropic's mandatory max_tokens),
// and either returns the parsed usage from a non-stream response or tees
// a usage sniffer across a streamed one.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	authHeader string
	kind       Kind
}

// Kind names which provider-specific usage sniffing strategy applies.
type Kind string

const (
	KindAnthropic       Kind = "anthropic"
	KindOpenAIResponses Kind = "openai_responses"
	KindOpenAIChat      Kind = "openai_chat"
)

// New builds a passthrough Client. authHeader is the header name the
// provider expects its credential under ("Authorization" or "x-api-key"),
// matching the scheme each concrete provider client in internal/provider
// already enforces.
func New(httpClient *http.Client, baseURL, apiKey, authHeader string, kind Kind) *Client {
	return &Client{httpClient: httpClient, baseURL: baseURL, apiKey: apiKey, authHeader: authHeader, kind: kind}
}

func (c *Client) authValue() string {
	if c.authHeader == "Authorization" {
		return "Bearer " + c.apiKey
	}
	return c.apiKey
}

// mergeDefaults applies the one required-field fixup passthrough needs:
// Anthropic rejects requests with no max_tokens at all (spec §4.F point 1,
// "with stream and any required defaults merged").
func mergeDefaults(kind Kind, body []byte) ([]byte, error) {
	if kind != KindAnthropic {
		return body, nil
	}
	var generic map[string]any
	if err := json.Unmarshal(body, &generic); err != nil {
		return nil, err
	}
	if _, ok := generic["max_tokens"]; !ok {
		generic["max_tokens"] = 4096
	}
	return json.Marshal(generic)
}

func (c *Client) endpoint() string {
	switch c.kind {
	case KindAnthropic:
		return c.baseURL + "/messages"
	case KindOpenAIResponses:
		return c.baseURL + "/responses"
	default:
		return c.baseURL + "/chat/completions"
	}
}

// NonStreamResult is what a non-streaming passthrough call returns: the
// raw body to forward to the client, and the usage sniffed from it.
type NonStreamResult struct {
	Body  []byte
	Usage canonical.Usage
}

// ChatCompletion performs step 2 of spec §4.F: forward the body, then on
// success parse JSON once at the end to extract usage before handing the
// raw body back to the caller for forwarding.
func (c *Client) ChatCompletion(ctx context.Context, clientBody []byte) (*NonStreamResult, error) {
	body, err := mergeDefaults(c.kind, clientBody)
	if err != nil {
		return nil, gatewayerr.InvalidInput("malformed request body: %v", err)
	}

	resp, err := c.send(ctx, body, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, gatewayerr.ProviderError(resp.StatusCode, nil, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, gatewayerr.ProviderError(resp.StatusCode, raw, nil)
	}

	usage := parseUsage(c.kind, raw)
	return &NonStreamResult{Body: raw, Usage: usage}, nil
}

// Stream performs step 3 of spec §4.F: dispatch with stream:true and
// return the raw upstream body for the caller to pump to the client,
// alongside a streaming.Sniffer that extracts usage from the same bytes
// without blocking the forward path.
// Stream's third return value delivers the sniffed terminal usage exactly
// once, after the returned Sniffer's Close() has been called; callers that
// don't care about usage may simply ignore it.
func (c *Client) Stream(ctx context.Context, clientBody []byte) (io.ReadCloser, streaming.Sniffer, <-chan canonical.Usage, error) {
	body, err := mergeDefaults(c.kind, clientBody)
	if err != nil {
		return nil, nil, nil, gatewayerr.InvalidInput("malformed request body: %v", err)
	}

	resp, err := c.send(ctx, body, true)
	if err != nil {
		return nil, nil, nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		return nil, nil, nil, gatewayerr.ProviderError(resp.StatusCode, raw, nil)
	}

	result := make(chan canonical.Usage, 1)
	sniffer := newUsageSniffer(c.kind, result)
	return resp.Body, sniffer, result, nil
}

func (c *Client) send(ctx context.Context, body []byte, stream bool) (*http.Response, error) {
	var patched map[string]any
	if err := json.Unmarshal(body, &patched); err == nil {
		patched["stream"] = stream
		if b, err := json.Marshal(patched); err == nil {
			body = b
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, gatewayerr.AdapterFailureWrap("building passthrough request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(c.authHeader, c.authValue())
	if c.kind == KindAnthropic {
		req.Header.Set("anthropic-version", "2023-06-01")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, gatewayerr.GatewayTimeout(err)
		}
		return nil, gatewayerr.ProviderError(0, nil, err)
	}
	return resp, nil
}

func parseUsage(kind Kind, body []byte) canonical.Usage {
	var u canonical.Usage
	switch kind {
	case KindAnthropic:
		var resp struct {
			Usage struct {
				InputTokens              int `json:"input_tokens"`
				OutputTokens             int `json:"output_tokens"`
				CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
				CacheReadInputTokens     int `json:"cache_read_input_tokens"`
			} `json:"usage"`
		}
		if json.Unmarshal(body, &resp) == nil {
			u.InputTokens = resp.Usage.InputTokens
			u.OutputTokens = resp.Usage.OutputTokens
			u.CacheWriteTokens = resp.Usage.CacheCreationInputTokens
			u.CachedTokens = resp.Usage.CacheCreationInputTokens + resp.Usage.CacheReadInputTokens
		}
	case KindOpenAIResponses:
		var resp struct {
			Usage struct {
				InputTokens        int `json:"input_tokens"`
				OutputTokens       int `json:"output_tokens"`
				InputTokensDetails struct {
					CachedTokens int `json:"cached_tokens"`
				} `json:"input_tokens_details"`
			} `json:"usage"`
		}
		if json.Unmarshal(body, &resp) == nil {
			u.InputTokens = resp.Usage.InputTokens
			u.OutputTokens = resp.Usage.OutputTokens
			u.CachedTokens = resp.Usage.InputTokensDetails.CachedTokens
		}
	default:
		var resp struct {
			Usage struct {
				PromptTokens     int `json:"prompt_tokens"`
				CompletionTokens int `json:"completion_tokens"`
			} `json:"usage"`
		}
		if json.Unmarshal(body, &resp) == nil {
			u.PromptTokens = resp.Usage.PromptTokens
			u.CompletionTokens = resp.Usage.CompletionTokens
		}
	}
	u.Normalize()
	return u
}
