package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/llmgate/gateway/internal/canonical"
	"github.com/llmgate/gateway/internal/gatewayerr"
)

// openAIChatProvider backs every upstream that speaks the OpenAI
// chat/completions wire format: OpenAI itself, xAI/Grok, OpenRouter, and
// Ollama's OpenAI-compatible endpoint (spec §1, "and similar
// chat-completions-compatible providers"). Only the name, base URL,
// credential, and auth scheme differ between them.
type openAIChatProvider struct {
	name    string
	apiKey  string
	baseURL string
	auth    AuthScheme
	client  *http.Client
}

// NewOpenAIProvider builds the client for OpenAI itself.
func NewOpenAIProvider(apiKey, baseURL string, client *http.Client) Provider {
	return &openAIChatProvider{name: "openai", apiKey: apiKey, baseURL: baseURL, auth: AuthBearer, client: client}
}

// NewXAIProvider builds the client for xAI/Grok, which speaks the same
// chat/completions shape behind a bearer token.
func NewXAIProvider(apiKey, baseURL string, client *http.Client) Provider {
	return &openAIChatProvider{name: "xai", apiKey: apiKey, baseURL: baseURL, auth: AuthBearer, client: client}
}

// NewOpenRouterProvider builds the client for OpenRouter, an aggregator
// that fronts many third-party models behind one OpenAI-compatible API.
func NewOpenRouterProvider(apiKey, baseURL string, client *http.Client) Provider {
	return &openAIChatProvider{name: "openrouter", apiKey: apiKey, baseURL: baseURL, auth: AuthBearer, client: client}
}

// NewOllamaProvider builds the client for a local Ollama server, which
// needs no credential at all.
func NewOllamaProvider(baseURL string, client *http.Client) Provider {
	return &openAIChatProvider{name: "ollama", baseURL: baseURL, auth: AuthNone, client: client}
}

func (p *openAIChatProvider) Name() string      { return p.name }
func (p *openAIChatProvider) Format() WireFormat { return FormatOpenAIChat }

type openAIChatRequest struct {
	Model             string              `json:"model"`
	Messages          []openAIChatMessage `json:"messages"`
	Stream            bool                `json:"stream,omitempty"`
	MaxTokens         *int                `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int              `json:"max_completion_tokens,omitempty"`
	Temperature       *float64            `json:"temperature,omitempty"`
	TopP              *float64            `json:"top_p,omitempty"`
	Stop              []string            `json:"stop,omitempty"`
	Seed              *int64              `json:"seed,omitempty"`
	User              string              `json:"user,omitempty"`
	Tools             []openAIChatTool    `json:"tools,omitempty"`
	ToolChoice        any                 `json:"tool_choice,omitempty"`
}

type openAIChatTool struct {
	Type     string             `json:"type"`
	Function openAIChatFunction `json:"function"`
}

type openAIChatFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type openAIChatMessage struct {
	Role       string               `json:"role"`
	Content    string               `json:"content,omitempty"`
	Name       string               `json:"name,omitempty"`
	ToolCallID string               `json:"tool_call_id,omitempty"`
	ToolCalls  []openAIChatToolCall `json:"tool_calls,omitempty"`
}

type openAIChatToolCall struct {
	ID       string                     `json:"id"`
	Type     string                     `json:"type"`
	Function openAIChatToolCallFunction `json:"function"`
}

type openAIChatToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAIChatResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Created int64              `json:"created"`
	Choices []openAIChatChoice `json:"choices"`
	Usage   openAIChatUsage    `json:"usage"`
}

type openAIChatChoice struct {
	Index        int               `json:"index"`
	Message      openAIChatMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

type openAIChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	PromptTokensDetails struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"prompt_tokens_details"`
	CompletionTokensDetails struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"completion_tokens_details"`
}

// isReasoningFamily matches the o1/o3/o4 model families that require
// max_completion_tokens instead of max_tokens (spec §4.B).
func isReasoningFamily(model string) bool {
	m := strings.ToLower(model)
	for _, prefix := range []string{"o1", "o3", "o4"} {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

func toOpenAIChatRequest(req *canonical.CanonicalRequest) *openAIChatRequest {
	or := &openAIChatRequest{
		Model:       req.Model,
		Stream:      req.Stream,
		Temperature: req.Generation.Temperature,
		TopP:        req.Generation.TopP,
		Stop:        req.Generation.StopSequences,
		Seed:        req.Generation.Seed,
		User:        req.User,
	}

	if req.System != "" {
		or.Messages = append(or.Messages, openAIChatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		or.Messages = append(or.Messages, toOpenAIChatMessage(m))
	}

	for _, t := range req.Tools {
		or.Tools = append(or.Tools, openAIChatTool{Type: "function", Function: openAIChatFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters}})
	}
	if req.ToolChoice != nil {
		switch req.ToolChoice.Mode {
		case canonical.ToolChoiceFunction:
			or.ToolChoice = map[string]any{"type": "function", "function": map[string]any{"name": req.ToolChoice.Name}}
		default:
			or.ToolChoice = string(req.ToolChoice.Mode)
		}
	}

	if req.Generation.MaxTokens != nil {
		if isReasoningFamily(req.Model) {
			or.MaxCompletionTokens = req.Generation.MaxTokens
		} else {
			or.MaxTokens = req.Generation.MaxTokens
		}
	}

	return or
}

func toOpenAIChatMessage(m canonical.Message) openAIChatMessage {
	om := openAIChatMessage{Role: string(m.Role), Name: m.Name, ToolCallID: m.ToolCallID, Content: m.Text()}
	for _, tc := range m.ToolCalls {
		om.ToolCalls = append(om.ToolCalls, openAIChatToolCall{ID: tc.ID, Type: "function", Function: openAIChatToolCallFunction{Name: tc.Name, Arguments: tc.Arguments}})
	}
	return om
}

func fromOpenAIChatResponse(resp *openAIChatResponse) *canonical.CanonicalResponse {
	choices := make([]canonical.Choice, 0, len(resp.Choices))
	for _, c := range resp.Choices {
		msg := canonical.Message{Role: canonical.RoleAssistant}
		if c.Message.Content != "" {
			msg.Content = append(msg.Content, canonical.ContentPart{Type: canonical.PartText, Text: c.Message.Content})
		}
		for _, tc := range c.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, canonical.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
		}
		choices = append(choices, canonical.Choice{Index: c.Index, Message: msg, FinishReason: openAIFinishReason(c.FinishReason)})
	}

	usage := canonical.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		CachedTokens:     resp.Usage.PromptTokensDetails.CachedTokens,
		ReasoningTokens:  resp.Usage.CompletionTokensDetails.ReasoningTokens,
	}
	usage.Normalize()

	return &canonical.CanonicalResponse{ID: resp.ID, Model: resp.Model, Created: resp.Created, Choices: choices, Usage: usage}
}

func openAIFinishReason(reason string) canonical.FinishReason {
	switch reason {
	case "stop":
		return canonical.FinishStop
	case "length":
		return canonical.FinishLength
	case "tool_calls":
		return canonical.FinishToolCalls
	case "content_filter":
		return canonical.FinishContentFilter
	default:
		return canonical.FinishStop
	}
}

func (p *openAIChatProvider) ChatCompletion(ctx context.Context, req *canonical.CanonicalRequest) (*canonical.CanonicalResponse, error) {
	or := toOpenAIChatRequest(req)
	or.Stream = false

	body, err := json.Marshal(or)
	if err != nil {
		return nil, gatewayerr.AdapterFailureWrap("marshaling "+p.name+" request", err)
	}

	httpResp, err := p.do(ctx, body)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, providerErrorFromResponse(httpResp)
	}

	var chatResp openAIChatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&chatResp); err != nil {
		return nil, gatewayerr.AdapterFailureWrap("decoding "+p.name+" response", err)
	}

	return fromOpenAIChatResponse(&chatResp), nil
}

func (p *openAIChatProvider) ChatCompletionStream(ctx context.Context, req *canonical.CanonicalRequest) (io.ReadCloser, error) {
	or := toOpenAIChatRequest(req)
	or.Stream = true

	body, err := json.Marshal(or)
	if err != nil {
		return nil, gatewayerr.AdapterFailureWrap("marshaling "+p.name+" request", err)
	}

	httpResp, err := p.do(ctx, body)
	if err != nil {
		return nil, err
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		return nil, providerErrorFromResponse(httpResp)
	}

	return httpResp.Body, nil
}

func (p *openAIChatProvider) do(ctx context.Context, body []byte) (*http.Response, error) {
	url := fmt.Sprintf("%s/chat/completions", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, gatewayerr.AdapterFailureWrap("creating "+p.name+" request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	switch p.auth {
	case AuthBearer:
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	case AuthXAPIKey:
		httpReq.Header.Set("x-api-key", p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, gatewayerr.GatewayTimeout(err)
		}
		return nil, gatewayerr.ProviderError(0, nil, err)
	}
	return resp, nil
}
