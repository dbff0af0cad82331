package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/llmgate/gateway/internal/canonical"
	"github.com/llmgate/gateway/internal/gatewayerr"
)

const anthropicAPIVersion = "2023-06-01"

// defaultMaxTokensByFamily backs the per-model-family default table spec
// §4.B requires when a request doesn't set generation.maxTokens: Anthropic
// rejects requests with no max_tokens at all.
var defaultMaxTokensByFamily = map[string]int{
	"claude-3-5-sonnet": 8192,
	"claude-3-5-haiku":  8192,
	"claude-haiku-4-5":  8192,
}

const fallbackMaxTokens = 4096

// AnthropicProvider implements Provider for Anthropic's /v1/messages API.
type AnthropicProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewAnthropicProvider creates an AnthropicProvider ready to make API calls.
func NewAnthropicProvider(apiKey, baseURL string, client *http.Client) *AnthropicProvider {
	return &AnthropicProvider{apiKey: apiKey, baseURL: baseURL, client: client}
}

func (a *AnthropicProvider) Name() string        { return "anthropic" }
func (a *AnthropicProvider) Format() WireFormat   { return FormatAnthropic }

// anthropicRequest is the wire shape of Anthropic's /v1/messages body.
type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Stream      bool               `json:"stream,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	TopK        *int               `json:"top_k,omitempty"`
	StopSeqs    []string           `json:"stop_sequences,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
	ToolChoice  *anthropicToolChoice `json:"tool_choice,omitempty"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type anthropicMessage struct {
	Role    string                 `json:"role"`
	Content []anthropicContentPart `json:"content"`
}

type anthropicContentPart struct {
	Type       string         `json:"type"`
	Text       string         `json:"text,omitempty"`
	ToolUseID  string         `json:"tool_use_id,omitempty"`
	Content    string         `json:"content,omitempty"`
	IsError    bool           `json:"is_error,omitempty"`
	ID         string         `json:"id,omitempty"`
	Name       string         `json:"name,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
}

type anthropicResponse struct {
	ID         string                  `json:"id"`
	Content    []anthropicContentPart  `json:"content"`
	Model      string                  `json:"model"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

type anthropicUsage struct {
	InputTokens             int `json:"input_tokens"`
	OutputTokens            int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

// toAnthropicRequest translates a canonical request into Anthropic's wire
// shape (spec §4.B "Anthropic messages ↔ canonical").
func toAnthropicRequest(req *canonical.CanonicalRequest) *anthropicRequest {
	ar := &anthropicRequest{
		Model:       req.Model,
		System:      req.System,
		Stream:      req.Stream,
		Temperature: req.Generation.Temperature,
		TopP:        req.Generation.TopP,
		TopK:        req.Generation.TopK,
		StopSeqs:    req.Generation.StopSequences,
	}

	for _, m := range req.Messages {
		if m.Role == canonical.RoleSystem {
			if ar.System != "" {
				ar.System += "\n"
			}
			ar.System += m.Text()
			continue
		}
		ar.Messages = append(ar.Messages, toAnthropicMessage(m))
	}

	for _, t := range req.Tools {
		ar.Tools = append(ar.Tools, anthropicTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}

	if req.ToolChoice != nil {
		switch req.ToolChoice.Mode {
		case canonical.ToolChoiceRequired:
			ar.ToolChoice = &anthropicToolChoice{Type: "any"}
		case canonical.ToolChoiceNone:
			// omitted entirely, per spec §4.B
		case canonical.ToolChoiceFunction:
			ar.ToolChoice = &anthropicToolChoice{Type: "tool", Name: req.ToolChoice.Name}
		default:
			ar.ToolChoice = &anthropicToolChoice{Type: "auto"}
		}
	}

	if req.Generation.MaxTokens != nil {
		ar.MaxTokens = *req.Generation.MaxTokens
	} else {
		ar.MaxTokens = defaultMaxTokensFor(req.Model)
	}

	return ar
}

func defaultMaxTokensFor(model string) int {
	for family, tokens := range defaultMaxTokensByFamily {
		if len(model) >= len(family) && model[:len(family)] == family {
			return tokens
		}
	}
	return fallbackMaxTokens
}

func toAnthropicMessage(m canonical.Message) anthropicMessage {
	am := anthropicMessage{Role: string(m.Role)}
	for _, p := range m.Content {
		switch p.Type {
		case canonical.PartText:
			am.Content = append(am.Content, anthropicContentPart{Type: "text", Text: p.Text})
		case canonical.PartToolResult:
			am.Content = append(am.Content, anthropicContentPart{Type: "tool_result", ToolUseID: p.ToolCallID, Content: p.ToolResult, IsError: p.IsError})
		}
	}
	for _, tc := range m.ToolCalls {
		var input map[string]any
		_ = json.Unmarshal([]byte(tc.Arguments), &input)
		am.Content = append(am.Content, anthropicContentPart{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: input})
	}
	return am
}

func fromAnthropicResponse(resp *anthropicResponse) *canonical.CanonicalResponse {
	msg := canonical.Message{Role: canonical.RoleAssistant}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			msg.Content = append(msg.Content, canonical.ContentPart{Type: canonical.PartText, Text: block.Text})
		case "thinking":
			msg.Content = append(msg.Content, canonical.ContentPart{Type: canonical.PartReasoning, Content: block.Text})
		case "tool_use":
			args, _ := json.Marshal(block.Input)
			msg.ToolCalls = append(msg.ToolCalls, canonical.ToolCall{ID: block.ID, Name: block.Name, Arguments: string(args)})
		}
	}

	usage := canonical.Usage{
		InputTokens:      resp.Usage.InputTokens,
		OutputTokens:     resp.Usage.OutputTokens,
		CacheWriteTokens: resp.Usage.CacheCreationInputTokens,
		CachedTokens:     resp.Usage.CacheCreationInputTokens + resp.Usage.CacheReadInputTokens,
	}
	usage.Normalize()

	return &canonical.CanonicalResponse{
		ID:      resp.ID,
		Model:   resp.Model,
		Created: time.Now().Unix(),
		Choices: []canonical.Choice{{Index: 0, Message: msg, FinishReason: anthropicFinishReason(resp.StopReason)}},
		Usage:   usage,
	}
}

func anthropicFinishReason(stopReason string) canonical.FinishReason {
	switch stopReason {
	case "end_turn", "stop_sequence":
		return canonical.FinishStop
	case "max_tokens":
		return canonical.FinishLength
	case "tool_use":
		return canonical.FinishToolCalls
	default:
		return canonical.FinishStop
	}
}

func (a *AnthropicProvider) ChatCompletion(ctx context.Context, req *canonical.CanonicalRequest) (*canonical.CanonicalResponse, error) {
	ar := toAnthropicRequest(req)
	ar.Stream = false

	body, err := json.Marshal(ar)
	if err != nil {
		return nil, gatewayerr.AdapterFailureWrap("marshaling anthropic request", err)
	}

	httpResp, err := a.do(ctx, body)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, providerErrorFromResponse(httpResp)
	}

	var anthropicResp anthropicResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&anthropicResp); err != nil {
		return nil, gatewayerr.AdapterFailureWrap("decoding anthropic response", err)
	}

	return fromAnthropicResponse(&anthropicResp), nil
}

func (a *AnthropicProvider) ChatCompletionStream(ctx context.Context, req *canonical.CanonicalRequest) (io.ReadCloser, error) {
	ar := toAnthropicRequest(req)
	ar.Stream = true

	body, err := json.Marshal(ar)
	if err != nil {
		return nil, gatewayerr.AdapterFailureWrap("marshaling anthropic request", err)
	}

	httpResp, err := a.do(ctx, body)
	if err != nil {
		return nil, err
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		return nil, providerErrorFromResponse(httpResp)
	}

	return httpResp.Body, nil
}

func (a *AnthropicProvider) do(ctx context.Context, body []byte) (*http.Response, error) {
	url := fmt.Sprintf("%s/messages", a.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, gatewayerr.AdapterFailureWrap("creating anthropic request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, gatewayerr.GatewayTimeout(err)
		}
		return nil, gatewayerr.ProviderError(0, nil, err)
	}
	return resp, nil
}

func providerErrorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return gatewayerr.ProviderError(resp.StatusCode, body, nil)
}
