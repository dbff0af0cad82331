package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/llmgate/gateway/internal/canonical"
	"github.com/llmgate/gateway/internal/gatewayerr"
)

// openAIResponsesProvider speaks OpenAI's /v1/responses wire format
// (spec §4.B "OpenAI responses ↔ canonical"), OpenAI's newer API.
type openAIResponsesProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewOpenAIResponsesProvider builds the /v1/responses-speaking client.
// Distinct from NewOpenAIProvider (chat/completions) because the pipeline
// treats them as different native formats for passthrough purposes
// (spec §4.H: "OpenAI-responses↔OpenAI" is one of the passthrough pairs).
func NewOpenAIResponsesProvider(apiKey, baseURL string, client *http.Client) Provider {
	return &openAIResponsesProvider{apiKey: apiKey, baseURL: baseURL, client: client}
}

func (p *openAIResponsesProvider) Name() string       { return "openai" }
func (p *openAIResponsesProvider) Format() WireFormat { return FormatOpenAIResponses }

type openAIResponsesRequest struct {
	Model            string                  `json:"model"`
	Input            []openAIResponsesInput  `json:"input"`
	Instructions     string                  `json:"instructions,omitempty"`
	Stream           bool                    `json:"stream,omitempty"`
	MaxOutputTokens  *int                    `json:"max_output_tokens,omitempty"`
	Temperature      *float64                `json:"temperature,omitempty"`
	TopP             *float64                `json:"top_p,omitempty"`
	Tools            []openAIResponsesTool   `json:"tools,omitempty"`
	Reasoning        *openAIReasoningConfig  `json:"reasoning,omitempty"`
}

type openAIReasoningConfig struct {
	Effort string `json:"effort,omitempty"`
}

type openAIResponsesTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type openAIResponsesInput struct {
	Role    string                      `json:"role"`
	Content []openAIResponsesInputPart  `json:"content"`
}

type openAIResponsesInputPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type openAIResponsesResponse struct {
	ID        string                      `json:"id"`
	Model     string                      `json:"model"`
	CreatedAt int64                       `json:"created_at"`
	Status    string                      `json:"status"`
	Output    []openAIResponsesOutputItem `json:"output"`
	Usage     openAIResponsesUsage        `json:"usage"`
}

type openAIResponsesOutputItem struct {
	Type    string                     `json:"type"`
	Role    string                     `json:"role,omitempty"`
	Content []openAIResponsesOutputPart `json:"content,omitempty"`
	Name    string                     `json:"name,omitempty"`
	CallID  string                     `json:"call_id,omitempty"`
	Arguments string                   `json:"arguments,omitempty"`
}

type openAIResponsesOutputPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type openAIResponsesUsage struct {
	InputTokens        int `json:"input_tokens"`
	OutputTokens       int `json:"output_tokens"`
	TotalTokens        int `json:"total_tokens"`
	InputTokensDetails struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"input_tokens_details"`
}

// toOpenAIResponsesRequest translates canonical into the /v1/responses
// shape: "input_text" on the wire substitutes for canonical's "text"
// part type (spec §4.B), and system becomes top-level instructions.
func toOpenAIResponsesRequest(req *canonical.CanonicalRequest) *openAIResponsesRequest {
	or := &openAIResponsesRequest{
		Model:           req.Model,
		Instructions:    req.System,
		Stream:          req.Stream,
		MaxOutputTokens: req.Generation.MaxTokens,
		Temperature:     req.Generation.Temperature,
		TopP:            req.Generation.TopP,
	}

	for _, m := range req.Messages {
		item := openAIResponsesInput{Role: string(m.Role)}
		for _, part := range m.Content {
			if part.Type == canonical.PartText {
				item.Content = append(item.Content, openAIResponsesInputPart{Type: "input_text", Text: part.Text})
			}
		}
		or.Input = append(or.Input, item)
	}

	for _, t := range req.Tools {
		or.Tools = append(or.Tools, openAIResponsesTool{Type: "function", Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}

	if req.ReasoningEffort != "" {
		or.Reasoning = &openAIReasoningConfig{Effort: req.ReasoningEffort}
	} else if req.Thinking != nil && req.Thinking.ReasoningEffort != "" {
		or.Reasoning = &openAIReasoningConfig{Effort: req.Thinking.ReasoningEffort}
	}

	return or
}

func fromOpenAIResponsesResponse(resp *openAIResponsesResponse) *canonical.CanonicalResponse {
	msg := canonical.Message{Role: canonical.RoleAssistant}
	for _, item := range resp.Output {
		switch item.Type {
		case "message":
			for _, part := range item.Content {
				if part.Type == "output_text" {
					msg.Content = append(msg.Content, canonical.ContentPart{Type: canonical.PartText, Text: part.Text})
				}
			}
		case "function_call":
			msg.ToolCalls = append(msg.ToolCalls, canonical.ToolCall{ID: item.CallID, Name: item.Name, Arguments: item.Arguments})
		case "reasoning":
			for _, part := range item.Content {
				msg.Content = append(msg.Content, canonical.ContentPart{Type: canonical.PartReasoning, Summary: part.Text})
			}
		}
	}

	usage := canonical.Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		TotalTokens:  resp.Usage.TotalTokens,
		CachedTokens: resp.Usage.InputTokensDetails.CachedTokens,
	}
	usage.Normalize()

	return &canonical.CanonicalResponse{
		ID:      resp.ID,
		Model:   resp.Model,
		Created: resp.CreatedAt,
		Choices: []canonical.Choice{{Index: 0, Message: msg, FinishReason: responsesFinishReason(resp.Status, len(msg.ToolCalls) > 0)}},
		Usage:   usage,
	}
}

func responsesFinishReason(status string, hasToolCalls bool) canonical.FinishReason {
	if hasToolCalls {
		return canonical.FinishToolCalls
	}
	switch status {
	case "completed":
		return canonical.FinishStop
	case "incomplete":
		return canonical.FinishLength
	case "failed":
		return canonical.FinishError
	default:
		return canonical.FinishStop
	}
}

func (p *openAIResponsesProvider) ChatCompletion(ctx context.Context, req *canonical.CanonicalRequest) (*canonical.CanonicalResponse, error) {
	or := toOpenAIResponsesRequest(req)
	or.Stream = false

	body, err := json.Marshal(or)
	if err != nil {
		return nil, gatewayerr.AdapterFailureWrap("marshaling openai responses request", err)
	}

	httpResp, err := p.do(ctx, body)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, providerErrorFromResponse(httpResp)
	}

	var resp openAIResponsesResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, gatewayerr.AdapterFailureWrap("decoding openai responses response", err)
	}

	return fromOpenAIResponsesResponse(&resp), nil
}

func (p *openAIResponsesProvider) ChatCompletionStream(ctx context.Context, req *canonical.CanonicalRequest) (io.ReadCloser, error) {
	or := toOpenAIResponsesRequest(req)
	or.Stream = true

	body, err := json.Marshal(or)
	if err != nil {
		return nil, gatewayerr.AdapterFailureWrap("marshaling openai responses request", err)
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

func (p *openAIResponsesProvider) do(ctx context.Context, body []byte) (*http.Response, error) {
	url := fmt.Sprintf("%s/responses", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, gatewayerr.AdapterFailureWrap("creating openai responses request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, gatewayerr.GatewayTimeout(err)
		}
		return nil, gatewayerr.ProviderError(0, nil, err)
	}
	return resp, nil
}
