// Package anthropic translates between the Anthropic messages wire format
// and the gateway's canonical representation (spec §4.B).
package anthropic

import (
	"encoding/json"

	"github.com/llmgate/gateway/internal/canonical"
	"github.com/llmgate/gateway/internal/gatewayerr"
)

var defaultMaxTokensByFamily = map[string]int{
	"claude-3-5-sonnet": 8192,
	"claude-3-5-haiku":  8192,
	"claude-haiku-4-5":  8192,
}

const fallbackMaxTokens = 4096

// ClientRequest is the JSON shape POST /v1/messages accepts.
type ClientRequest struct {
	Model       string           `json:"model"`
	MaxTokens   int              `json:"max_tokens"`
	System      string           `json:"system,omitempty"`
	Messages    []ClientMessage  `json:"messages"`
	Stream      bool             `json:"stream,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	TopP        *float64         `json:"top_p,omitempty"`
	TopK        *int             `json:"top_k,omitempty"`
	StopSeqs    []string         `json:"stop_sequences,omitempty"`
	Tools       []ClientTool     `json:"tools,omitempty"`
	ToolChoice  *ClientToolChoice `json:"tool_choice,omitempty"`
}

type ClientTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type ClientToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type ClientMessage struct {
	Role    string              `json:"role"`
	Content []ClientContentPart `json:"content"`
}

type ClientContentPart struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
}

// ClientResponse is the JSON shape the gateway replies with.
type ClientResponse struct {
	ID         string              `json:"id"`
	Type       string              `json:"type"`
	Role       string              `json:"role"`
	Model      string              `json:"model"`
	Content    []ClientContentPart `json:"content"`
	StopReason string              `json:"stop_reason"`
	Usage      ClientUsage         `json:"usage"`
}

type ClientUsage struct {
	InputTokens             int `json:"input_tokens"`
	OutputTokens            int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// ClientToCanonical translates an incoming /v1/messages body into the
// canonical request (spec §4.B "Anthropic messages ↔ canonical").
func ClientToCanonical(req *ClientRequest) (*canonical.CanonicalRequest, error) {
	if req.Model == "" {
		return nil, gatewayerr.InvalidInput("model is required")
	}
	if len(req.Messages) == 0 {
		return nil, gatewayerr.InvalidInput("messages must not be empty")
	}

	cr := &canonical.CanonicalRequest{
		SchemaVersion: canonical.SchemaVersion,
		Model:         req.Model,
		System:        req.System,
		Stream:        req.Stream,
		Generation: canonical.GenerationParams{
			Temperature:   req.Temperature,
			TopP:          req.TopP,
			TopK:          req.TopK,
			StopSequences: req.StopSeqs,
		},
	}

	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		cr.Generation.MaxTokens = &mt
	}

	for _, m := range req.Messages {
		cm := canonical.Message{Role: canonical.Role(m.Role)}
		for _, part := range m.Content {
			switch part.Type {
			case "text":
				cm.Content = append(cm.Content, canonical.ContentPart{Type: canonical.PartText, Text: part.Text})
			case "tool_result":
				cm.Content = append(cm.Content, canonical.ContentPart{Type: canonical.PartToolResult, ToolCallID: part.ToolUseID, ToolResult: part.Content, IsError: part.IsError})
			case "tool_use":
				args, _ := json.Marshal(part.Input)
				cm.ToolCalls = append(cm.ToolCalls, canonical.ToolCall{ID: part.ID, Name: part.Name, Arguments: string(args)})
			}
		}
		cr.Messages = append(cr.Messages, cm)
	}

	for _, t := range req.Tools {
		cr.Tools = append(cr.Tools, canonical.ToolDescriptor{Name: t.Name, Description: t.Description, Parameters: t.InputSchema})
	}

	if req.ToolChoice != nil {
		switch req.ToolChoice.Type {
		case "any":
			cr.ToolChoice = &canonical.ToolChoice{Mode: canonical.ToolChoiceRequired}
		case "tool":
			cr.ToolChoice = &canonical.ToolChoice{Mode: canonical.ToolChoiceFunction, Name: req.ToolChoice.Name}
		default:
			cr.ToolChoice = &canonical.ToolChoice{Mode: canonical.ToolChoiceAuto}
		}
	}

	return cr, nil
}

// DefaultMaxTokensFor returns the per-model-family default max_tokens
// (spec §4.B) for a canonical request with no generation.maxTokens set.
// The outbound Anthropic request in internal/provider uses that package's
// own defaultMaxTokensFor; nothing outside this package's tests calls
// this function.
func DefaultMaxTokensFor(model string) int {
	for family, tokens := range defaultMaxTokensByFamily {
		if len(model) >= len(family) && model[:len(family)] == family {
			return tokens
		}
	}
	return fallbackMaxTokens
}

// CanonicalToClient renders a canonical response as a /v1/messages reply.
func CanonicalToClient(resp *canonical.CanonicalResponse) *ClientResponse {
	out := &ClientResponse{ID: resp.ID, Type: "message", Role: "assistant", Model: resp.Model}
	if len(resp.Choices) == 0 {
		return out
	}

	msg := resp.Choices[0].Message
	for _, part := range msg.Content {
		switch part.Type {
		case canonical.PartText:
			out.Content = append(out.Content, ClientContentPart{Type: "text", Text: part.Text})
		case canonical.PartReasoning:
			out.Content = append(out.Content, ClientContentPart{Type: "thinking", Text: part.Content})
		}
	}
	for _, tc := range msg.ToolCalls {
		var input map[string]any
		_ = json.Unmarshal([]byte(tc.Arguments), &input)
		out.Content = append(out.Content, ClientContentPart{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: input})
	}

	out.StopReason = canonicalToStopReason(resp.Choices[0].FinishReason)
	out.Usage = ClientUsage{
		InputTokens:              resp.Usage.InputTokens,
		OutputTokens:             resp.Usage.OutputTokens,
		CacheCreationInputTokens: resp.Usage.CacheWriteTokens,
		CacheReadInputTokens:     resp.Usage.CachedTokens - resp.Usage.CacheWriteTokens,
	}
	return out
}

func canonicalToStopReason(reason canonical.FinishReason) string {
	switch reason {
	case canonical.FinishLength:
		return "max_tokens"
	case canonical.FinishToolCalls:
		return "tool_use"
	default:
		return "end_turn"
	}
}
