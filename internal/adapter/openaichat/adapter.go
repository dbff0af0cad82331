// Package openaichat translates between the OpenAI chat/completions wire
// format and the gateway's canonical representation (spec §4.B).
package openaichat

import (
	"encoding/json"

	"github.com/llmgate/gateway/internal/canonical"
	"github.com/llmgate/gateway/internal/gatewayerr"
)

// ClientRequest is the JSON shape POST /v1/chat/completions accepts.
type ClientRequest struct {
	Model            string          `json:"model"`
	Messages         []ClientMessage `json:"messages"`
	Stream           bool            `json:"stream,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int         `json:"max_completion_tokens,omitempty"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	Stop             []string        `json:"stop,omitempty"`
	Seed             *int64          `json:"seed,omitempty"`
	User             string          `json:"user,omitempty"`
	Tools            []ClientTool    `json:"tools,omitempty"`
	ToolChoice       json.RawMessage `json:"tool_choice,omitempty"`
}

type ClientTool struct {
	Type     string         `json:"type"`
	Function ClientFunction `json:"function"`
}

type ClientFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type ClientMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	Name       string           `json:"name,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolCalls  []ClientToolCall `json:"tool_calls,omitempty"`
}

type ClientToolCall struct {
	ID       string                 `json:"id"`
	Type     string                 `json:"type"`
	Function ClientToolCallFunction `json:"function"`
}

type ClientToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ClientResponse is the JSON shape the gateway replies with.
type ClientResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []ClientChoice `json:"choices"`
	Usage   ClientUsage    `json:"usage"`
}

type ClientChoice struct {
	Index        int           `json:"index"`
	Message      ClientMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type ClientUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ClientToCanonical translates an incoming chat/completions body into the
// canonical request (spec §4.B, "OpenAI chat ↔ canonical"). A top-level
// system message is extracted into canonical.System.
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
		Stream:        req.Stream,
		User:          req.User,
		Generation: canonical.GenerationParams{
			Temperature:   req.Temperature,
			TopP:          req.TopP,
			StopSequences: req.Stop,
			Seed:          req.Seed,
		},
	}

	if req.MaxTokens != nil {
		cr.Generation.MaxTokens = req.MaxTokens
	} else if req.MaxCompletionTokens != nil {
		cr.Generation.MaxTokens = req.MaxCompletionTokens
	}

	for _, m := range req.Messages {
		if m.Role == "system" {
			if cr.System != "" {
				cr.System += "\n"
			}
			cr.System += m.Content
			continue
		}

		cm := canonical.Message{Role: canonical.Role(m.Role), Name: m.Name, ToolCallID: m.ToolCallID}
		if m.Content != "" {
			cm.Content = append(cm.Content, canonical.ContentPart{Type: canonical.PartText, Text: m.Content})
		}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, canonical.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
		}
		cr.Messages = append(cr.Messages, cm)
	}

	for _, t := range req.Tools {
		cr.Tools = append(cr.Tools, canonical.ToolDescriptor{Name: t.Function.Name, Description: t.Function.Description, Parameters: t.Function.Parameters})
	}

	if len(req.ToolChoice) > 0 {
		choice, err := parseToolChoice(req.ToolChoice)
		if err != nil {
			return nil, gatewayerr.InvalidInput("invalid tool_choice: %v", err)
		}
		cr.ToolChoice = choice
	}

	return cr, nil
}

func parseToolChoice(raw json.RawMessage) (*canonical.ToolChoice, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return &canonical.ToolChoice{Mode: canonical.ToolChoiceMode(asString)}, nil
	}

	var asObject struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(raw, &asObject); err != nil {
		return nil, err
	}
	return &canonical.ToolChoice{Mode: canonical.ToolChoiceFunction, Name: asObject.Function.Name}, nil
}

// CanonicalToClient renders a canonical response as the chat/completions
// reply body.
func CanonicalToClient(resp *canonical.CanonicalResponse) *ClientResponse {
	out := &ClientResponse{ID: resp.ID, Object: "chat.completion", Created: resp.Created, Model: resp.Model}

	for _, c := range resp.Choices {
		cm := ClientMessage{Role: "assistant", Content: c.Message.Text()}
		for _, tc := range c.Message.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, ClientToolCall{ID: tc.ID, Type: "function", Function: ClientToolCallFunction{Name: tc.Name, Arguments: tc.Arguments}})
		}
		out.Choices = append(out.Choices, ClientChoice{Index: c.Index, Message: cm, FinishReason: string(c.FinishReason)})
	}

	out.Usage = ClientUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}

	return out
}
