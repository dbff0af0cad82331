// Package openairesponses translates between the OpenAI /v1/responses
// wire format and the gateway's canonical representation (spec §4.B).
package openairesponses

import (
	"github.com/llmgate/gateway/internal/canonical"
	"github.com/llmgate/gateway/internal/gatewayerr"
)

// ClientRequest is the JSON shape POST /v1/responses accepts.
type ClientRequest struct {
	Model           string          `json:"model"`
	Input           []ClientInput   `json:"input"`
	Instructions    string          `json:"instructions,omitempty"`
	Stream          bool            `json:"stream,omitempty"`
	MaxOutputTokens *int            `json:"max_output_tokens,omitempty"`
	Temperature     *float64        `json:"temperature,omitempty"`
	TopP            *float64        `json:"top_p,omitempty"`
	Tools           []ClientTool    `json:"tools,omitempty"`
	Reasoning       *ClientReasoning `json:"reasoning,omitempty"`
}

type ClientReasoning struct {
	Effort string `json:"effort,omitempty"`
}

type ClientTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type ClientInput struct {
	Role    string            `json:"role"`
	Content []ClientInputPart `json:"content"`
}

// ClientInputPart uses "input_text" on the wire; the adapter substitutes
// canonical's "text" part type in both directions (spec §4.B).
type ClientInputPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ClientResponse is the JSON shape the gateway replies with.
type ClientResponse struct {
	ID        string             `json:"id"`
	Object    string             `json:"object"`
	Model     string             `json:"model"`
	CreatedAt int64              `json:"created_at"`
	Status    string             `json:"status"`
	Output    []ClientOutputItem `json:"output"`
	Usage     ClientUsage        `json:"usage"`
}

type ClientOutputItem struct {
	Type      string             `json:"type"`
	Role      string             `json:"role,omitempty"`
	Content   []ClientOutputPart `json:"content,omitempty"`
	Name      string             `json:"name,omitempty"`
	CallID    string             `json:"call_id,omitempty"`
	Arguments string             `json:"arguments,omitempty"`
}

type ClientOutputPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type ClientUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ClientToCanonical translates an incoming /v1/responses body into the
// canonical request.
func ClientToCanonical(req *ClientRequest) (*canonical.CanonicalRequest, error) {
	if req.Model == "" {
		return nil, gatewayerr.InvalidInput("model is required")
	}

	cr := &canonical.CanonicalRequest{
		SchemaVersion: canonical.SchemaVersion,
		Model:         req.Model,
		System:        req.Instructions,
		Stream:        req.Stream,
		Generation: canonical.GenerationParams{
			MaxTokens:   req.MaxOutputTokens,
			Temperature: req.Temperature,
			TopP:        req.TopP,
		},
	}

	if req.Reasoning != nil {
		cr.ReasoningEffort = req.Reasoning.Effort
		cr.Thinking = &canonical.ThinkingConfig{Enabled: true, ReasoningEffort: req.Reasoning.Effort}
	}

	for _, item := range req.Input {
		cm := canonical.Message{Role: canonical.Role(item.Role)}
		for _, part := range item.Content {
			if part.Type == "input_text" {
				cm.Content = append(cm.Content, canonical.ContentPart{Type: canonical.PartText, Text: part.Text})
			}
		}
		cr.Messages = append(cr.Messages, cm)
	}

	for _, t := range req.Tools {
		cr.Tools = append(cr.Tools, canonical.ToolDescriptor{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}

	return cr, nil
}

// CanonicalToClient renders a canonical response as a /v1/responses reply.
func CanonicalToClient(resp *canonical.CanonicalResponse) *ClientResponse {
	out := &ClientResponse{ID: resp.ID, Object: "response", Model: resp.Model, CreatedAt: resp.Created, Status: "completed"}
	if len(resp.Choices) == 0 {
		return out
	}

	choice := resp.Choices[0]
	if choice.FinishReason == canonical.FinishError {
		out.Status = "failed"
	} else if choice.FinishReason == canonical.FinishLength {
		out.Status = "incomplete"
	}

	var textParts []ClientOutputPart
	for _, part := range choice.Message.Content {
		if part.Type == canonical.PartText {
			textParts = append(textParts, ClientOutputPart{Type: "output_text", Text: part.Text})
		}
	}
	if len(textParts) > 0 {
		out.Output = append(out.Output, ClientOutputItem{Type: "message", Role: "assistant", Content: textParts})
	}
	for _, tc := range choice.Message.ToolCalls {
		out.Output = append(out.Output, ClientOutputItem{Type: "function_call", Name: tc.Name, CallID: tc.ID, Arguments: tc.Arguments})
	}

	out.Usage = ClientUsage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens, TotalTokens: resp.Usage.TotalTokens}
	return out
}
