package openairesponses

import (
	"encoding/json"

	"github.com/llmgate/gateway/internal/canonical"
)

// responsesEvent is a lightweight wrapper decoded first to read the event
// type, then the relevant sub-object, mirroring the Anthropic processor's
// approach in the sibling adapter package.
type responsesEvent struct {
	Type     string          `json:"type"`
	Delta    string          `json:"delta,omitempty"`
	Text     string          `json:"text,omitempty"`
	ItemID   string          `json:"item_id,omitempty"`
	Index    int             `json:"output_index,omitempty"`
	Item     *responsesItem  `json:"item,omitempty"`
	Response *responsesBody  `json:"response,omitempty"`
	Usage    *responsesUsage `json:"usage,omitempty"`
}

type responsesItem struct {
	Type   string `json:"type"`
	Name   string `json:"name,omitempty"`
	CallID string `json:"call_id,omitempty"`
}

type responsesBody struct {
	ID     string         `json:"id"`
	Status string         `json:"status"`
	Usage  responsesUsage `json:"usage"`
}

type responsesUsage struct {
	InputTokens        int `json:"input_tokens"`
	OutputTokens       int `json:"output_tokens"`
	InputTokensDetails struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"input_tokens_details"`
}

// StreamProcessor folds /v1/responses SSE events into canonical events,
// per the authoritative mapping table in spec §4.B.
type StreamProcessor struct{}

func NewStreamProcessor() *StreamProcessor { return &StreamProcessor{} }

func (p *StreamProcessor) Process(raw []byte) ([]canonical.StreamEvent, error) {
	var event responsesEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, err
	}

	switch event.Type {
	case "response.created":
		return []canonical.StreamEvent{{Type: canonical.EventResponseCreated}}, nil

	case "response.output_text.delta":
		return []canonical.StreamEvent{{Type: canonical.EventContentDelta, Part: canonical.DeltaText, Index: event.Index, Delta: event.Delta}}, nil

	case "response.output_text.done":
		return []canonical.StreamEvent{{Type: canonical.EventOutputTextDone, Index: event.Index}}, nil

	case "response.content_part.added":
		return []canonical.StreamEvent{{Type: canonical.EventContentPartStart, Index: event.Index}}, nil
	case "response.content_part.done":
		return []canonical.StreamEvent{{Type: canonical.EventContentPartDone, Index: event.Index}}, nil

	case "response.output_item.added":
		ev := canonical.StreamEvent{Type: canonical.EventOutputItemAdded, Index: event.Index}
		if event.Item != nil {
			ev.ToolCallName = event.Item.Name
			ev.ToolCallID = event.Item.CallID
		}
		return []canonical.StreamEvent{ev}, nil
	case "response.output_item.done":
		return []canonical.StreamEvent{{Type: canonical.EventOutputItemDone, Index: event.Index}}, nil

	case "response.function_call.arguments.delta":
		return []canonical.StreamEvent{{Type: canonical.EventFunctionArgsDelta, Index: event.Index, Delta: event.Delta}}, nil
	case "response.function_call.arguments.done":
		return []canonical.StreamEvent{{Type: canonical.EventFunctionArgsDone, Index: event.Index}}, nil

	case "response.reasoning.summary.delta":
		return []canonical.StreamEvent{{Type: canonical.EventReasoningDelta, Index: event.Index, Delta: event.Delta}}, nil
	case "response.reasoning.summary.done":
		return []canonical.StreamEvent{{Type: canonical.EventReasoningDone, Index: event.Index}}, nil

	case "response.refusal.delta":
		return []canonical.StreamEvent{{Type: canonical.EventRefusalDelta, Index: event.Index, Delta: event.Delta}}, nil
	case "response.refusal.done":
		return []canonical.StreamEvent{{Type: canonical.EventRefusalDone, Index: event.Index}}, nil

	case "response.file_search_call.in_progress", "response.file_search_call.searching", "response.file_search_call.completed":
		return []canonical.StreamEvent{{Type: canonical.EventFileSearchCall}}, nil
	case "response.web_search_call.in_progress", "response.web_search_call.searching", "response.web_search_call.completed":
		return []canonical.StreamEvent{{Type: canonical.EventWebSearchCall}}, nil

	case "response.usage":
		if event.Usage == nil {
			return nil, nil
		}
		u := &canonical.Usage{InputTokens: event.Usage.InputTokens, OutputTokens: event.Usage.OutputTokens, CachedTokens: event.Usage.InputTokensDetails.CachedTokens}
		u.Normalize()
		return []canonical.StreamEvent{{Type: canonical.EventUsage, Usage: u}}, nil

	case "response.completed":
		ev := canonical.StreamEvent{Type: canonical.EventResponseCompleted, FinishReason: canonical.FinishStop}
		if event.Response != nil {
			ev.FinishReason = responseStatusToFinish(event.Response.Status)
			u := &canonical.Usage{InputTokens: event.Response.Usage.InputTokens, OutputTokens: event.Response.Usage.OutputTokens, CachedTokens: event.Response.Usage.InputTokensDetails.CachedTokens}
			u.Normalize()
			ev.Usage = u
		}
		return []canonical.StreamEvent{ev}, nil

	case "error", "response.error":
		return []canonical.StreamEvent{{Type: canonical.EventError, Err: event.Text}}, nil

	default:
		return nil, nil
	}
}

func responseStatusToFinish(status string) canonical.FinishReason {
	switch status {
	case "incomplete":
		return canonical.FinishLength
	case "failed":
		return canonical.FinishError
	default:
		return canonical.FinishStop
	}
}
