package anthropic

import (
	"encoding/json"

	"github.com/llmgate/gateway/internal/canonical"
)

// anthropicStreamEvent mirrors the teacher's wrapper-struct approach to
// Anthropic's named SSE events: one struct, several optional sub-objects,
// discriminated by Type.
type anthropicStreamEvent struct {
	Type         string               `json:"type"`
	Message      *eventMessage        `json:"message,omitempty"`
	ContentBlock *eventContentBlock   `json:"content_block,omitempty"`
	Delta        *eventDelta          `json:"delta,omitempty"`
	Usage        *eventUsage          `json:"usage,omitempty"`
	Index        int                  `json:"index"`
}

type eventMessage struct {
	ID    string     `json:"id"`
	Model string     `json:"model"`
	Usage eventUsage `json:"usage"`
}

type eventContentBlock struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type eventDelta struct {
	Type        string `json:"type,omitempty"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

type eventUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

// StreamProcessor folds Anthropic's event-per-line SSE stream into
// canonical events. One instance per request: it records each content
// block's type (text vs tool_use vs thinking) as the block opens, but
// deltas are mapped by the delta's own type field, so that record is not
// consulted.
type StreamProcessor struct {
	blockTypes  map[int]string
	inputTokens int
}

func NewStreamProcessor() *StreamProcessor {
	return &StreamProcessor{blockTypes: make(map[int]string)}
}

// Process maps one decoded Anthropic SSE event to zero or more canonical
// events (spec §4.B "Anthropic messages ↔ canonical", streaming bullet).
func (p *StreamProcessor) Process(raw []byte) ([]canonical.StreamEvent, error) {
	var event anthropicStreamEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, err
	}

	switch event.Type {
	case "message_start":
		if event.Message == nil {
			return nil, nil
		}
		p.inputTokens = event.Message.Usage.InputTokens
		return []canonical.StreamEvent{{
			Type: canonical.EventResponseCreated,
			Usage: &canonical.Usage{
				InputTokens:      event.Message.Usage.InputTokens,
				CacheWriteTokens: event.Message.Usage.CacheCreationInputTokens,
				CachedTokens:     event.Message.Usage.CacheCreationInputTokens + event.Message.Usage.CacheReadInputTokens,
			},
		}}, nil

	case "content_block_start":
		if event.ContentBlock == nil {
			return nil, nil
		}
		p.blockTypes[event.Index] = event.ContentBlock.Type
		if event.ContentBlock.Type == "tool_use" {
			return []canonical.StreamEvent{{
				Type:         canonical.EventToolCallStart,
				Index:        event.Index,
				ToolCallID:   event.ContentBlock.ID,
				ToolCallName: event.ContentBlock.Name,
			}}, nil
		}
		return []canonical.StreamEvent{{Type: canonical.EventContentPartStart, Index: event.Index}}, nil

	case "content_block_delta":
		if event.Delta == nil {
			return nil, nil
		}
		switch event.Delta.Type {
		case "text_delta":
			return []canonical.StreamEvent{{Type: canonical.EventContentDelta, Part: canonical.DeltaText, Index: event.Index, Delta: event.Delta.Text}}, nil
		case "input_json_delta":
			return []canonical.StreamEvent{{Type: canonical.EventContentDelta, Part: canonical.DeltaToolCall, Index: event.Index, Delta: event.Delta.PartialJSON}}, nil
		case "thinking_delta":
			return []canonical.StreamEvent{{Type: canonical.EventContentDelta, Part: canonical.DeltaThinking, Index: event.Index, Delta: event.Delta.Text}}, nil
		}
		return nil, nil

	case "content_block_stop":
		return []canonical.StreamEvent{{Type: canonical.EventContentPartDone, Index: event.Index}}, nil

	case "message_delta":
		u := &canonical.Usage{InputTokens: p.inputTokens}
		if event.Usage != nil {
			u.OutputTokens = event.Usage.OutputTokens
		}
		u.Normalize()
		var stopReason string
		if event.Delta != nil {
			stopReason = event.Delta.StopReason
		}
		return []canonical.StreamEvent{{Type: canonical.EventMessageDelta, StopReason: stopReason, Usage: u}}, nil

	case "message_stop":
		return []canonical.StreamEvent{{Type: canonical.EventMessageDone}}, nil

	case "ping":
		return []canonical.StreamEvent{{Type: canonical.EventPing}}, nil

	case "error":
		return []canonical.StreamEvent{{Type: canonical.EventError}}, nil

	default:
		return nil, nil
	}
}
