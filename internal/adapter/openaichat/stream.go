package openaichat

import (
	"encoding/json"

	"github.com/llmgate/gateway/internal/canonical"
)

// chatChunk is one SSE "data:" payload the chat/completions wire format
// emits while streaming.
type chatChunk struct {
	ID      string            `json:"id"`
	Model   string            `json:"model"`
	Choices []chatChunkChoice `json:"choices"`
	Usage   *openAIChatUsage  `json:"usage,omitempty"`
}

type chatChunkChoice struct {
	Index        int           `json:"index"`
	Delta        chatChunkDelta `json:"delta"`
	FinishReason string        `json:"finish_reason,omitempty"`
}

type chatChunkDelta struct {
	Content   string               `json:"content,omitempty"`
	ToolCalls []chatChunkToolCall  `json:"tool_calls,omitempty"`
}

type chatChunkToolCall struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

type openAIChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StreamProcessor folds a sequence of chat/completions SSE chunks into
// canonical stream events. A fresh instance is constructed per request
// (spec §4.B design note), since it tracks per-response state: which
// tool-call index is currently open.
type StreamProcessor struct {
	sentCreated  bool
	openToolCall map[int]string // chunk tool_call index -> call id, once first seen
}

// NewStreamProcessor constructs a processor with empty per-response state.
func NewStreamProcessor() *StreamProcessor {
	return &StreamProcessor{openToolCall: make(map[int]string)}
}

// Process maps one raw "data: {...}" payload (already stripped of the
// "data: " prefix) to zero or more canonical events.
func (p *StreamProcessor) Process(raw []byte) ([]canonical.StreamEvent, error) {
	var chunk chatChunk
	if err := json.Unmarshal(raw, &chunk); err != nil {
		return nil, err
	}

	var events []canonical.StreamEvent

	if !p.sentCreated {
		p.sentCreated = true
		events = append(events, canonical.StreamEvent{Type: canonical.EventResponseCreated})
	}

	for _, choice := range chunk.Choices {
		if choice.Delta.Content != "" {
			events = append(events, canonical.StreamEvent{
				Type: canonical.EventContentDelta,
				Part: canonical.DeltaText,
				Delta: choice.Delta.Content,
			})
		}

		for _, tc := range choice.Delta.ToolCalls {
			id, seen := p.openToolCall[tc.Index]
			if !seen {
				id = tc.ID
				p.openToolCall[tc.Index] = id
				events = append(events, canonical.StreamEvent{
					Type:         canonical.EventToolCallStart,
					Index:        tc.Index,
					ToolCallID:   id,
					ToolCallName: tc.Function.Name,
				})
			}
			if tc.Function.Arguments != "" {
				events = append(events, canonical.StreamEvent{
					Type:       canonical.EventFunctionArgsDelta,
					Index:      tc.Index,
					ToolCallID: id,
					Delta:      tc.Function.Arguments,
				})
			}
		}

		if choice.FinishReason != "" {
			events = append(events, canonical.StreamEvent{
				Type:         canonical.EventResponseCompleted,
				FinishReason: mapFinishReason(choice.FinishReason),
			})
		}
	}

	if chunk.Usage != nil {
		u := canonical.Usage{
			PromptTokens:     chunk.Usage.PromptTokens,
			CompletionTokens: chunk.Usage.CompletionTokens,
			TotalTokens:      chunk.Usage.TotalTokens,
		}
		u.Normalize()
		events = append(events, canonical.StreamEvent{Type: canonical.EventUsage, Usage: &u})
	}

	return events, nil
}

func mapFinishReason(reason string) canonical.FinishReason {
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
