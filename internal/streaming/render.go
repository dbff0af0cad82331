package streaming

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/llmgate/gateway/internal/canonical"
)

// ClientFormat names which SSE shape a rendered canonical event should
// take. Mirrors gatewayerr.ClientFormat's three variants but kept local so
// this package doesn't need to import gatewayerr just for an enum.
type ClientFormat string

const (
	ClientOpenAIChat      ClientFormat = "openai_chat"
	ClientOpenAIResponses ClientFormat = "openai_responses"
	ClientAnthropic       ClientFormat = "anthropic"
)

// EventWriter renders canonical stream events into a client's native SSE
// shape and writes them to w, flushing after each event (spec §4.G point
// 1: headers set once, before any body bytes — callers call Headers()
// before constructing an EventWriter).
type EventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	format  ClientFormat
	id      string
	model   string
}

// NewEventWriter constructs a writer for one streaming response. id/model
// are threaded into every rendered chunk the way OpenAI and Anthropic both
// expect (same id across all chunks in one stream).
func NewEventWriter(w http.ResponseWriter, format ClientFormat, id, model string) (*EventWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	return &EventWriter{w: w, flusher: flusher, format: format, id: id, model: model}, nil
}

// Write renders one canonical event and flushes it to the client. Errors
// returned here mean the client socket broke; the caller should stop the
// pump and not attempt a JSON error body (spec §4.G point 2).
func (ew *EventWriter) Write(event canonical.StreamEvent) error {
	switch ew.format {
	case ClientOpenAIChat:
		return ew.writeOpenAIChat(event)
	case ClientAnthropic:
		return ew.writeAnthropic(event)
	default:
		return ew.writeOpenAIResponses(event)
	}
}

// Done writes the OpenAI "data: [DONE]\n\n" sentinel. Only OpenAI-family
// formats expect it (spec §6, "a terminating data: [DONE] ... only when
// the client expects OpenAI conventions").
func (ew *EventWriter) Done() error {
	if ew.format == ClientAnthropic {
		return nil
	}
	return ew.writeRaw("[DONE]")
}

func (ew *EventWriter) writeRaw(payload string) error {
	if _, err := fmt.Fprintf(ew.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	ew.flusher.Flush()
	return nil
}

func (ew *EventWriter) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ew.writeRaw(string(b))
}

// --- OpenAI chat/completions rendering ---

type chatSSEChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Model   string         `json:"model"`
	Choices []chatSSEChoice `json:"choices"`
	Usage   *chatSSEUsage  `json:"usage,omitempty"`
}

type chatSSEChoice struct {
	Index        int          `json:"index"`
	Delta        chatSSEDelta `json:"delta"`
	FinishReason *string      `json:"finish_reason"`
}

type chatSSEDelta struct {
	Content string `json:"content,omitempty"`
}

type chatSSEUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (ew *EventWriter) writeOpenAIChat(event canonical.StreamEvent) error {
	switch event.Type {
	case canonical.EventContentDelta:
		if event.Part != canonical.DeltaText {
			return nil
		}
		return ew.writeJSON(chatSSEChunk{
			ID: ew.id, Object: "chat.completion.chunk", Model: ew.model,
			Choices: []chatSSEChoice{{Delta: chatSSEDelta{Content: event.Delta}}},
		})
	case canonical.EventResponseCompleted:
		reason := string(event.FinishReason)
		chunk := chatSSEChunk{ID: ew.id, Object: "chat.completion.chunk", Model: ew.model, Choices: []chatSSEChoice{{FinishReason: &reason}}}
		if event.Usage != nil {
			chunk.Usage = &chatSSEUsage{PromptTokens: event.Usage.PromptTokens, CompletionTokens: event.Usage.CompletionTokens, TotalTokens: event.Usage.TotalTokens}
		}
		return ew.writeJSON(chunk)
	default:
		return nil
	}
}

// --- Anthropic messages rendering ---

func (ew *EventWriter) writeAnthropic(event canonical.StreamEvent) error {
	switch event.Type {
	case canonical.EventResponseCreated:
		return ew.writeJSON(map[string]any{"type": "message_start", "message": map[string]any{"id": ew.id, "model": ew.model}})
	case canonical.EventContentDelta:
		deltaType := "text_delta"
		if event.Part == canonical.DeltaToolCall {
			deltaType = "input_json_delta"
		} else if event.Part == canonical.DeltaThinking {
			deltaType = "thinking_delta"
		}
		return ew.writeJSON(map[string]any{"type": "content_block_delta", "index": event.Index, "delta": map[string]any{"type": deltaType, "text": event.Delta}})
	case canonical.EventMessageDelta:
		payload := map[string]any{"type": "message_delta", "delta": map[string]any{"stop_reason": event.StopReason}}
		if event.Usage != nil {
			payload["usage"] = map[string]any{"output_tokens": event.Usage.OutputTokens}
		}
		return ew.writeJSON(payload)
	case canonical.EventMessageDone:
		return ew.writeJSON(map[string]any{"type": "message_stop"})
	default:
		return nil
	}
}

// --- OpenAI responses rendering ---

func (ew *EventWriter) writeOpenAIResponses(event canonical.StreamEvent) error {
	switch event.Type {
	case canonical.EventResponseCreated:
		return ew.writeJSON(map[string]any{"type": "response.created"})
	case canonical.EventContentDelta:
		if event.Part != canonical.DeltaText {
			return nil
		}
		return ew.writeJSON(map[string]any{"type": "response.output_text.delta", "delta": event.Delta, "output_index": event.Index})
	case canonical.EventFunctionArgsDelta:
		return ew.writeJSON(map[string]any{"type": "response.function_call.arguments.delta", "delta": event.Delta, "output_index": event.Index})
	case canonical.EventResponseCompleted:
		return ew.writeJSON(map[string]any{"type": "response.completed", "response": map[string]any{"id": ew.id, "status": "completed"}})
	default:
		return nil
	}
}
