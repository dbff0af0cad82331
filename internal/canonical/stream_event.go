package canonical

// StreamEventType discriminates the tagged union of canonical streaming
// events (spec §3, "Canonical Streaming Event"). A stateful per-request
// StreamProcessor (one per adapter, constructed fresh per request — see
// Design Notes §9) folds a provider's native stream into a sequence of
// these.
type StreamEventType string

const (
	EventResponseCreated   StreamEventType = "response_created"
	EventContentDelta      StreamEventType = "content_delta"
	EventContentPartStart  StreamEventType = "content_part_start"
	EventContentPartDone   StreamEventType = "content_part_done"
	EventOutputItemAdded   StreamEventType = "output_item_added"
	EventOutputItemDone    StreamEventType = "output_item_done"
	EventOutputTextDone    StreamEventType = "output_text_done"
	EventToolCallStart     StreamEventType = "tool_call_start"
	EventFunctionArgsDelta StreamEventType = "function_call_arguments_delta"
	EventFunctionArgsDone  StreamEventType = "function_call_arguments_done"
	EventRefusalDelta      StreamEventType = "refusal_delta"
	EventRefusalDone       StreamEventType = "refusal_done"
	EventReasoningDelta    StreamEventType = "reasoning_summary_text_delta"
	EventReasoningDone     StreamEventType = "reasoning_summary_text_done"
	EventFileSearchCall    StreamEventType = "file_search_call"
	EventWebSearchCall     StreamEventType = "web_search_call"
	EventUsage             StreamEventType = "usage"
	EventResponseCompleted StreamEventType = "response_completed"
	EventMessageDelta      StreamEventType = "message_delta"
	EventMessageDone       StreamEventType = "message_done"
	EventPing              StreamEventType = "ping"
	EventError             StreamEventType = "error"
)

// ContentDeltaPart narrows which kind of incremental content a
// content_delta event carries.
type ContentDeltaPart string

const (
	DeltaText      ContentDeltaPart = "text"
	DeltaToolCall  ContentDeltaPart = "tool_call"
	DeltaThinking  ContentDeltaPart = "thinking"
)

// StreamEvent is the canonical streaming tagged union. Exactly the fields
// relevant to Type are populated; everything else is the zero value. This
// mirrors the approach the teacher uses for Anthropic's own streaming
// payloads (one struct, multiple event shapes, discriminated by a string
// field) rather than a sealed interface hierarchy, which keeps JSON
// (de)serialization trivial at the cost of some unused fields per event.
type StreamEvent struct {
	Type StreamEventType `json:"type"`

	// content_delta
	Part  ContentDeltaPart `json:"part,omitempty"`
	Delta string           `json:"delta,omitempty"`
	Index int              `json:"index,omitempty"`

	// tool_call_start / function_call_arguments_*
	ToolCallID   string `json:"toolCallId,omitempty"`
	ToolCallName string `json:"toolCallName,omitempty"`

	// response_completed / message_done
	FinishReason FinishReason       `json:"finishReason,omitempty"`
	Response     *CanonicalResponse `json:"response,omitempty"`

	// usage / message_delta cumulative usage
	Usage *Usage `json:"usage,omitempty"`

	// message_delta (Anthropic) carries a raw stop_reason string ahead of
	// being mapped to FinishReason by the caller.
	StopReason string `json:"stopReason,omitempty"`

	// error
	Err string `json:"error,omitempty"`

	// ProviderRaw is the escape hatch for forensics: the untranslated
	// provider event payload, kept only for debugging/CANONICAL_MODE diffs.
	ProviderRaw map[string]any `json:"providerRaw,omitempty"`
}
