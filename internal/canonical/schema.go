// Package canonical defines the provider-neutral intermediate representation
// that every client wire format is translated into, and every provider wire
// format is translated out of.
//
// Think of this as the one "internal" shape in a set of format converters:
// OpenAI chat, OpenAI responses, and Anthropic messages all normalise down
// to CanonicalRequest before dispatch, and every provider response comes
// back up through CanonicalResponse before being rendered for the client.
// Nothing downstream of this package (the router, the provider clients, the
// usage store) ever looks at a client- or provider-specific shape again.
package canonical

// SchemaVersion is bumped whenever a breaking change is made to the shapes
// in this file. Adapters and the usage store don't currently branch on it,
// but it's threaded through CanonicalRequest so a future migration has
// somewhere to read it from.
const SchemaVersion = "2024-11-canonical-v1"

// Role is the speaker of a message turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType discriminates the variants of ContentPart. Exactly one of the
// corresponding fields on ContentPart is populated for a given Type — this
// is Go's answer to a tagged union/discriminated TypeScript type, since the
// language has no sum types of its own.
type PartType string

const (
	PartText       PartType = "text"
	PartImageURL   PartType = "image_url"
	PartImageBytes PartType = "image_bytes"
	PartAudio      PartType = "audio"
	PartDocument   PartType = "document"
	PartToolResult PartType = "tool_result"
	PartReasoning  PartType = "reasoning"
)

// ContentPart is one piece of a message's content. Messages carry a slice
// of these rather than a single string so that multi-part content (text +
// image, text + tool result, text + model "thinking") can round-trip
// without lossy flattening.
type ContentPart struct {
	Type PartType `json:"type"`

	// Text holds the payload for PartText, and the rendered summary for
	// PartReasoning when a provider doesn't separate summary from content.
	Text string `json:"text,omitempty"`

	// ImageURL/ImageBytes/MimeType back the image/audio/document variants.
	ImageURL string `json:"imageUrl,omitempty"`
	// ImageBytes is base64-encoded inline data, used when a provider
	// accepts bytes rather than a fetchable URL.
	ImageBytes string `json:"imageBytes,omitempty"`
	MimeType   string `json:"mimeType,omitempty"`

	// ToolResult fields, present when Type == PartToolResult.
	ToolCallID string `json:"toolCallId,omitempty"`
	ToolResult string `json:"toolResult,omitempty"`
	IsError    bool   `json:"isError,omitempty"`

	// Reasoning fields, present when Type == PartReasoning. Anthropic and
	// OpenAI responses both emit a "thinking"/"reasoning" block; the three
	// sub-fields let either provider's shape round-trip without loss.
	Summary          string `json:"summary,omitempty"`
	Content          string `json:"content,omitempty"`
	EncryptedContent string `json:"encryptedContent,omitempty"`

	// Index is the provider-assigned position of this part within a
	// streamed content array. No adapter or streaming processor sets or
	// reads it (the processors carry positions on StreamEvent.Index), so
	// it is always nil.
	Index *int `json:"index,omitempty"`
}

// ToolCall is a single function/tool invocation requested by the assistant.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON text, not yet parsed
}

// Message is one turn in the conversation.
type Message struct {
	Role       Role          `json:"role"`
	Content    []ContentPart `json:"content"`
	Name       string        `json:"name,omitempty"`
	ToolCallID string        `json:"toolCallId,omitempty"`
	ToolCalls  []ToolCall    `json:"toolCalls,omitempty"`
}

// Text concatenates every PartText in the message; other part types,
// reasoning included, are skipped. Used by round-trip tests and by adapters that
// need a single string for providers with no multi-part content model.
func (m Message) Text() string {
	var out string
	for _, p := range m.Content {
		if p.Type == PartText {
			out += p.Text
		}
	}
	return out
}

// ToolDescriptor describes a function the model may call.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema object
}

// ToolChoiceMode selects how the model should use the declared tools.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceFunction ToolChoiceMode = "function"
)

// ToolChoice is a closed variant: Mode selects the behaviour, and Name is
// only meaningful when Mode == ToolChoiceFunction.
type ToolChoice struct {
	Mode ToolChoiceMode `json:"mode"`
	Name string         `json:"name,omitempty"`
}

// GenerationParams carries the sampling/limit knobs that every provider
// accepts under a different key. Adapters translate these field names on
// the way out; canonical keeps one vocabulary.
type GenerationParams struct {
	MaxTokens     *int     `json:"maxTokens,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	TopP          *float64 `json:"topP,omitempty"`
	TopK          *int     `json:"topK,omitempty"`
	StopSequences []string `json:"stopSequences,omitempty"`
	Seed          *int64   `json:"seed,omitempty"`
}

// ThinkingConfig carries reasoning controls that a subset of providers
// accept (Anthropic extended thinking, OpenAI reasoning_effort).
type ThinkingConfig struct {
	Enabled         bool   `json:"enabled,omitempty"`
	BudgetTokens    *int   `json:"budgetTokens,omitempty"`
	ReasoningEffort string `json:"reasoningEffort,omitempty"` // "low" | "medium" | "high"
}

// CanonicalRequest is the single IR that every client format normalises
// into and every provider format is rendered from. See spec §3.
type CanonicalRequest struct {
	SchemaVersion string `json:"schemaVersion"`

	// Model is opaque to canonical. It may carry a leading
	// "<provider>/<name>" qualifier; the router (internal/router) strips
	// that prefix before a provider client ever sees the model string.
	Model string `json:"model"`

	// System holds the system/instructions block, collapsed to a single
	// string by every adapter. SystemParts is not set or read by any
	// adapter or provider client.
	System      string        `json:"system,omitempty"`
	SystemParts []ContentPart `json:"systemParts,omitempty"`

	Messages []Message `json:"messages"`

	Tools      []ToolDescriptor `json:"tools,omitempty"`
	ToolChoice *ToolChoice      `json:"toolChoice,omitempty"`

	Generation GenerationParams `json:"generation"`

	Stream bool   `json:"stream"`
	User   string `json:"user,omitempty"`

	Thinking        *ThinkingConfig `json:"thinking,omitempty"`
	ReasoningEffort string          `json:"reasoningEffort,omitempty"`

	// ProviderParams is the one place opaque, provider-specific opt-in
	// fields live: a map from provider name to an arbitrary JSON value.
	// No provider client reads it, so nothing in it reaches the outbound
	// request. Every other field in this struct is a statically described
	// variant — see Design Notes §9.
	ProviderParams map[string]map[string]any `json:"providerParams,omitempty"`
}

// FinishReason is a closed set of reasons a response stopped generating.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength         FinishReason = "length"
	FinishToolCalls      FinishReason = "tool_calls"
	FinishContentFilter  FinishReason = "content_filter"
	FinishStopSequence   FinishReason = "stop_sequence"
	FinishError          FinishReason = "error"
)

// Usage carries token counts in both the Anthropic and OpenAI vocabularies
// so consumers of either can read the fields they expect (spec §4.B,
// Anthropic "usage translation").
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`

	CachedTokens    int `json:"cachedTokens,omitempty"`
	CacheWriteTokens int `json:"cacheWriteTokens,omitempty"`
	ReasoningTokens int `json:"reasoningTokens,omitempty"`

	// OpenAI vocabulary mirror, always kept in sync with the fields above.
	PromptTokens     int `json:"promptTokens,omitempty"`
	CompletionTokens int `json:"completionTokens,omitempty"`
}

// Normalize fills in the OpenAI-vocabulary mirror fields and TotalTokens
// from the canonical (Anthropic-shaped) fields, or vice versa, whichever
// side an adapter populated. Call this once after an adapter builds a
// Usage value so every consumer sees both vocabularies filled in.
func (u *Usage) Normalize() {
	if u.PromptTokens == 0 && u.InputTokens != 0 {
		u.PromptTokens = u.InputTokens
	}
	if u.CompletionTokens == 0 && u.OutputTokens != 0 {
		u.CompletionTokens = u.OutputTokens
	}
	if u.InputTokens == 0 && u.PromptTokens != 0 {
		u.InputTokens = u.PromptTokens
	}
	if u.OutputTokens == 0 && u.CompletionTokens != 0 {
		u.OutputTokens = u.CompletionTokens
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.InputTokens + u.OutputTokens
	}
}

// Choice is one candidate completion. Canonical responses always carry at
// least one.
type Choice struct {
	Index        int          `json:"index"`
	Message      Message      `json:"message"`
	FinishReason FinishReason `json:"finishReason"`
}

// CanonicalResponse is the non-streaming IR a provider's response is
// translated into before being rendered for the client.
type CanonicalResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Created int64    `json:"created"` // unix seconds
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`

	ProviderParams map[string]map[string]any `json:"providerParams,omitempty"`
}
