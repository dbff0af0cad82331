// Package provider implements the per-upstream HTTP clients that dispatch
// canonical requests to OpenAI, Anthropic, xAI, OpenRouter, and Ollama
// (spec §4.E).
package provider

import (
	"context"
	"io"

	"github.com/llmgate/gateway/internal/canonical"
)

// Provider is the interface every upstream LLM backend satisfies. The rest
// of the gateway — router, pipeline, passthrough — works only with this
// interface, never a concrete provider type.
type Provider interface {
	// Name returns the provider identifier used for routing, logging,
	// metrics labels, and pricing catalog lookups, e.g. "openai".
	Name() string

	// ChatCompletion dispatches a non-streaming canonical request and
	// returns the upstream's response translated back to canonical.
	ChatCompletion(ctx context.Context, req *canonical.CanonicalRequest) (*canonical.CanonicalResponse, error)

	// ChatCompletionStream dispatches a streaming request and returns the
	// upstream's undecoded byte stream (spec §4.E: "Clients must never
	// buffer a streaming response; they return the undecoded byte
	// source"). Decoding into canonical stream events, or raw forwarding,
	// is the streaming engine and adapter layer's job, not the client's.
	ChatCompletionStream(ctx context.Context, req *canonical.CanonicalRequest) (io.ReadCloser, error)

	// Format identifies the wire format this provider natively speaks,
	// used by the pipeline to decide whether a request can take the
	// passthrough fast path (spec §4.H).
	Format() WireFormat
}

// WireFormat names a request/response wire shape a provider or client
// might speak, used for passthrough path selection (spec §4.H).
type WireFormat string

const (
	FormatOpenAIChat      WireFormat = "openai_chat"
	FormatOpenAIResponses WireFormat = "openai_responses"
	FormatAnthropic       WireFormat = "anthropic"
)

// AuthScheme names how a provider expects its credential attached to a
// request (spec §4.E: "enforce provider-specific authorization header
// scheme (bearer, x-api-key, custom)").
type AuthScheme int

const (
	AuthBearer AuthScheme = iota
	AuthXAPIKey
	AuthNone
)
