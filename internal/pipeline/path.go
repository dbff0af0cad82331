package pipeline

import (
	"github.com/llmgate/gateway/internal/passthrough"
	"github.com/llmgate/gateway/internal/streaming"
)

// passthroughRoute names the sniffing strategy and credential header a
// fast-path request needs once the pipeline has decided client format and
// provider qualify for it.
type passthroughRoute struct {
	kind       passthrough.Kind
	authHeader string
}

// passthroughRoutes enumerates exactly the pairs spec §4.H point 3 allows
// onto the fast path: "Anthropic↔Anthropic, Anthropic↔xAI (grok accepts
// Anthropic messages), OpenAI-responses↔OpenAI". Every other (format,
// provider) combination takes the adapter path.
//
// The xAI row is why this table exists instead of just comparing
// clientFormat to the resolved provider.Provider's Format(): xAI's typed
// client (internal/provider's chat-completions implementation) only ever
// speaks OpenAI chat wire format, so an Anthropic-format request routed to
// xAI cannot be satisfied by that typed client at all. It has to bypass
// provider.Provider and go straight to a passthrough.Client pointed at
// xAI's base URL.
var passthroughRoutes = map[streaming.ClientFormat]map[string]passthroughRoute{
	streaming.ClientAnthropic: {
		"anthropic": {kind: passthrough.KindAnthropic, authHeader: "x-api-key"},
		"xai":       {kind: passthrough.KindAnthropic, authHeader: "Authorization"},
	},
	streaming.ClientOpenAIResponses: {
		"openai": {kind: passthrough.KindOpenAIResponses, authHeader: "Authorization"},
	},
}

// resolvePassthrough reports whether (clientFormat, providerName) is one
// of the table rows above, and if so which sniffing/auth strategy to use.
func resolvePassthrough(clientFormat streaming.ClientFormat, providerName string) (passthroughRoute, bool) {
	byProvider, ok := passthroughRoutes[clientFormat]
	if !ok {
		return passthroughRoute{}, false
	}
	route, ok := byProvider[providerName]
	return route, ok
}
