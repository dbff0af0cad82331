package gatewayerr

// ClientFormat identifies which wire format an error body should be
// rendered in — it mirrors the three public entry points in spec §6.
type ClientFormat string

const (
	FormatOpenAIChat      ClientFormat = "openai_chat"
	FormatOpenAIResponses ClientFormat = "openai_responses"
	FormatAnthropic       ClientFormat = "anthropic"
)

// openAIErrorType maps a Kind onto the "type" field OpenAI clients expect
// inside error.type.
var openAIErrorType = map[Kind]string{
	KindInvalidInput:          "invalid_request_error",
	KindUnauthorized:          "authentication_error",
	KindNoProvidersConfigured: "api_error",
	KindModelNotSupported:     "invalid_request_error",
	KindProviderError:         "upstream_error",
	KindGatewayTimeout:        "timeout_error",
	KindAdapterFailure:        "api_error",
	KindStorageError:          "api_error",
}

// anthropicErrorType maps a Kind onto Anthropic's error.type vocabulary.
var anthropicErrorType = map[Kind]string{
	KindInvalidInput:          "invalid_request_error",
	KindUnauthorized:          "authentication_error",
	KindNoProvidersConfigured: "api_error",
	KindModelNotSupported:     "invalid_request_error",
	KindProviderError:         "api_error",
	KindGatewayTimeout:        "timeout_error",
	KindAdapterFailure:        "api_error",
	KindStorageError:          "api_error",
}

// Render builds the JSON-serialisable error body for the given client
// format, per spec §7's propagation policy: "errors before response
// headers are written produce a structured JSON error body in the
// client's native format."
func (e *Error) Render(format ClientFormat) any {
	switch format {
	case FormatAnthropic:
		return map[string]any{
			"type": "error",
			"error": map[string]any{
				"type":    anthropicErrorType[e.Kind],
				"message": e.Message,
			},
		}
	default: // FormatOpenAIChat, FormatOpenAIResponses
		return map[string]any{
			"error": map[string]any{
				"message": e.Message,
				"type":    openAIErrorType[e.Kind],
				"code":    string(e.Kind),
			},
		}
	}
}
