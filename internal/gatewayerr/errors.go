// Package gatewayerr defines the gateway's closed error taxonomy (spec §7)
// and renders it into each client wire format's native error body.
//
// Every error that can reach an HTTP handler is one of the Kind values
// below. Handlers type-assert to *Error to get the right status code and
// body shape; anything else is treated as AdapterFailure (a bug, not an
// expected failure mode).
package gatewayerr

import "fmt"

// Kind is one row of the table in spec §7.
type Kind string

const (
	KindInvalidInput         Kind = "invalid_input"
	KindUnauthorized         Kind = "unauthorized"
	KindNoProvidersConfigured Kind = "no_providers_configured"
	KindModelNotSupported    Kind = "model_not_supported"
	KindProviderError        Kind = "provider_error"
	KindGatewayTimeout       Kind = "gateway_timeout"
	KindAdapterFailure       Kind = "adapter_failure"
	KindStreamBroken         Kind = "stream_broken"
	KindStorageError         Kind = "storage_error"
)

// httpStatus maps each Kind to the status code spec §7 assigns it.
var httpStatus = map[Kind]int{
	KindInvalidInput:          400,
	KindUnauthorized:          401,
	KindNoProvidersConfigured: 503,
	KindModelNotSupported:     400,
	KindProviderError:         502, // overridden per-instance when upstream status is known
	KindGatewayTimeout:        504,
	KindAdapterFailure:        500,
	KindStreamBroken:          0, // socket close, no status to send
	KindStorageError:          500,
}

// Error is the one error type every gateway component returns for a
// classified failure. Wrap with fmt.Errorf("...: %w", err) as usual;
// errors.As still finds the *Error underneath.
type Error struct {
	Kind Kind
	// Status overrides the Kind's default HTTP status — used by
	// KindProviderError to forward the upstream's actual status code.
	Status int
	Message string
	// Body is the raw upstream response body, forwarded verbatim for
	// KindProviderError per spec §7 ("forward upstream status + body").
	Body []byte
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus returns the status code this error should be surfaced as.
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	return httpStatus[e.Kind]
}

func newErr(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// InvalidInput wraps a client-input validation failure (bad JSON shape,
// bad timezone, unsupported param combination).
func InvalidInput(format string, args ...any) *Error {
	return newErr(KindInvalidInput, fmt.Sprintf(format, args...), nil)
}

// Unauthorized reports a missing credential for the resolved provider.
func Unauthorized(provider string) *Error {
	return newErr(KindUnauthorized, fmt.Sprintf("no credential configured for provider %q", provider), nil)
}

// NoProvidersConfigured reports that the router found no configured
// provider at all (process misconfiguration).
func NoProvidersConfigured() *Error {
	return newErr(KindNoProvidersConfigured, "no providers are configured", nil)
}

// ModelNotSupported reports that configured providers exist but none
// serves the requested model.
func ModelNotSupported(model string) *Error {
	return newErr(KindModelNotSupported, fmt.Sprintf("model %q is not served by any configured provider", model), nil)
}

// ProviderError wraps a non-2xx response from an upstream provider. The
// gateway forwards status and body to the client verbatim per spec §7.
func ProviderError(status int, body []byte, err error) *Error {
	return &Error{Kind: KindProviderError, Status: status, Message: "upstream provider error", Body: body, Err: err}
}

// GatewayTimeout reports that the upstream was too slow and no bytes had
// been sent to the client yet.
func GatewayTimeout(err error) *Error {
	return newErr(KindGatewayTimeout, "upstream did not respond in time", err)
}

// AdapterFailure wraps a translation bug or canonical schema violation.
func AdapterFailure(format string, args ...any) *Error {
	return newErr(KindAdapterFailure, fmt.Sprintf(format, args...), nil)
}

// AdapterFailureWrap wraps an adapter-internal error with context.
func AdapterFailureWrap(msg string, err error) *Error {
	return newErr(KindAdapterFailure, msg, err)
}

// StreamBroken reports a mid-stream failure after headers were already
// sent; there is no JSON body to send, just a closed socket.
func StreamBroken(err error) *Error {
	return newErr(KindStreamBroken, "stream broken", err)
}

// StorageError wraps a DB I/O failure.
func StorageError(err error) *Error {
	return newErr(KindStorageError, "storage error", err)
}

// As extracts a *Error from any error value, the way errors.As would, but
// without requiring callers to declare a local variable first.
func As(err error) (*Error, bool) {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if ge, ok := err.(*Error); ok {
			return ge, true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
