package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/llmgate/gateway/internal/gatewayerr"
	"github.com/llmgate/gateway/internal/streaming"
)

// providerHintHeader lets a client pin which provider should serve a
// request when more than one configured provider claims the model (spec
// §4.D's "clientHint" tie-break input).
const providerHintHeader = "X-LLMGate-Provider-Hint"

// peekRequest is the subset of fields every client wire format carries at
// the top level under the same names, so the pipeline can resolve routing
// before running the format-specific decode.
type peekRequest struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

// HandleChat is the single entry point all three public routes (spec §6:
// POST /v1/chat/completions, /v1/messages, /v1/responses) dispatch
// through, parameterized only by which wire format the caller speaks.
func (p *Pipeline) HandleChat(w http.ResponseWriter, r *http.Request, format streaming.ClientFormat) {
	start := time.Now()
	requestID := newRequestID()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		p.writeError(w, gatewayerr.InvalidInput("reading request body: %v", err), format)
		return
	}

	var peek peekRequest
	if err := json.Unmarshal(body, &peek); err != nil {
		p.writeError(w, gatewayerr.InvalidInput("malformed request body: %v", err), format)
		return
	}
	if peek.Model == "" {
		p.writeError(w, gatewayerr.InvalidInput("request is missing \"model\""), format)
		return
	}

	providerName, resolvedModel, err := p.router.Resolve(peek.Model, r.Header.Get(providerHintHeader))
	if err != nil {
		p.writeError(w, err, format)
		return
	}
	if !p.cfg.HasCredential(providerName) {
		p.writeError(w, gatewayerr.Unauthorized(providerName), format)
		return
	}

	timeout := p.nonStreamTimeout
	if peek.Stream {
		timeout = p.streamTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	r = r.WithContext(ctx)

	// CanonicalMode forces every request through the adapter path (spec
	// §6, CANONICAL_MODE=1) so a comparison run never takes the fast path
	// even for (format, provider) pairs that would otherwise qualify.
	if !p.cfg.CanonicalMode {
		if route, ok := resolvePassthrough(format, providerName); ok {
			p.handlePassthrough(w, r, format, route, providerName, resolvedModel, body, peek.Stream, requestID, start)
			return
		}
	}

	p.handleAdapter(w, r, format, providerName, resolvedModel, body, peek.Stream, requestID, start)
}

// writeError renders err in the client's native error shape and writes it,
// unless headers have already gone out (KindStreamBroken's HTTPStatus is 0
// — there is nothing left to send but a closed socket).
func (p *Pipeline) writeError(w http.ResponseWriter, err error, format streaming.ClientFormat) {
	gwErr, ok := gatewayerr.As(err)
	if !ok {
		gwErr = gatewayerr.AdapterFailureWrap("unclassified error", err)
	}

	status := gwErr.HTTPStatus()
	if status == 0 {
		return
	}

	if gwErr.Kind == "provider_error" && len(gwErr.Body) > 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(gwErr.Body)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(gwErr.Render(gatewayerr.ClientFormat(format)))
}
