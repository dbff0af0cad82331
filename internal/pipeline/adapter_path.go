package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/llmgate/gateway/internal/adapter/anthropic"
	"github.com/llmgate/gateway/internal/adapter/openaichat"
	"github.com/llmgate/gateway/internal/adapter/openairesponses"
	"github.com/llmgate/gateway/internal/canonical"
	"github.com/llmgate/gateway/internal/gatewayerr"
	"github.com/llmgate/gateway/internal/provider"
	"github.com/llmgate/gateway/internal/streaming"
)

// decodeClientRequest parses body in the client's declared wire format and
// normalises it to canonical (spec §4.H point 5, "run clientToCanonical").
func decodeClientRequest(format streaming.ClientFormat, body []byte) (*canonical.CanonicalRequest, error) {
	switch format {
	case streaming.ClientAnthropic:
		var req anthropic.ClientRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, gatewayerr.InvalidInput("malformed request body: %v", err)
		}
		return anthropic.ClientToCanonical(&req)
	case streaming.ClientOpenAIResponses:
		var req openairesponses.ClientRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, gatewayerr.InvalidInput("malformed request body: %v", err)
		}
		return openairesponses.ClientToCanonical(&req)
	default:
		var req openaichat.ClientRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, gatewayerr.InvalidInput("malformed request body: %v", err)
		}
		return openaichat.ClientToCanonical(&req)
	}
}

// renderClientResponse renders a canonical response in the client's
// declared wire format (spec §4.H point 5, "canonicalToClient").
func renderClientResponse(format streaming.ClientFormat, resp *canonical.CanonicalResponse) any {
	switch format {
	case streaming.ClientAnthropic:
		return anthropic.CanonicalToClient(resp)
	case streaming.ClientOpenAIResponses:
		return openairesponses.CanonicalToClient(resp)
	default:
		return openaichat.CanonicalToClient(resp)
	}
}

// streamProcessor is the shape every adapter package's per-request
// StreamProcessor satisfies; declared locally so this package can hold one
// without importing three concrete types at the call site.
type streamProcessor interface {
	Process(raw []byte) ([]canonical.StreamEvent, error)
}

func newStreamProcessor(format streaming.ClientFormat) streamProcessor {
	switch format {
	case streaming.ClientAnthropic:
		return anthropic.NewStreamProcessor()
	case streaming.ClientOpenAIResponses:
		return openairesponses.NewStreamProcessor()
	default:
		return openaichat.NewStreamProcessor()
	}
}

// handleAdapter runs the canonicalization path: client body -> canonical
// request -> provider dispatch -> canonical response/events -> client wire
// format (spec §4.H point 5).
func (p *Pipeline) handleAdapter(w http.ResponseWriter, r *http.Request, format streaming.ClientFormat, providerName, resolvedModel string, body []byte, wantsStream bool, requestID string, start time.Time) {
	cr, err := decodeClientRequest(format, body)
	if err != nil {
		p.writeError(w, err, format)
		return
	}
	cr.Model = resolvedModel
	cr.Stream = wantsStream

	if err := canonical.ValidateRequest(cr); err != nil {
		p.writeError(w, gatewayerr.AdapterFailureWrap("canonical request failed validation", err), format)
		return
	}

	prov, ok := p.providers[providerName]
	if !ok {
		p.writeError(w, gatewayerr.Unauthorized(providerName), format)
		return
	}

	if wantsStream {
		p.streamAdapter(w, r, format, prov, cr, providerName, resolvedModel, requestID, start)
		return
	}

	resp, err := prov.ChatCompletion(r.Context(), cr)
	if err != nil {
		p.recordOutcome(r.Context(), requestID, providerName, resolvedModel, "adapter", "error", canonical.Usage{}, start)
		p.writeError(w, err, format)
		return
	}

	if err := canonical.ValidateResponse(resp); err != nil {
		p.recordOutcome(r.Context(), requestID, providerName, resolvedModel, "adapter", "error", canonical.Usage{}, start)
		p.writeError(w, gatewayerr.AdapterFailureWrap("canonical response failed validation", err), format)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(renderClientResponse(format, resp)); err != nil {
		log.Printf("[pipeline] writing non-stream response for request %s: %v", requestID, err)
	}

	p.recordOutcome(r.Context(), requestID, providerName, resolvedModel, "adapter", "ok", resp.Usage, start)
}

// streamAdapter dispatches a streaming adapter-path request: provider SSE
// lines are decoded into canonical events by the per-format StreamProcessor
// and immediately re-rendered into the client's own wire format, one event
// at a time (spec §4.H point 5). Unlike the passthrough path this never
// forwards a raw provider byte to the client — every chunk is translated.
func (p *Pipeline) streamAdapter(w http.ResponseWriter, r *http.Request, format streaming.ClientFormat, prov provider.Provider, cr *canonical.CanonicalRequest, providerName, resolvedModel, requestID string, start time.Time) {
	upstream, err := prov.ChatCompletionStream(r.Context(), cr)
	if err != nil {
		p.recordOutcome(r.Context(), requestID, providerName, resolvedModel, "adapter", "error", canonical.Usage{}, start)
		p.writeError(w, err, format)
		return
	}
	defer upstream.Close()

	streaming.Headers(w, format != streaming.ClientAnthropic)
	ew, err := streaming.NewEventWriter(w, format, requestID, resolvedModel)
	if err != nil {
		log.Printf("[pipeline] stream request %s: %v", requestID, err)
		return
	}

	proc := newStreamProcessor(streaming.ClientFormat(prov.Format()))
	var finalUsage canonical.Usage
	reader := streaming.NewLineReader(upstream)

	status := "ok"
streamLoop:
	for {
		select {
		case <-r.Context().Done():
			status = "error"
			break streamLoop
		default:
		}

		line, readErr := reader.ReadBytes('\n')
		trimmed := bytes.TrimSpace(line)
		if payload, ok := dataPayload(trimmed); ok {
			if string(payload) != "[DONE]" {
				events, procErr := proc.Process(payload)
				if procErr == nil {
					for _, ev := range events {
						if ev.Usage != nil {
							finalUsage = *ev.Usage
						}
						if werr := ew.Write(ev); werr != nil {
							status = "error"
							break streamLoop
						}
					}
				}
			}
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			status = "error"
			break
		}
	}

	if status == "ok" {
		_ = ew.Done()
	}

	p.recordOutcome(context.WithoutCancel(r.Context()), requestID, providerName, resolvedModel, "adapter", status, finalUsage, start)
}

// dataPayload trims an SSE "data:" line to its JSON payload. Lines that
// aren't data lines (blank separators, comments, named "event:" lines) are
// reported as not-ok so the caller skips them.
func dataPayload(line []byte) ([]byte, bool) {
	const prefix = "data:"
	s := string(line)
	if !strings.HasPrefix(s, prefix) {
		return nil, false
	}
	return []byte(strings.TrimSpace(strings.TrimPrefix(s, prefix))), true
}
