package pipeline

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/llmgate/gateway/internal/canonical"
	"github.com/llmgate/gateway/internal/passthrough"
	"github.com/llmgate/gateway/internal/provider"
	"github.com/llmgate/gateway/internal/streaming"
)

// newPassthroughClient builds a passthrough.Client for providerName using
// the same base URL and credential the typed provider.Provider for that
// name would use — except for the xAI/Anthropic row, where no typed
// Anthropic-speaking client for xAI exists at all (see path.go), so this
// is the only client that request ever goes through.
func (p *Pipeline) newPassthroughClient(providerName string, route passthroughRoute) *passthrough.Client {
	cfg := p.cfg.Providers[providerName]
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = provider.DefaultBaseURL(providerName)
	}
	return passthrough.New(p.httpClient, baseURL, cfg.APIKey, route.authHeader, route.kind)
}

// handlePassthrough runs the fast path (spec §4.F): the client body is
// forwarded close to verbatim and usage is recovered by sniffing the
// response bytes rather than running the full adapter translation.
func (p *Pipeline) handlePassthrough(w http.ResponseWriter, r *http.Request, format streaming.ClientFormat, route passthroughRoute, providerName, resolvedModel string, body []byte, wantsStream bool, requestID string, start time.Time) {
	client := p.newPassthroughClient(providerName, route)

	if wantsStream {
		p.streamPassthrough(w, r, format, client, providerName, resolvedModel, body, requestID, start)
		return
	}

	result, err := client.ChatCompletion(r.Context(), body)
	if err != nil {
		p.recordOutcome(r.Context(), requestID, providerName, resolvedModel, "passthrough", "error", canonical.Usage{}, start)
		p.writeError(w, err, format)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Body); err != nil {
		log.Printf("[pipeline] writing passthrough response for request %s: %v", requestID, err)
	}

	p.recordOutcome(r.Context(), requestID, providerName, resolvedModel, "passthrough", "ok", result.Usage, start)
}

func (p *Pipeline) streamPassthrough(w http.ResponseWriter, r *http.Request, format streaming.ClientFormat, client *passthrough.Client, providerName, resolvedModel string, body []byte, requestID string, start time.Time) {
	upstream, sniffer, usageResult, err := client.Stream(r.Context(), body)
	if err != nil {
		p.recordOutcome(r.Context(), requestID, providerName, resolvedModel, "passthrough", "error", canonical.Usage{}, start)
		p.writeError(w, err, format)
		return
	}
	defer upstream.Close()

	streaming.Headers(w, format != streaming.ClientAnthropic)
	stats := &streaming.Stats{}
	pumpErr := streaming.Pump(r.Context(), w, upstream, sniffer, stats)

	status := "ok"
	if pumpErr != nil {
		status = "error"
		log.Printf("[pipeline] passthrough stream %s: %v", requestID, pumpErr)
	}

	var finalUsage canonical.Usage
	select {
	case finalUsage = <-usageResult:
	default:
	}

	p.recordOutcome(context.WithoutCancel(r.Context()), requestID, providerName, resolvedModel, "passthrough", status, finalUsage, start)
}
