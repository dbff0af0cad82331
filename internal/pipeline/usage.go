package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/llmgate/gateway/internal/canonical"
	"github.com/llmgate/gateway/internal/metrics"
	"github.com/llmgate/gateway/internal/pricing"
)

// newRequestID mints the id threaded through the usage record and, for
// adapter-path streaming responses, the id in every rendered chunk
// (non-streaming responses carry the provider's own response id).
func newRequestID() string {
	return uuid.NewString()
}

// toTokenCounts converts a canonical usage value into the pricing
// vocabulary. CachedTokens carries CacheWrite+CacheRead combined (the
// convention internal/adapter/anthropic/adapter.go already established for
// the reverse direction), so CacheRead is recovered by subtracting the
// write side back out.
func toTokenCounts(u canonical.Usage) pricing.TokenCounts {
	return pricing.TokenCounts{
		Input:      u.InputTokens,
		Output:     u.OutputTokens,
		CacheWrite: u.CacheWriteTokens,
		CacheRead:  u.CachedTokens - u.CacheWriteTokens,
	}
}

// recordOutcome persists the usage row, checks the budget, and updates
// metrics for one completed request (spec §4.H point 6: "after terminal
// event, call I.record"). Failures are logged, not returned: a usage-store
// write failure must never surface as a client-facing error for a request
// that already succeeded upstream.
//
// The usage write is skipped only when no terminal usage event was ever
// observed (spec §5: "skips the usage write for that request unless a
// terminal usage event was already observed") — not whenever status is
// merely "error". A stream can fail after its terminal usage event already
// arrived (client disconnects right after the last chunk, before [DONE]),
// and that usage is still real and still worth recording.
func (p *Pipeline) recordOutcome(ctx context.Context, requestID, providerName, model, path, status string, u canonical.Usage, start time.Time) {
	metrics.RecordRequest(providerName, model, path, status, time.Since(start).Seconds())

	if u == (canonical.Usage{}) {
		return
	}

	tokens := toTokenCounts(u)
	metrics.RecordTokens(providerName, model, tokens.Input, tokens.Output, tokens.CacheWrite, tokens.CacheRead)

	if p.usageStore == nil {
		return
	}
	cost, err := p.usageStore.Record(ctx, requestID, providerName, model, tokens, time.Now())
	if err != nil {
		log.Printf("[pipeline] usage record failed for request %s: %v", requestID, err)
		return
	}
	metrics.RecordCost(providerName, model, cost)

	if p.budget == nil {
		return
	}
	budgetStatus, err := p.budget.GetStatus(ctx)
	if err != nil {
		log.Printf("[pipeline] budget status lookup failed: %v", err)
		return
	}
	p.budget.CheckCrossing(budgetStatus, cost)
}
