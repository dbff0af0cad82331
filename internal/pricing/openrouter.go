package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/llmgate/gateway/internal/cache"
)

// sharedCacheKey namespaces the OpenRouter snapshot in the shared Redis
// tier, distinct from any other cached artifact the gateway might add.
const sharedCacheKey = "pricing:openrouter-snapshot"

// sharedCacheTTL is kept comfortably longer than the typical refresh
// interval so a replica that starts between two refreshes still finds a
// live entry rather than falling through to a cold fetch.
const sharedCacheTTL = 6 * time.Hour

// openRouterModelsURL is OpenRouter's public, unauthenticated model
// catalog endpoint.
const openRouterModelsURL = "https://openrouter.ai/api/v1/models"

// openRouterModelsResponse is the subset of OpenRouter's /models response
// this refresher cares about.
type openRouterModelsResponse struct {
	Data []struct {
		ID     string `json:"id"`
		Pricing struct {
			Prompt     string `json:"prompt"`     // USD per token, as a decimal string
			Completion string `json:"completion"`
		} `json:"pricing"`
	} `json:"data"`
}

// Fetcher abstracts the HTTP round-trip so refresh logic is testable
// without hitting the real OpenRouter API.
type Fetcher interface {
	FetchModels(ctx context.Context) (openRouterModelsResponse, error)
}

// httpFetcher is the production Fetcher, backed by a long-lived pooled
// *http.Client per spec §5 ("Provider HTTP clients: kept as long-lived
// pooled clients with connection reuse").
type httpFetcher struct {
	client *http.Client
}

func (f httpFetcher) FetchModels(ctx context.Context) (openRouterModelsResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, openRouterModelsURL, nil)
	if err != nil {
		return openRouterModelsResponse{}, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return openRouterModelsResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return openRouterModelsResponse{}, fmt.Errorf("openrouter models endpoint returned %d: %s", resp.StatusCode, body)
	}

	var out openRouterModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return openRouterModelsResponse{}, err
	}
	return out, nil
}

// NewHTTPFetcher returns the production Fetcher using client.
func NewHTTPFetcher(client *http.Client) Fetcher {
	return httpFetcher{client: client}
}

// Refresher periodically re-fetches OpenRouter's live catalog and writes
// the result both into the in-memory Catalog and back to an on-disk
// snapshot file, so a restart doesn't lose the last known-good prices.
type Refresher struct {
	catalog  *Catalog
	fetcher  Fetcher
	snapshot string // path to the on-disk openrouter.yaml snapshot
	limiter  *rate.Limiter
	shared   *cache.Cache // optional Redis tier; nil disables it
}

// NewRefresher builds a Refresher. interval sets the token-bucket refill
// rate of its internal limiter (the background loop's cadence is Run's
// own interval argument) — the limiter exists so a caller invoking Refresh manually
// (e.g. from an admin endpoint) can't cause more than one fetch per
// interval, independent of the background loop's own ticker. shared may
// be nil to disable the cross-replica Redis tier entirely.
func NewRefresher(catalog *Catalog, fetcher Fetcher, snapshotPath string, interval time.Duration, shared *cache.Cache) *Refresher {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Refresher{
		catalog:  catalog,
		fetcher:  fetcher,
		snapshot: snapshotPath,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		shared:   shared,
	}
}

// LoadFromSharedCache seeds the catalog from the shared Redis snapshot, if
// one exists, without making an OpenRouter API call. Intended for process
// startup: a replica that starts shortly after another has already
// refreshed doesn't need to re-fetch the live catalog.
func (r *Refresher) LoadFromSharedCache(ctx context.Context) error {
	if !r.shared.Enabled() {
		return nil
	}

	raw, ok, err := r.shared.Get(ctx, sharedCacheKey)
	if err != nil || !ok {
		return err
	}

	var snapshot descriptor
	if err := yaml.Unmarshal(raw, &snapshot); err != nil {
		return fmt.Errorf("decoding shared openrouter snapshot: %w", err)
	}
	for id, entry := range snapshot.Models {
		r.catalog.SetModel("openrouter", id, entry.normalize("openrouter"), valueOr(snapshot.Currency, "USD"))
	}
	return nil
}

// Run blocks, refreshing on a ticker until ctx is cancelled. A refresh
// failure is best-effort (spec §4.C): it's logged and the existing
// snapshot — in memory and on disk — is left untouched.
func (r *Refresher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				log.Printf("[pricing] openrouter refresh failed, keeping existing snapshot: %v", err)
			}
		}
	}
}

// Refresh performs one fetch-and-apply cycle, rate-limited so repeated
// manual calls can't hammer the upstream catalog endpoint.
func (r *Refresher) Refresh(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	resp, err := r.fetcher.FetchModels(ctx)
	if err != nil {
		return fmt.Errorf("fetching openrouter models: %w", err)
	}

	snapshot := descriptor{
		Provider: "openrouter",
		Currency: "USD",
		Unit:     "per_million_tokens",
		Models:   make(map[string]rawEntry, len(resp.Data)),
		Metadata: map[string]any{"source": "openrouter-live-refresh"},
	}

	for _, m := range resp.Data {
		input := parsePerTokenUSD(m.Pricing.Prompt)
		output := parsePerTokenUSD(m.Pricing.Completion)
		entry := rawEntry{Input: input * 1_000_000, Output: output * 1_000_000}
		snapshot.Models[m.ID] = entry
		r.catalog.SetModel("openrouter", m.ID, entry.normalize("openrouter"), "USD")
	}

	if r.snapshot != "" {
		if err := writeSnapshot(r.snapshot, snapshot); err != nil {
			// The in-memory catalog already has the fresh prices; a failed
			// disk write only means a restart falls back to the stale
			// snapshot. Log and continue rather than treating this as a
			// refresh failure.
			log.Printf("[pricing] writing openrouter snapshot to disk: %v", err)
		}
	}

	if r.shared.Enabled() {
		if raw, err := yaml.Marshal(snapshot); err != nil {
			log.Printf("[pricing] marshaling openrouter snapshot for shared cache: %v", err)
		} else if err := r.shared.Set(ctx, sharedCacheKey, raw, sharedCacheTTL); err != nil {
			log.Printf("[pricing] publishing openrouter snapshot to shared cache: %v", err)
		}
	}

	return nil
}

// parsePerTokenUSD parses OpenRouter's decimal-string per-token price,
// returning 0 on malformed input — a bad single field should not abort
// the whole refresh.
func parsePerTokenUSD(s string) float64 {
	if s == "" {
		return 0
	}
	var v float64
	if _, err := fmt.Sscanf(s, "%g", &v); err != nil {
		return 0
	}
	return v
}

func writeSnapshot(path string, d descriptor) error {
	raw, err := yaml.Marshal(d)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0644)
}
