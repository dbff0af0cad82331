// Package pipeline implements the Chat Pipeline (spec §4.H): the one
// orchestration point that ties the router, the format adapters, the
// provider clients, the passthrough fast path, the streaming engine, and
// the usage/budget stores together for each of the three public chat
// endpoints.
package pipeline

import (
	"net/http"
	"time"

	"github.com/llmgate/gateway/internal/budget"
	"github.com/llmgate/gateway/internal/cache"
	"github.com/llmgate/gateway/internal/config"
	"github.com/llmgate/gateway/internal/provider"
	"github.com/llmgate/gateway/internal/router"
	"github.com/llmgate/gateway/internal/usage"
)

// Pipeline holds every dependency a chat request needs, constructed once
// at boot and shared across all requests (spec §5: "kept as long-lived
// pooled clients").
type Pipeline struct {
	cfg        *config.Config
	router     *router.Router
	providers  map[string]provider.Provider
	httpClient *http.Client
	usageStore *usage.Store
	budget     *budget.Service
	cache      *cache.Cache

	streamTimeout    time.Duration
	nonStreamTimeout time.Duration
}

// New builds a Pipeline. httpClient is the single pooled client every
// passthrough.Client shares; the typed provider.Provider clients in
// providers carry their own (also pooled, per internal/provider/registry.go).
func New(cfg *config.Config, rt *router.Router, providers map[string]provider.Provider, httpClient *http.Client, usageStore *usage.Store, budgetSvc *budget.Service, sharedCache *cache.Cache) *Pipeline {
	streamTimeout := cfg.Server.StreamTimeout
	if streamTimeout == 0 {
		streamTimeout = 10 * time.Minute
	}
	nonStreamTimeout := cfg.Server.NonStreamTimeout
	if nonStreamTimeout == 0 {
		nonStreamTimeout = 60 * time.Second
	}

	return &Pipeline{
		cfg:              cfg,
		router:           rt,
		providers:        providers,
		httpClient:       httpClient,
		usageStore:       usageStore,
		budget:           budgetSvc,
		cache:            sharedCache,
		streamTimeout:    streamTimeout,
		nonStreamTimeout: nonStreamTimeout,
	}
}
