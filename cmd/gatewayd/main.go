// Package main is the entry point for the llmgate gateway daemon.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/llmgate/gateway/internal/budget"
	"github.com/llmgate/gateway/internal/cache"
	"github.com/llmgate/gateway/internal/config"
	"github.com/llmgate/gateway/internal/metrics"
	"github.com/llmgate/gateway/internal/pipeline"
	"github.com/llmgate/gateway/internal/pricing"
	"github.com/llmgate/gateway/internal/provider"
	"github.com/llmgate/gateway/internal/router"
	"github.com/llmgate/gateway/internal/server"
	"github.com/llmgate/gateway/internal/usage"
)

func main() {
	configPath := "config.yaml"
	if v := os.Getenv("LLMGATE_CONFIG"); v != "" {
		configPath = v
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	catalog, err := pricing.Load(cfg.Pricing.Dir)
	if err != nil {
		log.Fatalf("failed to load pricing catalog: %v", err)
	}

	var sharedCache *cache.Cache
	if cfg.Redis.Addr != "" {
		sharedCache, err = cache.New(cfg.Redis.Addr, "", 0)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
	}

	// No client-level Timeout: the per-request context deadline (cfg.Server's
	// stream/non-stream timeouts, applied in internal/pipeline) is the only
	// deadline that should fire, so a slow upstream maps to
	// gatewayerr.GatewayTimeout's 504 instead of a generic transport error.
	httpClient := &http.Client{}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	refresher := pricing.NewRefresher(catalog, pricing.NewHTTPFetcher(httpClient), openRouterSnapshotPath(cfg), cfg.Pricing.OpenRouterRefresh, sharedCache)
	if err := refresher.LoadFromSharedCache(ctx); err != nil {
		log.Printf("[startup] loading openrouter snapshot from shared cache: %v", err)
	}
	if cfg.Pricing.OpenRouterRefresh > 0 {
		go refresher.Run(ctx, cfg.Pricing.OpenRouterRefresh)
	}

	usageStore, err := usage.Open(cfg.Database.Path, catalog)
	if err != nil {
		log.Fatalf("failed to open usage store: %v", err)
	}
	defer usageStore.Close()

	budgetSvc, err := budget.Open(usageStore.DB(), usageStore)
	if err != nil {
		log.Fatalf("failed to open budget store: %v", err)
	}

	providerCfgs := make(map[string]provider.ProviderConfig, len(cfg.Providers))
	for name, p := range cfg.Providers {
		providerCfgs[name] = provider.ProviderConfig{APIKey: p.APIKey, BaseURL: p.BaseURL}
	}
	providers := provider.Build(providerCfgs)

	rt := router.New(cfg, catalog)
	metricsReg := metrics.NewRegistry()

	pl := pipeline.New(cfg, rt, providers, httpClient, usageStore, budgetSvc, sharedCache)
	srv := server.New(cfg, pl, usageStore, budgetSvc, catalog, metricsReg)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("graceful shutdown failed: %v", err)
		}
	}()

	log.Printf("llmgate listening on :%d (mode=%s)", cfg.Server.Port, cfg.Mode)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// openRouterSnapshotPath places the on-disk OpenRouter pricing snapshot
// alongside the rest of the pricing catalog, so a single PricingConfig.Dir
// setting controls both.
func openRouterSnapshotPath(cfg *config.Config) string {
	return cfg.Pricing.Dir + "/openrouter.yaml"
}
