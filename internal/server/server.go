// Package server sets up the HTTP router, middleware, and request handlers.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/llmgate/gateway/internal/budget"
	"github.com/llmgate/gateway/internal/config"
	"github.com/llmgate/gateway/internal/metrics"
	"github.com/llmgate/gateway/internal/pipeline"
	"github.com/llmgate/gateway/internal/pricing"
	"github.com/llmgate/gateway/internal/usage"
)

// Server holds the HTTP router and every dependency the handlers need:
// the chat pipeline for the three public wire formats, plus the usage,
// budget, pricing, and metrics surfaces spec §6 hangs off the same process.
type Server struct {
	router chi.Router

	cfg      *config.Config
	pipeline *pipeline.Pipeline
	usage    *usage.Store
	budget   *budget.Service
	catalog  *pricing.Catalog
	metrics  *metrics.Registry
}

// New creates a Server, wires up routes and middleware, and returns it
// ready to use as an http.Handler. usageStore, budgetSvc, and metricsReg
// may be nil — their routes are omitted entirely when so, rather than
// registered to fail at request time.
func New(cfg *config.Config, pl *pipeline.Pipeline, usageStore *usage.Store, budgetSvc *budget.Service, catalog *pricing.Catalog, metricsReg *metrics.Registry) *Server {
	s := &Server{
		cfg:      cfg,
		pipeline: pl,
		usage:    usageStore,
		budget:   budgetSvc,
		catalog:  catalog,
		metrics:  metricsReg,
	}
	s.routes()
	return s
}

// routes builds the chi router with all middleware and route definitions.
func (s *Server) routes() {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/config/status", s.handleConfigStatus)
	r.Get("/v1/models", s.handleModels)

	r.Post("/v1/chat/completions", s.handleOpenAIChat)
	r.Post("/v1/messages", s.handleAnthropic)
	r.Post("/v1/responses", s.handleOpenAIResponses)

	if s.usage != nil {
		r.Get("/usage", s.handleUsageQuery)
		r.Get("/usage/export", s.handleUsageExport)
	}
	if s.budget != nil {
		r.Get("/budget", s.handleBudgetGet)
		r.Put("/budget", s.handleBudgetPut)
	}
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	s.router = r
}

// ServeHTTP makes Server satisfy the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
