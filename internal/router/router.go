// Package router resolves a canonical model string to a configured
// provider (spec §4.D).
package router

import (
	"strings"
	"sync"

	"github.com/llmgate/gateway/internal/gatewayerr"
	"github.com/llmgate/gateway/internal/pricing"
)

// Config is the subset of process configuration the router needs. It is
// satisfied by *config.Config without importing that package directly,
// so router stays free of a dependency on the full config surface.
type Config interface {
	PriorityOrder() []string
	HasCredential(provider string) bool
}

// Router picks a provider for a requested model.
type Router struct {
	cfg     Config
	catalog *pricing.Catalog

	mu       sync.RWMutex
	modelMap map[string][]string // model (normalized) -> providers that serve it, in catalog scan order
}

// New builds a Router over catalog's static model lists, indexed once at
// construction time (spec §4.D: "a static model→provider map derived from
// pricing catalogs").
func New(cfg Config, catalog *pricing.Catalog) *Router {
	r := &Router{cfg: cfg, catalog: catalog}
	r.reindex()
	return r
}

// Reindex rebuilds the static model→provider map from the catalog's
// current contents. The OpenRouter refresh job does not call it, so
// models a refresh adds stay out of the map until Reindex is called.
func (r *Router) Reindex() {
	r.reindex()
}

func (r *Router) reindex() {
	modelMap := make(map[string][]string)
	for _, provider := range r.catalog.Providers() {
		for _, model := range r.catalog.Models(provider) {
			key := strings.ToLower(model)
			modelMap[key] = appendDistinct(modelMap[key], provider)
		}
	}

	r.mu.Lock()
	r.modelMap = modelMap
	r.mu.Unlock()
}

func appendDistinct(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// Resolve picks the provider that should serve model, per the tie-break
// order in spec §4.D: explicit "provider/" prefix, then clientHint (an
// empty string means none was supplied), then the first provider in the
// process's configured priority order whose catalog contains the model.
func (r *Router) Resolve(model, clientHint string) (provider, resolvedModel string, err error) {
	if provider, name, ok := splitProviderPrefix(model); ok && r.isConfigured(provider) {
		if r.cfg.HasCredential(provider) {
			return provider, name, nil
		}
		return "", "", r.notSupported(model)
	}

	candidates := r.providersFor(model)

	if clientHint != "" && r.cfg.HasCredential(clientHint) && contains(candidates, clientHint) {
		return clientHint, model, nil
	}

	for _, name := range r.cfg.PriorityOrder() {
		if !r.cfg.HasCredential(name) {
			continue
		}
		if contains(candidates, name) {
			return name, model, nil
		}
	}

	return "", "", r.notSupported(model)
}

// isConfigured reports whether name appears in the process's configured
// provider set, independent of whether it currently has a credential —
// used to decide whether a "provider/model" prefix is a real gateway
// qualifier or just an incidental slash in a bare model id.
func (r *Router) isConfigured(name string) bool {
	for _, p := range r.cfg.PriorityOrder() {
		if p == name {
			return true
		}
	}
	return false
}

func (r *Router) providersFor(model string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.modelMap[strings.ToLower(model)]
}

func (r *Router) notSupported(model string) error {
	if len(r.cfg.PriorityOrder()) == 0 {
		return gatewayerr.NoProvidersConfigured()
	}
	return gatewayerr.ModelNotSupported(model)
}

func contains(list []string, v string) bool {
	for _, existing := range list {
		if existing == v {
			return true
		}
	}
	return false
}

// splitProviderPrefix splits a "<provider>/<name>" model string at the
// first "/". ok is false only if model carries no "/" at all; whether the
// part before it is a configured provider is checked by Resolve via
// isConfigured (the slash might just be part of a bare model id like an
// OpenRouter-style "org/model" that isn't meant as a gateway provider
// qualifier — Resolve falls through to the static map in that case).
func splitProviderPrefix(model string) (provider, name string, ok bool) {
	i := strings.Index(model, "/")
	if i < 0 {
		return "", "", false
	}
	return model[:i], model[i+1:], true
}
