// Package pricing loads the per-provider pricing catalog (spec §4.C) and
// computes the monetary cost of a usage record from it.
package pricing

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Entry is one model's pricing, expressed in currency per million tokens
// (spec §3, "Pricing Entry").
type Entry struct {
	Input      float64 `yaml:"input"`
	Output     float64 `yaml:"output"`
	CacheWrite float64 `yaml:"cache_write"`
	CacheRead  float64 `yaml:"cache_read"`
}

// descriptor is the on-disk shape of one pricing file (spec §4.C:
// "{provider, currency, unit, models: {modelId: {...}}, metadata}").
type descriptor struct {
	Provider string                 `yaml:"provider"`
	Currency string                 `yaml:"currency"`
	Unit     string                 `yaml:"unit"`
	Models   map[string]rawEntry    `yaml:"models"`
	Metadata map[string]any         `yaml:"metadata"`
}

// rawEntry carries every vendor-specific cache key a descriptor file might
// use; normalize() coalesces them onto the common Entry shape.
type rawEntry struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`

	CacheWrite float64 `yaml:"cache_write"`
	CacheRead  float64 `yaml:"cache_read"`

	// Anthropic vocabulary.
	FiveMinCacheWrite float64 `yaml:"5m_cache_write"`
	OneHourCacheWrite float64 `yaml:"1h_cache_write"`
	AnthropicCacheRead float64 `yaml:"cache_read_anthropic"`

	// xAI vocabulary.
	CachedInput float64 `yaml:"cached_input"`
}

// normalize coalesces a provider's vendor-specific pricing keys onto the
// common cache_write/cache_read fields (spec §4.C). Anthropic's two cache
// write tiers (5m/1h) both map onto CacheWrite — callers that need the
// tier distinction read providerParams, not pricing, since pricing only
// ever needs one write price per model for the cost formula.
func (r rawEntry) normalize(provider string) Entry {
	e := Entry{Input: r.Input, Output: r.Output}

	switch strings.ToLower(provider) {
	case "anthropic":
		e.CacheRead = r.CacheRead
		switch {
		case r.OneHourCacheWrite != 0:
			e.CacheWrite = r.OneHourCacheWrite
		case r.FiveMinCacheWrite != 0:
			e.CacheWrite = r.FiveMinCacheWrite
		default:
			e.CacheWrite = r.CacheWrite
		}
	case "xai":
		e.CacheWrite = r.CacheWrite
		if r.CachedInput != 0 {
			e.CacheRead = r.CachedInput
		} else {
			e.CacheRead = r.CacheRead
		}
	default:
		e.CacheWrite = r.CacheWrite
		e.CacheRead = r.CacheRead
	}
	return e
}

// providerTable holds one provider's normalized pricing, indexed by the
// raw model id as written in the descriptor file.
type providerTable struct {
	currency string
	models   map[string]Entry
}

// Catalog is the process-wide, read-mostly pricing catalog (spec §5:
// "read-mostly, loaded once, guarded by a read/write lock; refreshes take
// the write lock briefly").
type Catalog struct {
	mu    sync.RWMutex
	table map[string]*providerTable // provider name -> table
}

// Load scans dir for provider pricing descriptor YAML files and builds a
// Catalog. Each file is independent; a malformed file fails the whole load
// since pricing correctness directly feeds monetary accounting — there is
// no "best effort" here the way there is for the OpenRouter refresh.
func Load(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("pricing: reading directory %q: %w", dir, err)
	}

	c := &Catalog{table: make(map[string]*providerTable)}

	for _, de := range entries {
		if de.IsDir() || !isYAML(de.Name()) {
			continue
		}
		path := filepath.Join(dir, de.Name())
		if err := c.loadFile(path); err != nil {
			return nil, fmt.Errorf("pricing: loading %q: %w", path, err)
		}
	}

	return c, nil
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

func (c *Catalog) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var d descriptor
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return err
	}
	if d.Provider == "" {
		return fmt.Errorf("missing provider field")
	}

	models := make(map[string]Entry, len(d.Models))
	for id, raw := range d.Models {
		models[id] = raw.normalize(d.Provider)
	}

	c.mu.Lock()
	c.table[strings.ToLower(d.Provider)] = &providerTable{
		currency: valueOr(d.Currency, "USD"),
		models:   models,
	}
	c.mu.Unlock()

	return nil
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// normalizeModelName lowercases and strips a leading "<provider>/" prefix,
// matching the router's own qualifier convention (spec §3, "model").
func normalizeModelName(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	if i := strings.Index(m, "/"); i >= 0 {
		return m[i+1:]
	}
	return m
}

// Lookup finds the pricing entry for (provider, model), trying the lookup
// fall-throughs from spec §4.C: "normalized model name → model-without-
// provider-prefix → raw string". Returns false if nothing matches, in
// which case the caller (internal/usage) inserts a zero-cost row rather
// than failing the request (Open Question (b), resolved in SPEC_FULL.md).
func (c *Catalog) Lookup(provider, model string) (Entry, string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	table, ok := c.table[strings.ToLower(provider)]
	if !ok {
		return Entry{}, "", false
	}

	candidates := []string{normalizeModelName(model), stripProviderPrefix(model), model}
	for _, cand := range candidates {
		if e, ok := table.models[cand]; ok {
			return e, table.currency, true
		}
	}
	return Entry{}, table.currency, false
}

func stripProviderPrefix(model string) string {
	if i := strings.Index(model, "/"); i >= 0 {
		return model[i+1:]
	}
	return model
}

// Models returns every model id this catalog knows for provider, used by
// the /v1/models catalog-browse endpoint and by the router's static
// model→provider map.
func (c *Catalog) Models(provider string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	table, ok := c.table[strings.ToLower(provider)]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(table.models))
	for id := range table.models {
		out = append(out, id)
	}
	return out
}

// Providers returns every provider name this catalog has pricing for.
func (c *Catalog) Providers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.table))
	for p := range c.table {
		out = append(out, p)
	}
	return out
}

// SetModel inserts or overwrites a single model's entry for a provider.
// Used by the OpenRouter refresh job to apply newly fetched prices under
// the catalog's own write lock, without callers reaching into unexported
// fields.
func (c *Catalog) SetModel(provider, model string, e Entry, currency string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	table, ok := c.table[strings.ToLower(provider)]
	if !ok {
		table = &providerTable{currency: currency, models: make(map[string]Entry)}
		c.table[strings.ToLower(provider)] = table
	}
	table.models[model] = e
}
