// Package config handles loading and validating gateway configuration.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// GatewayMode is surfaced verbatim on GET /config/status. The gateway core
// doesn't implement payment rails itself — it just threads this string
// through so a caller can tell which mode the deployment is running in.
type GatewayMode string

const (
	ModeBYOK      GatewayMode = "byok"
	ModeHybrid    GatewayMode = "hybrid"
	ModeX402Only  GatewayMode = "x402-only"
)

// Config is the top-level configuration for the gateway.
type Config struct {
	Server    ServerConfig              `koanf:"server"`
	Providers map[string]ProviderConfig `koanf:"providers"`
	Pricing   PricingConfig             `koanf:"pricing"`
	Database  DatabaseConfig            `koanf:"database"`
	Redis     RedisConfig               `koanf:"redis"`

	// CanonicalMode mirrors CANONICAL_MODE=1 (spec §6): forces the adapter
	// path even for client/provider format pairs that would otherwise take
	// the passthrough fast path. No diff between the two paths' outputs is
	// produced or logged.
	CanonicalMode bool `koanf:"canonical_mode"`

	Mode GatewayMode `koanf:"mode"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `koanf:"port"`
	Environment  string        `koanf:"environment"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// StreamTimeout / NonStreamTimeout back spec §5's "server-side timeout
	// (configurable, default 10 minutes for streaming, 60 seconds for
	// non-streaming)".
	StreamTimeout    time.Duration `koanf:"stream_timeout"`
	NonStreamTimeout time.Duration `koanf:"non_stream_timeout"`
}

// ProviderConfig holds the settings for a single upstream LLM provider.
type ProviderConfig struct {
	APIKey  string   `koanf:"api_key"`
	BaseURL string   `koanf:"base_url"`
	Models  []string `koanf:"models"`

	// Priority backs the router's fixed tie-break order (spec §4.D): lower
	// values are preferred when more than one configured provider claims
	// the same model and no other signal disambiguates. Providers with
	// equal priority fall back to the provider name's lexical order, which
	// is why callers use PriorityOrder() (which sorts the names on every
	// call) rather than ranging over the (unordered) map.
	Priority int `koanf:"priority"`
}

// PricingConfig points at the on-disk pricing catalog (spec §4.C).
type PricingConfig struct {
	Dir string `koanf:"dir"`
	// OpenRouterRefresh controls how often the OpenRouter pricing snapshot
	// is re-fetched from its public catalog endpoint. Zero disables the
	// background refresh entirely.
	OpenRouterRefresh time.Duration `koanf:"openrouter_refresh"`
}

// DatabaseConfig points at the embedded SQL store (spec §4.I).
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// RedisConfig is optional: an empty Addr disables the cache tier entirely
// (internal/cache then hands out a nil *Cache, which always misses).
type RedisConfig struct {
	Addr string `koanf:"addr"`
}

func defaults() *koanf.Koanf {
	k := koanf.New(".")
	_ = k.Load(confmap.Provider(map[string]any{
		"server.port":               8080,
		"server.environment":        "development",
		"server.read_timeout":       "30s",
		"server.write_timeout":      "30s",
		"server.stream_timeout":     "10m",
		"server.non_stream_timeout": "60s",
		"pricing.dir":               "./pricing",
		"pricing.openrouter_refresh": "1h",
		"database.path":             "./gateway.db",
		"mode":                      string(ModeBYOK),
	}, "."), nil)
	return k
}

// Load reads configuration from a YAML file, layers environment variable
// overrides on top, and returns a fully populated Config.
func Load(path string) (*Config, error) {
	// Load .env file into the process environment (ignored if not present).
	// This is the equivalent of require('dotenv').config() in Node.
	_ = godotenv.Load()

	k := defaults()

	// Load the YAML config file. file.Provider reads the file,
	// yaml.Parser() decodes the YAML format into koanf's internal map.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	// Layer environment variables on top. Any env var starting with
	// "LLMGATE_" can override a config value. The callback transforms
	// the env var name into a koanf key path:
	//   LLMGATE_SERVER_PORT -> server.port
	if err := k.Load(env.Provider("LLMGATE_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "LLMGATE_")),
			"_", ".",
		)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR_NAME} placeholders in provider API keys.
	// koanf doesn't do this automatically, so we handle it ourselves
	// using os.Getenv to look up the actual environment variable value.
	for name, p := range cfg.Providers {
		p.APIKey = expandEnv(p.APIKey)
		cfg.Providers[name] = p
	}
	cfg.Redis.Addr = expandEnv(cfg.Redis.Addr)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func expandEnv(v string) string {
	if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
		return os.Getenv(v[2 : len(v)-1])
	}
	return v
}

// validate enforces the boot-time invariant from spec §6's "Exit codes":
// configuration fails validation if no providers are configured at all —
// the caller (main) turns that into a non-zero exit.
func (c *Config) validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("config: no providers configured")
	}
	return nil
}

// PriorityOrder returns configured provider names sorted by ascending
// Priority, breaking ties by name. This is what the router (internal/router)
// consults for its "first configured provider in a fixed priority order"
// tie-break (spec §4.D).
func (c *Config) PriorityOrder() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		pi, pj := c.Providers[names[i]].Priority, c.Providers[names[j]].Priority
		if pi != pj {
			return pi < pj
		}
		return names[i] < names[j]
	})
	return names
}

// HasCredential reports whether a configured provider has a non-empty
// API key. Used both by the router (skip providers with no credential)
// and by GET /config/status.
func (c *Config) HasCredential(provider string) bool {
	p, ok := c.Providers[provider]
	return ok && p.APIKey != ""
}
