// Package config loads HydraMCP's process-wide configuration from built-in
// defaults, the on-disk env file, and the process environment, in that
// order of increasing precedence.
package config

import "time"

// Config is the immutable, fully-merged configuration for one process
// lifetime. Once built it is never mutated in place — a reload produces a
// new *Config that atomically replaces the old one behind the Loader.
type Config struct {
	LogLevel string

	Backends       BackendsConfig
	Subscription   SubscriptionConfig
	CircuitBreaker CircuitBreakerConfig
	Cache          CacheConfig
	ModelListCache ModelListCacheConfig
	Timeout        TimeoutConfig
	FallbackChains map[string][]string
	Admin          AdminConfig

	// DisableCache and DisableCircuitBreaker are the independent feature
	// flags spec.md §4.8 requires: either guard can be turned off without
	// affecting the other.
	DisableCache          bool
	DisableCircuitBreaker bool
}

// ProviderConfig is one native HTTP backend's connection settings.
type ProviderConfig struct {
	Enabled bool
	BaseURL string
	APIKey  string
}

// BackendsConfig holds the native API backend settings, keyed by the
// provider_key under which the backend is registered.
type BackendsConfig struct {
	OpenAI    ProviderConfig
	Anthropic ProviderConfig
	Gemini    ProviderConfig
	Ollama    ProviderConfig // local model server; no API key
}

// SubscriptionConfig holds the on-disk token file paths for the three
// OAuth-refresh-token-bearing subscription families.
type SubscriptionConfig struct {
	ClaudeProTokenFile      string
	ChatGPTPlusTokenFile    string
	GeminiAdvancedTokenFile string
}

type CircuitBreakerConfig struct {
	MaxFailures int
	CooldownMs  int64
}

type CacheConfig struct {
	TTLMs      int64
	MaxEntries int
}

type ModelListCacheConfig struct {
	TTLMs int64
}

type TimeoutConfig struct {
	DefaultMs int64
}

// AdminConfig controls the optional chi-routed health/metrics side-channel.
// Addr == "" disables the admin surface entirely.
type AdminConfig struct {
	Addr string
}

// Default returns the built-in configuration baseline, overridden in turn
// by the on-disk env file and then the process environment in Loader.Load.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Backends: BackendsConfig{
			OpenAI:    ProviderConfig{BaseURL: "https://api.openai.com/v1"},
			Anthropic: ProviderConfig{BaseURL: "https://api.anthropic.com/v1"},
			Gemini:    ProviderConfig{BaseURL: "https://generativelanguage.googleapis.com/v1beta"},
			Ollama:    ProviderConfig{Enabled: true, BaseURL: "http://localhost:11434/v1"},
		},
		Subscription: SubscriptionConfig{
			ClaudeProTokenFile:      "~/.config/hydramcp/claude-pro-oauth.json",
			ChatGPTPlusTokenFile:    "~/.config/hydramcp/chatgpt-plus-oauth.json",
			GeminiAdvancedTokenFile: "~/.config/hydramcp/gemini-advanced-oauth.json",
		},
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures: 3,
			CooldownMs:  60_000,
		},
		Cache: CacheConfig{
			TTLMs:      900_000,
			MaxEntries: 100,
		},
		ModelListCache: ModelListCacheConfig{
			TTLMs: 30_000,
		},
		Timeout: TimeoutConfig{
			DefaultMs: 120_000,
		},
		FallbackChains: map[string][]string{},
		Admin:          AdminConfig{Addr: ""},
	}
}

func (c CircuitBreakerConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMs) * time.Millisecond
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMs) * time.Millisecond
}

func (c ModelListCacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMs) * time.Millisecond
}

func (c TimeoutConfig) Default() time.Duration {
	return time.Duration(c.DefaultMs) * time.Millisecond
}
