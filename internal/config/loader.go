// Package config loads HydraMCP's process-wide configuration from built-in
// defaults, the on-disk env file, and the process environment, in that
// order of increasing precedence.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// DefaultEnvFile is the on-disk persistent config file path, relative to
// the user's home directory.
const DefaultEnvFile = ".hydramcp/.env"

// Loader holds the merged *Config behind a mutex and can watch the env
// file and fallback-chain JSON file for hot reload, grounded on the
// teacher's fsnotify-driven config.Loader.
type Loader struct {
	envFile         string
	fallbackFile    string
	mu              sync.RWMutex
	cfg             *Config
	watchCallbacks  []func(*Config)
	logger          *slog.Logger
}

// NewLoader builds a Loader that reads envFile (an absolute path; pass ""
// to use "<home>/.hydramcp/.env"). fallbackFile, if non-empty, is watched
// in addition for changes to the fallback-chain JSON document.
func NewLoader(envFile string, logger *slog.Logger) *Loader {
	if envFile == "" {
		if home, err := os.UserHomeDir(); err == nil {
			envFile = filepath.Join(home, DefaultEnvFile)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{envFile: envFile, logger: logger}
}

// Load reads defaults, then the env file, then the process environment,
// merging them with increasing precedence into a fresh *Config.
func (l *Loader) Load() error {
	fileVars, err := readEnvFile(l.envFile)
	if err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	lu := lookup{file: fileVars}

	cfg := Default()

	cfg.LogLevel = lu.str("HYDRAMCP_LOG_LEVEL", cfg.LogLevel)

	cfg.Backends.OpenAI = mergeProvider(cfg.Backends.OpenAI, lu, "OPENAI")
	cfg.Backends.Anthropic = mergeProvider(cfg.Backends.Anthropic, lu, "ANTHROPIC")
	cfg.Backends.Gemini = mergeProvider(cfg.Backends.Gemini, lu, "GEMINI")
	cfg.Backends.Ollama = mergeProvider(cfg.Backends.Ollama, lu, "OLLAMA")

	cfg.Subscription.ClaudeProTokenFile = lu.str("HYDRAMCP_CLAUDE_PRO_TOKEN_FILE", cfg.Subscription.ClaudeProTokenFile)
	cfg.Subscription.ChatGPTPlusTokenFile = lu.str("HYDRAMCP_CHATGPT_PLUS_TOKEN_FILE", cfg.Subscription.ChatGPTPlusTokenFile)
	cfg.Subscription.GeminiAdvancedTokenFile = lu.str("HYDRAMCP_GEMINI_ADVANCED_TOKEN_FILE", cfg.Subscription.GeminiAdvancedTokenFile)

	cfg.CircuitBreaker.MaxFailures = lu.integer("HYDRAMCP_MAX_FAILURES", cfg.CircuitBreaker.MaxFailures)
	cfg.CircuitBreaker.CooldownMs = lu.int64("HYDRAMCP_COOLDOWN_MS", cfg.CircuitBreaker.CooldownMs)

	cfg.Cache.TTLMs = lu.int64("HYDRAMCP_CACHE_TTL_MS", cfg.Cache.TTLMs)
	cfg.Cache.MaxEntries = lu.integer("HYDRAMCP_CACHE_MAX_ENTRIES", cfg.Cache.MaxEntries)
	cfg.ModelListCache.TTLMs = lu.int64("HYDRAMCP_MODEL_LIST_CACHE_TTL_MS", cfg.ModelListCache.TTLMs)

	cfg.Timeout.DefaultMs = lu.int64("HYDRAMCP_TIMEOUT_MS", cfg.Timeout.DefaultMs)

	cfg.Admin.Addr = lu.str("HYDRAMCP_ADMIN_ADDR", cfg.Admin.Addr)

	cfg.DisableCache = lu.boolean("HYDRAMCP_DISABLE_CACHE", cfg.DisableCache)
	cfg.DisableCircuitBreaker = lu.boolean("HYDRAMCP_DISABLE_CIRCUIT_BREAKER", cfg.DisableCircuitBreaker)

	l.fallbackFile = lu.str("HYDRAMCP_FALLBACK_CHAINS_FILE", "")
	chains, err := loadFallbackChains(lu, l.fallbackFile)
	if err != nil {
		l.logger.Warn("failed to parse fallback chain config, ignoring", "error", err)
	} else {
		cfg.FallbackChains = chains
	}

	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()

	l.logger.Info("configuration loaded", "env_file", l.envFile)
	return nil
}

// loadFallbackChains reads HYDRAMCP_FALLBACK_CHAINS (a JSON document
// directly) or, failing that, the file named by fallbackFile.
func loadFallbackChains(lu lookup, fallbackFile string) (map[string][]string, error) {
	raw := lu.str("HYDRAMCP_FALLBACK_CHAINS", "")
	if raw == "" && fallbackFile != "" {
		data, err := os.ReadFile(fallbackFile)
		if err != nil {
			if os.IsNotExist(err) {
				return map[string][]string{}, nil
			}
			return nil, err
		}
		raw = string(data)
	}
	if raw == "" {
		return map[string][]string{}, nil
	}
	var chains map[string][]string
	if err := json.Unmarshal([]byte(raw), &chains); err != nil {
		return nil, fmt.Errorf("parse fallback chains: %w", err)
	}
	return chains, nil
}

func mergeProvider(base ProviderConfig, lu lookup, prefix string) ProviderConfig {
	base.Enabled = lu.boolean("HYDRAMCP_"+prefix+"_ENABLED", base.Enabled || lu.str("HYDRAMCP_"+prefix+"_API_KEY", "") != "")
	base.BaseURL = lu.str("HYDRAMCP_"+prefix+"_BASE_URL", base.BaseURL)
	base.APIKey = lu.str("HYDRAMCP_"+prefix+"_API_KEY", base.APIKey)
	return base
}

// Config returns the current merged configuration snapshot.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// OnReload registers a callback invoked with the new *Config after a
// successful reload triggered by Watch.
func (l *Loader) OnReload(fn func(*Config)) {
	l.watchCallbacks = append(l.watchCallbacks, fn)
}

// Watch starts watching the env file (and fallback-chain file, if set)
// for writes and reloads on change, grounded on the teacher's
// config.Loader.Watch.
func (l *Loader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}

	dirs := map[string]struct{}{filepath.Dir(l.envFile): {}}
	if l.fallbackFile != "" {
		dirs[filepath.Dir(l.fallbackFile)] = struct{}{}
	}
	for dir := range dirs {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			l.logger.Warn("failed to ensure config dir exists", "dir", dir, "error", err)
			continue
		}
		if err := watcher.Add(dir); err != nil {
			l.logger.Warn("failed to watch config dir", "dir", dir, "error", err)
		}
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != l.envFile && event.Name != l.fallbackFile {
					continue
				}
				if !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
					continue
				}
				l.logger.Info("config file changed, reloading", "file", event.Name)
				if err := l.Load(); err != nil {
					l.logger.Error("failed to reload config", "error", err)
					continue
				}
				cfg := l.Config()
				for _, fn := range l.watchCallbacks {
					fn(cfg)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Error("fsnotify error", "error", err)
			}
		}
	}()

	return nil
}
