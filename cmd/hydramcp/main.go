// Command hydramcp is the entry point of the orchestration server: it
// loads configuration, builds the backend registry and resilience stack,
// starts the optional admin HTTP side-channel, and runs the JSON-RPC
// tool transport on stdio until signalled to shut down.
//
// Grounded structurally on the teacher's cmd/gateway/main.go: flag
// parsing, slog setup, config load, dependency wiring, signal-driven
// graceful shutdown. The HTTP ListenAndServe/Shutdown pair there is
// replaced here with running the rpcserver stdio loop (in a goroutine)
// alongside the admin mux, both drained on SIGINT/SIGTERM.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JustHereToHelp/HydraMCP/internal/admin"
	"github.com/JustHereToHelp/HydraMCP/internal/backend/chatcompletions"
	"github.com/JustHereToHelp/HydraMCP/internal/backend/generatecontent"
	"github.com/JustHereToHelp/HydraMCP/internal/backend/messages"
	"github.com/JustHereToHelp/HydraMCP/internal/backend/subscription"
	"github.com/JustHereToHelp/HydraMCP/internal/cache"
	"github.com/JustHereToHelp/HydraMCP/internal/circuit"
	"github.com/JustHereToHelp/HydraMCP/internal/config"
	"github.com/JustHereToHelp/HydraMCP/internal/metrics"
	"github.com/JustHereToHelp/HydraMCP/internal/multibackend"
	"github.com/JustHereToHelp/HydraMCP/internal/rpcserver"
	"github.com/JustHereToHelp/HydraMCP/internal/sessionlog"
	"github.com/JustHereToHelp/HydraMCP/internal/smartbackend"
	"github.com/JustHereToHelp/HydraMCP/internal/tools"
)

var version = "dev"

func main() {
	envFile := flag.String("env-file", "", "path to the persistent .env config file (defaults to <home>/.hydramcp/.env)")
	sessionsDir := flag.String("sessions-dir", "", "root directory of session transcripts for session_recap (defaults to <home>/.hydramcp/sessions)")
	flag.Parse()

	logLevel := &slog.LevelVar{}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	loader := config.NewLoader(*envFile, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config file watcher", "error", err)
	}

	cfg := loader.Config()
	applyLogLevel(logLevel, cfg.LogLevel)
	loader.OnReload(func(c *config.Config) { applyLogLevel(logLevel, c.LogLevel) })

	mb := buildMultiBackend(cfg, logger)

	// Startup self-check: ping every backend once, logged but never fatal,
	// grounded on the teacher's dbPool.Ping/rdb.Ping "connect, ping,
	// warn-don't-fail" idiom.
	{
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		healthy := mb.HealthCheck(ctx)
		cancel()
		if healthy {
			logger.Info("startup self-check: at least one backend is healthy")
		} else {
			logger.Warn("startup self-check: no backend reported healthy; server will still start")
		}
	}

	met := metrics.New()
	breaker := circuit.New(cfg.CircuitBreaker.MaxFailures, cfg.CircuitBreaker.Cooldown())
	breaker.SetLogger(logger)
	respCache := cache.New(cfg.Cache.TTL(), cfg.Cache.MaxEntries)
	listCache := cache.NewModelListCache(cfg.ModelListCache.TTL())

	sb := smartbackend.New(mb, smartbackend.Options{
		CircuitBreaker:        breaker,
		ResponseCache:         respCache,
		ModelListCache:        listCache,
		Metrics:               met,
		FallbackChains:        cfg.FallbackChains,
		ProviderOf:            providerOf,
		DisableCache:          cfg.DisableCache,
		DisableCircuitBreaker: cfg.DisableCircuitBreaker,
		Logger:                logger,
	})

	sessionsRoot := *sessionsDir
	if sessionsRoot == "" {
		if home, err := os.UserHomeDir(); err == nil {
			sessionsRoot = home + "/.hydramcp/sessions"
		}
	}
	sessionReader := sessionlog.NewReader(sessionsRoot)

	rpc := buildRPCServer(logger, sb, breaker, sessionReader)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var adminSrv *http.Server
	adminErrCh := make(chan error, 1)
	if cfg.Admin.Addr != "" {
		adminSrv = &http.Server{
			Addr:    cfg.Admin.Addr,
			Handler: admin.NewMux(breaker, met.Registry(), version),
		}
		go func() {
			logger.Info("admin surface starting", "addr", cfg.Admin.Addr)
			adminErrCh <- adminSrv.ListenAndServe()
		}()
	}

	rpcErrCh := make(chan error, 1)
	go func() {
		logger.Info("hydramcp starting", "version", version)
		rpcErrCh <- rpc.Run(ctx, os.Stdin, os.Stdout)
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-rpcErrCh:
		if err != nil && err != context.Canceled {
			logger.Error("rpc server error", "error", err)
		}
	case err := <-adminErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("admin server error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := rpc.Shutdown(shutdownCtx); err != nil {
		logger.Error("rpc graceful shutdown failed", "error", err)
	}
	if adminSrv != nil {
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("admin graceful shutdown failed", "error", err)
		}
	}
	logger.Info("hydramcp stopped")
}

func applyLogLevel(v *slog.LevelVar, level string) {
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}

// buildMultiBackend registers backends in the order spec.md §4.3 requires
// for bare-ID routing: native API backends first, then subscription, then
// local.
func buildMultiBackend(cfg *config.Config, logger *slog.Logger) *multibackend.MultiBackend {
	mb := multibackend.New()
	timeout := cfg.Timeout.Default()

	if cfg.Backends.OpenAI.Enabled {
		mb.Register(chatcompletions.New(chatcompletions.Config{
			ProviderKey: "openai",
			BaseURL:     cfg.Backends.OpenAI.BaseURL,
			APIKey:      cfg.Backends.OpenAI.APIKey,
			Timeout:     timeout,
		}))
	}
	if cfg.Backends.Anthropic.Enabled {
		mb.Register(messages.New(messages.Config{
			ProviderKey: "anthropic",
			BaseURL:     cfg.Backends.Anthropic.BaseURL,
			APIKey:      cfg.Backends.Anthropic.APIKey,
			Timeout:     timeout,
		}))
	}
	if cfg.Backends.Gemini.Enabled {
		mb.Register(generatecontent.New(generatecontent.Config{
			ProviderKey: "gemini",
			BaseURL:     cfg.Backends.Gemini.BaseURL,
			APIKey:      cfg.Backends.Gemini.APIKey,
			Timeout:     timeout,
		}))
	}

	sub, err := subscription.New(subscription.Config{
		ProviderKey: "subscription",
		Files: subscription.FamilyFiles{
			ClaudePro:      expandHome(cfg.Subscription.ClaudeProTokenFile),
			ChatGPTPlus:    expandHome(cfg.Subscription.ChatGPTPlusTokenFile),
			GeminiAdvanced: expandHome(cfg.Subscription.GeminiAdvancedTokenFile),
		},
		Timeout: timeout,
	})
	if err != nil {
		logger.Warn("failed to initialize subscription backend, continuing without it", "error", err)
	} else {
		mb.Register(sub)
	}

	if cfg.Backends.Ollama.Enabled {
		mb.Register(chatcompletions.New(chatcompletions.Config{
			ProviderKey: "ollama",
			BaseURL:     cfg.Backends.Ollama.BaseURL,
			Timeout:     timeout,
			Native:      true,
		}))
	}

	return mb
}

func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return home + path[1:]
		}
	}
	return path
}

// providerOf extracts the provider_key prefix from a "provider_key/id"
// model string, for metrics labeling; bare IDs have no known provider
// until MultiBackend resolves them, so they are labeled "unknown".
func providerOf(modelID string) string {
	for i, c := range modelID {
		if c == '/' {
			if i == 0 {
				break
			}
			return modelID[:i]
		}
	}
	return "unknown"
}

func buildRPCServer(logger *slog.Logger, sb *smartbackend.SmartBackend, breaker *circuit.Breaker, reader *sessionlog.Reader) *rpcserver.Server {
	s := rpcserver.New(logger)

	s.Register(rpcserver.ToolSpec{
		Name:        "list_models",
		Description: "List every model available across all backends, grouped by provider.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	}, func(ctx context.Context, raw json.RawMessage) (string, bool, error) {
		out := tools.ListModels(ctx, sb, breaker)
		return out.Text, out.IsError, nil
	})

	s.Register(rpcserver.ToolSpec{
		Name:        "ask_model",
		Description: "Ask a single model a question.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"model", "prompt"},
			"properties": map[string]any{
				"model":               map[string]any{"type": "string"},
				"prompt":              map[string]any{"type": "string"},
				"system_prompt":       map[string]any{"type": "string"},
				"temperature":         map[string]any{"type": "number", "minimum": 0, "maximum": 2},
				"max_tokens":          map[string]any{"type": "integer", "minimum": 1},
				"max_response_tokens": map[string]any{"type": "integer", "minimum": 1},
				"format":              map[string]any{"type": "string", "enum": []string{"brief", "detailed"}},
				"include_raw":         map[string]any{"type": "boolean"},
			},
		},
	}, func(ctx context.Context, raw json.RawMessage) (string, bool, error) {
		in, err := rpcserver.DecodeArgs[tools.AskModelInput](raw)
		if err != nil {
			return "", true, err
		}
		out := tools.AskModel(ctx, sb, in)
		return out.Text, out.IsError, nil
	})

	s.Register(rpcserver.ToolSpec{
		Name:        "compare_models",
		Description: "Fan a prompt out to 2-5 models concurrently and compare their responses.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"models", "prompt"},
			"properties": map[string]any{
				"models":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "minItems": 2, "maxItems": 5},
				"prompt":        map[string]any{"type": "string"},
				"system_prompt": map[string]any{"type": "string"},
				"temperature":   map[string]any{"type": "number", "minimum": 0, "maximum": 2},
				"max_tokens":    map[string]any{"type": "integer", "minimum": 1},
			},
		},
	}, func(ctx context.Context, raw json.RawMessage) (string, bool, error) {
		in, err := rpcserver.DecodeArgs[tools.CompareModelsInput](raw)
		if err != nil {
			return "", true, err
		}
		out := tools.CompareModels(ctx, sb, in)
		return out.Text, out.IsError, nil
	})

	s.Register(rpcserver.ToolSpec{
		Name:        "consensus",
		Description: "Poll 3-7 models and determine whether they agree.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"models", "prompt"},
			"properties": map[string]any{
				"models":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "minItems": 3, "maxItems": 7},
				"prompt":        map[string]any{"type": "string"},
				"strategy":      map[string]any{"type": "string", "enum": []string{"majority", "supermajority", "unanimous"}},
				"judge_model":   map[string]any{"type": "string"},
				"system_prompt": map[string]any{"type": "string"},
				"temperature":   map[string]any{"type": "number", "minimum": 0, "maximum": 2},
				"max_tokens":    map[string]any{"type": "integer", "minimum": 1},
			},
		},
	}, func(ctx context.Context, raw json.RawMessage) (string, bool, error) {
		in, err := rpcserver.DecodeArgs[tools.ConsensusInput](raw)
		if err != nil {
			return "", true, err
		}
		out := tools.Consensus(ctx, sb, in)
		return out.Text, out.IsError, nil
	})

	s.Register(rpcserver.ToolSpec{
		Name:        "synthesize",
		Description: "Fan a prompt out to 2-5 models and synthesize one unified answer.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"models", "prompt"},
			"properties": map[string]any{
				"models":            map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "minItems": 2, "maxItems": 5},
				"prompt":            map[string]any{"type": "string"},
				"synthesizer_model": map[string]any{"type": "string"},
				"system_prompt":     map[string]any{"type": "string"},
				"temperature":       map[string]any{"type": "number", "minimum": 0, "maximum": 2},
				"max_tokens":        map[string]any{"type": "integer", "minimum": 1},
			},
		},
	}, func(ctx context.Context, raw json.RawMessage) (string, bool, error) {
		in, err := rpcserver.DecodeArgs[tools.SynthesizeInput](raw)
		if err != nil {
			return "", true, err
		}
		out := tools.Synthesize(ctx, sb, in)
		return out.Text, out.IsError, nil
	})

	s.Register(rpcserver.ToolSpec{
		Name:        "analyze_file",
		Description: "Read a file server-side and ask a large-context model to analyze it.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"file_path", "prompt"},
			"properties": map[string]any{
				"file_path":           map[string]any{"type": "string"},
				"prompt":              map[string]any{"type": "string"},
				"model":               map[string]any{"type": "string"},
				"max_tokens":          map[string]any{"type": "integer", "minimum": 1},
				"max_response_tokens": map[string]any{"type": "integer", "minimum": 1},
				"format":              map[string]any{"type": "string", "enum": []string{"brief", "detailed"}},
				"include_raw":         map[string]any{"type": "boolean"},
			},
		},
	}, func(ctx context.Context, raw json.RawMessage) (string, bool, error) {
		in, err := rpcserver.DecodeArgs[tools.AnalyzeFileInput](raw)
		if err != nil {
			return "", true, err
		}
		out := tools.AnalyzeFile(ctx, sb, in)
		return out.Text, out.IsError, nil
	})

	s.Register(rpcserver.ToolSpec{
		Name:        "smart_read",
		Description: "Read a file server-side and extract content relevant to a query, verbatim, via a large-context model.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"file_path", "query"},
			"properties": map[string]any{
				"file_path":           map[string]any{"type": "string"},
				"query":               map[string]any{"type": "string"},
				"model":               map[string]any{"type": "string"},
				"max_tokens":          map[string]any{"type": "integer", "minimum": 1},
				"max_response_tokens": map[string]any{"type": "integer", "minimum": 1},
				"format":              map[string]any{"type": "string", "enum": []string{"brief", "detailed"}},
				"include_raw":         map[string]any{"type": "boolean"},
			},
		},
	}, func(ctx context.Context, raw json.RawMessage) (string, bool, error) {
		in, err := rpcserver.DecodeArgs[tools.SmartReadInput](raw)
		if err != nil {
			return "", true, err
		}
		out := tools.SmartRead(ctx, sb, in)
		return out.Text, out.IsError, nil
	})

	s.Register(rpcserver.ToolSpec{
		Name:        "session_recap",
		Description: "Summarize the most recent session transcripts for a project.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sessions":           map[string]any{"type": "integer", "minimum": 1, "maximum": 10},
				"project":            map[string]any{"type": "string"},
				"focus":              map[string]any{"type": "string"},
				"model":              map[string]any{"type": "string"},
				"max_summary_tokens": map[string]any{"type": "integer", "minimum": 1},
			},
		},
	}, func(ctx context.Context, raw json.RawMessage) (string, bool, error) {
		in, err := rpcserver.DecodeArgs[tools.SessionRecapInput](raw)
		if err != nil {
			return "", true, err
		}
		out := tools.SessionRecap(ctx, sb, reader, in)
		return out.Text, out.IsError, nil
	})

	return s
}
