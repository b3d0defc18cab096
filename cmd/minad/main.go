// Command minad is the main entry point for the Mina meeting intelligence server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/minahq/mina/internal/config"
	"github.com/minahq/mina/internal/ingest"
	"github.com/minahq/mina/internal/insights"
	"github.com/minahq/mina/internal/observe"
	"github.com/minahq/mina/internal/quality"
	"github.com/minahq/mina/internal/resilience"
	"github.com/minahq/mina/internal/tasks"
	"github.com/minahq/mina/pkg/provider/embeddings"
	oaembed "github.com/minahq/mina/pkg/provider/embeddings/openai"
	"github.com/minahq/mina/pkg/provider/llm"
	"github.com/minahq/mina/pkg/provider/llm/anyllm"
	oallm "github.com/minahq/mina/pkg/provider/llm/openai"
	"github.com/minahq/mina/pkg/taskstore"
	"github.com/minahq/mina/pkg/taskstore/memstore"
	"github.com/minahq/mina/pkg/taskstore/postgres"
)

// Eviction defaults, used when the config leaves them unset.
const (
	defaultSessionTTL    = 2 * time.Hour
	defaultEvictInterval = 10 * time.Minute
)

const defaultEmbeddingDimensions = 1536

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "minad: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "minad: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, logLevel := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("mina starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "mina"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Task store ────────────────────────────────────────────────────────────
	store, err := buildStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open task store", "err", err)
		return 1
	}
	defer store.Close()

	// ── Quality processor ─────────────────────────────────────────────────────
	processor := quality.NewProcessor(quality.WithTuning(tuningFromConfig(cfg.Quality)))

	sessionTTL := cfg.Quality.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	evictInterval := cfg.Quality.EvictInterval
	if evictInterval <= 0 {
		evictInterval = defaultEvictInterval
	}
	go func() {
		ticker := time.NewTicker(evictInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := processor.EvictIdle(sessionTTL); n > 0 {
					slog.Info("evicted idle sessions", "count", n, "ttl", sessionTTL)
				}
			}
		}
	}()

	// ── Insights engine ───────────────────────────────────────────────────────
	var engine *insights.Engine
	if providers.LLM != nil {
		engine = buildEngine(cfg, providers, store)
	} else {
		slog.Warn("no LLM provider configured — finalize will return quality reports without tasks")
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	// ── HTTP server ───────────────────────────────────────────────────────────
	ingestServer := ingest.NewServer(processor, engine)
	handler := observe.Middleware(observe.DefaultMetrics())(ingestServer.Routes())

	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = ":8080"
	}
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if cfg.Server.TLS != nil {
			serveErr <- srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			serveErr <- srv.ListenAndServe()
		}
	}()

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyConfigChange(config.Diff(old, new), processor, logLevel)
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready — press Ctrl+C to shut down", "listen_addr", listenAddr)

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("serve error", "err", err)
			return 1
		}
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// serverProviders holds the instantiated external providers the server runs
// with. Either field may be nil when unconfigured.
type serverProviders struct {
	LLM        llm.Provider
	Embeddings embeddings.Provider
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// openai talks to the API directly; the rest go through any-llm-go and
	// share the same pattern: optional APIKey + optional BaseURL.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range []string{
		"anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates the providers named in cfg using the registry.
// The primary LLM is wrapped in a fallback chain when llm_fallbacks are
// configured, so one backend outage never blocks finalization.
func buildProviders(cfg *config.Config, reg *config.Registry) (*serverProviders, error) {
	ps := &serverProviders{}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "llm", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		} else {
			ps.LLM = p
			slog.Info("provider created", "kind", "llm", "name", name, "model", cfg.Providers.LLM.Model)
		}
	}

	if ps.LLM != nil && len(cfg.Providers.LLMFallbacks) > 0 {
		chain := resilience.NewLLMFallback(ps.LLM, cfg.Providers.LLM.Name, resilience.FallbackConfig{})
		for _, entry := range cfg.Providers.LLMFallbacks {
			p, err := reg.CreateLLM(entry)
			if errors.Is(err, config.ErrProviderNotRegistered) {
				slog.Debug("provider not yet implemented — skipping", "kind", "llm-fallback", "name", entry.Name)
				continue
			} else if err != nil {
				return nil, fmt.Errorf("create llm fallback %q: %w", entry.Name, err)
			}
			chain.AddFallback(entry.Name, p)
			slog.Info("provider created", "kind", "llm-fallback", "name", entry.Name, "model", entry.Model)
		}
		ps.LLM = chain
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "embeddings", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		} else {
			ps.Embeddings = p
			slog.Info("provider created", "kind", "embeddings", "name", name, "model", cfg.Providers.Embeddings.Model)
		}
	}

	return ps, nil
}

// buildStore opens the Postgres task store when a DSN is configured and falls
// back to the in-memory store otherwise.
func buildStore(ctx context.Context, cfg *config.Config) (taskstore.Store, error) {
	if dsn := cfg.Storage.PostgresDSN; dsn != "" {
		dims := cfg.Storage.EmbeddingDimensions
		if dims <= 0 {
			dims = defaultEmbeddingDimensions
		}
		store, err := postgres.NewStore(ctx, dsn, dims)
		if err != nil {
			return nil, fmt.Errorf("postgres task store: %w", err)
		}
		slog.Info("task store ready", "backend", "postgres", "embedding_dimensions", dims)
		return store, nil
	}
	slog.Info("task store ready", "backend", "memory")
	return memstore.New(), nil
}

// buildEngine assembles the insights pipeline from the configured providers.
func buildEngine(cfg *config.Config, providers *serverProviders, store taskstore.Store) *insights.Engine {
	extractor := tasks.NewExtractor(providers.LLM)

	filter := tasks.DefaultMetaFilter
	if cfg.Insights.DisableMetaFilter {
		filter = tasks.KeepAllFilter
	}
	resolver := tasks.NewResolver(tasks.WithMetaFilter(filter))

	opts := []insights.Option{insights.WithStore(store)}
	if cfg.Insights.EmbedTitles {
		if providers.Embeddings != nil {
			opts = append(opts, insights.WithEmbedder(providers.Embeddings))
		} else {
			slog.Warn("embed_titles enabled but no embeddings provider built — storing tasks without vectors")
		}
	}
	return insights.NewEngine(extractor, resolver, opts...)
}

// ── Config hot reload ───────────────────────────────────────────────────────────

// applyConfigChange applies the hot-reloadable parts of a config diff: quality
// tuning and the log level. Provider and storage changes require a restart.
func applyConfigChange(diff config.ConfigDiff, processor *quality.Processor, logLevel *slog.LevelVar) {
	if diff.QualityChanged {
		processor.SetTuning(tuningFromConfig(diff.NewQuality))
		slog.Info("quality tuning reloaded",
			"duplicate_window", diff.NewQuality.DuplicateWindow,
			"duplicate_threshold", diff.NewQuality.DuplicateThreshold,
		)
	}
	if diff.LogLevelChanged {
		logLevel.Set(slogLevel(diff.NewLogLevel))
		slog.Info("log level changed", "log_level", diff.NewLogLevel)
	}
	if diff.InsightsChanged {
		slog.Warn("insights settings changed — restart required to apply")
	}
}

// tuningFromConfig converts the config block to quality tuning. Unset fields
// stay zero; the processor substitutes its defaults for those.
func tuningFromConfig(qc config.QualityConfig) quality.Tuning {
	return quality.Tuning{
		DuplicateWindow:    qc.DuplicateWindow,
		DuplicateThreshold: qc.DuplicateThreshold,
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║           Mina — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	for _, entry := range cfg.Providers.LLMFallbacks {
		printProvider("LLM fallback", entry.Name, entry.Model)
	}
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	if cfg.Storage.PostgresDSN != "" {
		fmt.Printf("║  Task store      : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Task store      : %-19s ║\n", "memory")
	}
	if cfg.Server.TLS != nil {
		fmt.Printf("║  TLS             : %-19s ║\n", "enabled")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the process logger. The returned LevelVar lets the config
// watcher change the level without replacing the handler.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	lvl.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), lvl
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
