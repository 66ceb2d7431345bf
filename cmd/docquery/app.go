package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/docquery/docquery/internal/answer"
	"github.com/docquery/docquery/internal/config"
	"github.com/docquery/docquery/internal/embed"
	"github.com/docquery/docquery/internal/embed/hashing"
	"github.com/docquery/docquery/internal/llm"
	"github.com/docquery/docquery/internal/llm/backends"
	"github.com/docquery/docquery/internal/observability"
	"github.com/docquery/docquery/internal/pipeline"
	"github.com/docquery/docquery/internal/retrieve"
	"github.com/docquery/docquery/internal/session"
	"github.com/docquery/docquery/internal/store"
	memstore "github.com/docquery/docquery/internal/store/memory"
	qdrantstore "github.com/docquery/docquery/internal/store/qdrant"
)

// app holds the assembled components for one process.
type app struct {
	cfg      *config.Config
	store    store.ChunkStore
	embedder embed.Embedder
	chain    *llm.Chain
	pipeline *pipeline.Pipeline
	sessions *session.Store
	tracing  *observability.TracerProvider

	qdrant *qdrantstore.Store // nil for the memory backend
}

// buildApp assembles the full component graph from configuration.
// overrides run after loading, letting command flags shadow config keys.
func buildApp(ctx context.Context, configPath string, overrides ...func(*config.Config)) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	for _, o := range overrides {
		o(cfg)
	}

	setupLogging(cfg.Log)

	tracing, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "docquery",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	a := &app{cfg: cfg, tracing: tracing}

	switch cfg.Store.Backend {
	case "", "memory":
		a.store = memstore.New()
	case "qdrant":
		qs, err := qdrantstore.New(cfg.Store.Host, cfg.Store.Port, cfg.Store.Collection)
		if err != nil {
			return nil, err
		}
		a.qdrant = qs
		a.store = qs
	default:
		return nil, fmt.Errorf("unknown store backend %q (want memory or qdrant)", cfg.Store.Backend)
	}

	factory := llm.NewFactory()
	backends.RegisterDefaults(factory)

	providers := make([]llm.Provider, 0, len(cfg.LLM.Chain))
	for _, name := range cfg.LLM.Chain {
		p, err := factory.Create(providerConfig(cfg, name))
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", name, err)
		}
		providers = append(providers, p)
	}
	a.chain = llm.NewChain(providers, cfg.LLM.Timeout)

	a.embedder, err = buildEmbedder(cfg, factory)
	if err != nil {
		return nil, err
	}

	retriever := retrieve.New(a.store, a.embedder, retrieve.Config{
		Lambda: &cfg.Retrieval.Lambda,
		FanOut: cfg.Retrieval.FanOut,
	})
	composer := answer.New(a.chain, answer.Config{
		MaxDistance:  cfg.Answer.MaxDistance,
		MinBM25:      cfg.Answer.MinBM25,
		SystemPrompt: cfg.Answer.SystemPrompt,
	})
	a.sessions = session.NewStore(cfg.Session.Keep)

	a.pipeline, err = pipeline.New(retriever, composer, a.sessions, pipeline.Options{
		Mode:       retrieve.Mode(cfg.Retrieval.Mode),
		TopK:       cfg.Retrieval.K,
		ExactWords: cfg.Answer.ExactWords,
	})
	if err != nil {
		return nil, err
	}

	return a, nil
}

// close releases external connections. Safe to call once.
func (a *app) close(ctx context.Context) {
	if a.qdrant != nil {
		if err := a.qdrant.Close(); err != nil {
			slog.Warn("closing qdrant connection", "error", err)
		}
	}
	if a.tracing != nil {
		if err := a.tracing.Shutdown(ctx); err != nil {
			slog.Warn("shutting down tracing", "error", err)
		}
	}
}

// providerConfig merges the chain entry's override with chain-wide timeout
// and retry settings. An api_key left empty in config falls back to the
// provider's conventional environment variable (ANTHROPIC_API_KEY, ...).
func providerConfig(cfg *config.Config, name string) llm.ProviderConfig {
	ov := cfg.LLM.Resolve(name)
	apiKey := ov.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(strings.ToUpper(name) + "_API_KEY")
	}
	return llm.ProviderConfig{
		Provider:   name,
		APIKey:     apiKey,
		Model:      ov.Model,
		BaseURL:    ov.BaseURL,
		EmbedModel: ov.EmbedModel,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
		RetryDelay: cfg.LLM.RetryDelay,
	}
}

// buildEmbedder picks the embedding function. Retrieval is only meaningful
// against vectors produced by the same function used at ingest time.
func buildEmbedder(cfg *config.Config, factory *llm.ProviderFactory) (embed.Embedder, error) {
	source := cfg.Embedding.Source
	if source == "" || source == "hashing" {
		return hashing.New(cfg.Embedding.Dimension), nil
	}

	p, err := factory.Create(providerConfig(cfg, source))
	if err != nil {
		return nil, fmt.Errorf("embedding provider %q: %w", source, err)
	}
	if p == nil {
		return nil, fmt.Errorf("embedding source %q resolves to no provider", source)
	}
	return embed.NewProviderEmbedder(p, cfg.Embedding.Dimension)
}

func setupLogging(cfg config.LogConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
