// Package config loads docquery configuration from file and environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Data      DataConfig      `mapstructure:"data"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Answer    AnswerConfig    `mapstructure:"answer"`
	Session   SessionConfig   `mapstructure:"session"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Store     StoreConfig     `mapstructure:"store"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type DataConfig struct {
	Dir string `mapstructure:"dir"`
}

type RetrievalConfig struct {
	Mode   string  `mapstructure:"mode"` // knn, mmr, bm25
	K      int     `mapstructure:"k"`
	Lambda float64 `mapstructure:"lambda"`  // mmr relevance/diversity balance
	FanOut int     `mapstructure:"fan_out"` // mmr candidate pool multiplier
}

type AnswerConfig struct {
	MaxDistance  float64 `mapstructure:"max_distance"` // cosine distance confidence gate
	MinBM25      float64 `mapstructure:"min_bm25"`
	ExactWords   int     `mapstructure:"exact_words"` // 0 disables the word-count guard
	SystemPrompt string  `mapstructure:"system_prompt"`
}

type SessionConfig struct {
	Keep int `mapstructure:"keep"` // verbatim turns retained after compaction
}

type LLMConfig struct {
	// Chain lists provider names tried in order; empty means extractive only.
	Chain      []string      `mapstructure:"chain"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`

	// Per-provider settings. Keys are provider names from Chain.
	Providers map[string]ProviderOverride `mapstructure:"providers"`
}

// ProviderOverride configures one provider in the chain.
type ProviderOverride struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base_url"`
	EmbedModel string `mapstructure:"embed_model"`
}

// Resolve returns the override for a provider name, zero-valued when the
// provider has no explicit section.
func (c LLMConfig) Resolve(name string) ProviderOverride {
	return c.Providers[name]
}

type EmbeddingConfig struct {
	// Source is "hashing" (offline, deterministic) or a provider name from
	// the LLM chain whose embeddings endpoint should be used.
	Source    string `mapstructure:"source"`
	Dimension int    `mapstructure:"dimension"`
}

type StoreConfig struct {
	// Backend is "memory" or "qdrant".
	Backend    string `mapstructure:"backend"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
}

type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	Environment  string  `mapstructure:"environment"`
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Retrieval.K <= 0 {
		warnings = append(warnings, fmt.Sprintf("retrieval.k %d is not positive, the default will apply", c.Retrieval.K))
	}
	if c.Retrieval.Lambda < 0 || c.Retrieval.Lambda > 1 {
		warnings = append(warnings, fmt.Sprintf("retrieval.lambda %.2f is outside [0.0, 1.0]", c.Retrieval.Lambda))
	}
	if c.Answer.MaxDistance < 0 {
		warnings = append(warnings, fmt.Sprintf("answer.max_distance %.2f is negative, every hit will be rejected", c.Answer.MaxDistance))
	}
	if c.Session.Keep <= 0 {
		warnings = append(warnings, fmt.Sprintf("session.keep %d is not positive, the default will apply", c.Session.Keep))
	}
	for _, name := range c.LLM.Chain {
		if name == "" || name == "none" {
			continue
		}
		if c.LLM.Resolve(name).APIKey == "" && name != "ollama" {
			warnings = append(warnings, fmt.Sprintf("provider %q is in the chain but has no api_key", name))
		}
	}
	return warnings
}

// Load reads configuration from file and environment. When path is empty a
// docquery.yaml in the working directory is used if present; a missing
// default file is not an error, so env-only deployments work.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DOCQUERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	} else {
		v.SetConfigName("docquery")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data.dir", "./data")

	v.SetDefault("retrieval.mode", "knn")
	v.SetDefault("retrieval.k", 2)
	v.SetDefault("retrieval.lambda", 0.6)
	v.SetDefault("retrieval.fan_out", 4)

	v.SetDefault("answer.max_distance", 1.25)
	v.SetDefault("answer.min_bm25", 0.0)
	v.SetDefault("answer.exact_words", 0)

	v.SetDefault("session.keep", 5)

	v.SetDefault("llm.chain", []string{})
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.retry_delay", "1s")

	v.SetDefault("embedding.source", "hashing")
	v.SetDefault("embedding.dimension", 256)

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.host", "localhost")
	v.SetDefault("store.port", 6334)
	v.SetDefault("store.collection", "docquery")

	v.SetDefault("server.listen_addr", ":8000")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("tracing.otlp_endpoint", "")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.environment", "development")
}
