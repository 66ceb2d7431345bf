// Package backends wires the concrete provider clients into an llm factory.
// Both the CLI and the HTTP server register through here so the available
// provider set never diverges between entry points.
package backends

import (
	"github.com/docquery/docquery/internal/llm"
	"github.com/docquery/docquery/internal/llm/anthropic"
	"github.com/docquery/docquery/internal/llm/openai"
)

// RegisterDefaults registers all built-in LLM provider constructors
// (anthropic, openai, and the OpenAI-compatible presets).
func RegisterDefaults(factory *llm.ProviderFactory) {
	factory.Register("anthropic", func(c llm.ProviderConfig) (llm.Provider, error) {
		return anthropic.New(c.APIKey, c.Model, c.BaseURL), nil
	})
	factory.Register("openai", func(c llm.ProviderConfig) (llm.Provider, error) {
		return openai.New(c.APIKey, c.Model, c.BaseURL, c.EmbedModel), nil
	})
	for _, p := range []struct{ name, url string }{
		{"groq", llm.KnownProviders["groq"]},
		{"ollama", llm.KnownProviders["ollama"]},
		{"deepseek", llm.KnownProviders["deepseek"]},
		{"custom", ""},
	} {
		factory.Register(p.name, func(c llm.ProviderConfig) (llm.Provider, error) {
			base := c.BaseURL
			if base == "" {
				base = p.url
			}
			return openai.New(c.APIKey, c.Model, base, c.EmbedModel), nil
		})
	}
}
