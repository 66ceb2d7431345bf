package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/docquery/docquery/internal/observability"
)

// Chain tries an ordered list of providers until one returns usable text.
// A provider error, timeout, or blank completion advances to the next member;
// the order is injected configuration, never hardcoded.
type Chain struct {
	providers []Provider
	timeout   time.Duration
}

// NewChain builds a chain from the given providers. Nil entries (providers
// configured as "none") are skipped. timeout bounds each member's call;
// zero disables the per-member deadline.
func NewChain(providers []Provider, timeout time.Duration) *Chain {
	kept := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			kept = append(kept, p)
		}
	}
	return &Chain{providers: kept, timeout: timeout}
}

// Len reports the number of usable providers.
func (c *Chain) Len() int { return len(c.providers) }

// Generate runs the prompt through the chain and returns the first non-empty
// completion plus the name of the provider that produced it. When every
// member fails it returns ErrChainExhausted; callers are expected to fall
// back to an extractive answer.
func (c *Chain) Generate(ctx context.Context, prompt *Prompt, opts *RequestOptions) (string, string, error) {
	if len(c.providers) == 0 {
		return "", "", ErrChainExhausted
	}

	metrics := observability.Metrics()

	var lastErr error
	for _, p := range c.providers {
		callCtx := ctx
		cancel := func() {}
		if c.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		}
		callCtx, span := observability.StartLLMSpan(callCtx, p.Name(), "")
		start := time.Now()
		resp, err := p.Complete(callCtx, prompt, opts)
		cancel()

		tokens := 0
		if resp != nil {
			tokens = resp.InputTokens + resp.OutputTokens
			observability.RecordLLMMetrics(span, resp.InputTokens, resp.OutputTokens, time.Since(start))
		}
		observability.RecordError(span, err)
		span.End()
		metrics.RecordLLMRequest(time.Since(start), tokens, err)

		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}
		if err != nil {
			slog.Warn("provider failed, advancing chain", "provider", p.Name(), "error", err)
			metrics.LLMFallbacksTotal.Inc()
			lastErr = err
			continue
		}

		text := strings.TrimSpace(StripThinkingTags(resp.Content))
		if text == "" {
			slog.Warn("provider returned empty completion, advancing chain", "provider", p.Name())
			metrics.LLMFallbacksTotal.Inc()
			lastErr = &ProviderError{Provider: p.Name(), Kind: ErrMalformed, Err: fmt.Errorf("empty completion")}
			continue
		}
		return text, p.Name(), nil
	}

	return "", "", fmt.Errorf("%w: %w", ErrChainExhausted, lastErr)
}
