// Package answer turns retrieved chunks into a grounded, guarded answer.
// Generation goes through an ordered provider chain; when no provider is
// configured or all of them fail, the retrieved text itself becomes the
// answer (extractive mode). Low-confidence retrievals short-circuit to a
// fixed refusal so the system never asserts what its corpus cannot support.
package answer

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/docquery/docquery/internal/llm"
	"github.com/docquery/docquery/internal/retrieve"
)

// NoAnswerText is the fixed refusal returned when evidence is missing or too
// weak to ground a claim.
const NoAnswerText = "I don't know based on the provided documents."

// ExtractiveProvider names the degraded mode where hit texts are returned
// verbatim instead of generated prose.
const ExtractiveProvider = "extractive"

// NoneProvider names the no-answer path, which consults no provider at all.
const NoneProvider = "none"

const defaultSystemPrompt = "You are a concise assistant answering questions about a document corpus. " +
	"Use only the provided context. Cite nothing that is not in it."

// chunkSeparator visibly delimits chunk texts inside the grounding block and
// in extractive answers.
const chunkSeparator = "\n---\n"

// Constraints are caller-supplied output requirements.
type Constraints struct {
	// ExactWordCount forces the answer to exactly N words when > 0.
	// Longer answers are truncated; shorter ones pass through best-effort.
	ExactWordCount int
}

// Config tunes the composer.
type Config struct {
	// MaxDistance is the confidence gate for cosine-scored hits: a best hit
	// farther than this triggers the no-answer path. The default is
	// deliberately permissive; it is a tunable, not a calibrated constant.
	MaxDistance float64
	// MinBM25 is the confidence gate for lexically scored hits.
	MinBM25 float64
	// SystemPrompt overrides the built-in grounding instructions.
	SystemPrompt string
}

// DefaultConfig returns the uncalibrated defaults.
func DefaultConfig() Config {
	return Config{MaxDistance: 1.25, MinBM25: 0}
}

// Result is a composed answer plus how it was produced.
type Result struct {
	Text     string
	Provider string
	// Grounded reports whether the answer is backed by retrieved evidence.
	// The pipeline drops citations for ungrounded (refusal) answers.
	Grounded bool
}

// Composer builds answers from retrieval hits.
type Composer struct {
	chain *llm.Chain
	cfg   Config
}

// New creates a composer. chain may be empty; composition then always runs
// extractively.
func New(chain *llm.Chain, cfg Config) *Composer {
	if cfg.MaxDistance <= 0 {
		cfg.MaxDistance = DefaultConfig().MaxDistance
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	return &Composer{chain: chain, cfg: cfg}
}

// Compose produces the answer for a query. It never mutates anything:
// recording the turn is the pipeline's responsibility. The only error it
// returns is context cancellation; every other failure degrades.
func (c *Composer) Compose(ctx context.Context, query string, hits []retrieve.Hit, sessionContext string, constraints Constraints) (Result, error) {
	if !c.Confident(hits) {
		return Result{
			Text:     enforceWordCount(NoAnswerText, constraints.ExactWordCount),
			Provider: NoneProvider,
			Grounded: false,
		}, nil
	}

	grounding := groundingBlock(hits)
	prompt := llm.UserPrompt(c.cfg.SystemPrompt, userPrompt(query, grounding, sessionContext))

	text, provider, err := c.chain.Generate(ctx, prompt, nil)
	if err != nil {
		// Only a dead request context aborts composition. A per-provider
		// timeout also wraps context.DeadlineExceeded, but that deadline is
		// the chain member's, not the caller's, and degrades like any other
		// provider failure.
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if !errors.Is(err, llm.ErrChainExhausted) {
			slog.Warn("provider chain failed, answering extractively", "error", err)
		}
		text = grounding
		provider = ExtractiveProvider
	}

	return Result{
		Text:     enforceWordCount(text, constraints.ExactWordCount),
		Provider: provider,
		Grounded: true,
	}, nil
}

// Confident reports whether the hit set clears the minimum-confidence gate.
// Empty hits never do; cosine hits must be near enough, bm25 hits scored
// high enough. Hits arrive best-first, so only the head is examined.
func (c *Composer) Confident(hits []retrieve.Hit) bool {
	if len(hits) == 0 {
		return false
	}
	best := hits[0]
	switch best.Kind {
	case retrieve.ScoreBM25:
		return best.Score > c.cfg.MinBM25
	default:
		return best.Score <= c.cfg.MaxDistance
	}
}

func groundingBlock(hits []retrieve.Hit) string {
	texts := make([]string, 0, len(hits))
	for _, h := range hits {
		if t := strings.TrimSpace(h.Chunk.Text); t != "" {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, chunkSeparator)
}

func userPrompt(query, grounding, sessionContext string) string {
	var b strings.Builder
	if sessionContext != "" {
		b.WriteString(sessionContext)
		b.WriteString("\n\n")
	}
	b.WriteString("Given the CONTEXT below, answer the QUESTION concisely.\n\n")
	b.WriteString("CONTEXT:\n")
	b.WriteString(grounding)
	b.WriteString("\n\nQUESTION: ")
	b.WriteString(query)
	b.WriteString("\nANSWER:")
	return b.String()
}
