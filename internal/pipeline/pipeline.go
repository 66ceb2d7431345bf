// Package pipeline orchestrates a single question through retrieval, answer
// composition, and session memory. It owns the only total ordering of side
// effects in the system: retrieval completes before composition, and the
// session turn is recorded only after composition succeeds — though degraded
// and refusal answers are recorded too, since they remain part of the
// conversation.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/docquery/docquery/internal/answer"
	"github.com/docquery/docquery/internal/observability"
	"github.com/docquery/docquery/internal/retrieve"
	"github.com/docquery/docquery/internal/session"
)

const tracerName = "github.com/docquery/docquery"

// DefaultTopK bounds the retrieved hit count when unconfigured.
const DefaultTopK = 2

// ScoredSource is one citation with its retrieval score. Kind tells the
// caller how to read Score: cosine_distance is lower-is-better, bm25 is
// higher-is-better.
type ScoredSource struct {
	SourcePath string             `json:"source_path"`
	Page       int                `json:"page,omitempty"`
	Kind       retrieve.ScoreKind `json:"score_kind"`
	Score      float64            `json:"score"`
}

// Result is the full outcome of answering one question.
type Result struct {
	Answer        string         `json:"answer"`
	Sources       []string       `json:"sources"`
	SourcesScored []ScoredSource `json:"sources_scored"`
	SessionID     string         `json:"session_id"`
	Provider      string         `json:"provider,omitempty"`
}

// Options configure a pipeline's retrieval and output behavior.
type Options struct {
	Mode       retrieve.Mode
	TopK       int
	ExactWords int // 0 disables the exact-word-count output guard
}

// Pipeline wires the core components together. Construct one per process;
// it is safe for concurrent use.
type Pipeline struct {
	retriever *retrieve.Retriever
	composer  *answer.Composer
	sessions  *session.Store
	opts      Options
	tracer    trace.Tracer
}

// New creates a pipeline. The session store is passed in (not created here)
// so its lifecycle is explicit: made at process start, gone at process stop.
func New(r *retrieve.Retriever, c *answer.Composer, sessions *session.Store, opts Options) (*Pipeline, error) {
	if _, err := retrieve.ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	return &Pipeline{
		retriever: r,
		composer:  c,
		sessions:  sessions,
		opts:      opts,
		tracer:    otel.Tracer(tracerName),
	}, nil
}

// Answer resolves the session, retrieves evidence, composes the answer, and
// records the turn. sessionID may be empty; a fresh id is minted and
// returned in the result.
func (p *Pipeline) Answer(ctx context.Context, query, sessionID string) (Result, error) {
	ctx, span := observability.StartQuerySpan(ctx, string(p.opts.Mode), p.opts.TopK)
	defer span.End()
	start := time.Now()

	sid := p.sessions.Resolve(sessionID)

	hits, err := p.retrieve(ctx, query)
	if err != nil {
		return Result{}, err
	}
	span.SetAttributes(attribute.Int("retrieval.hits", len(hits)))

	composed, err := p.compose(ctx, query, hits, p.sessions.Context(sid))
	if err != nil {
		// Cancelled mid-composition: abandon without touching the session.
		return Result{}, err
	}
	span.SetAttributes(attribute.String("answer.provider", composed.Provider))

	p.sessions.Append(sid, session.Turn{Question: query, Answer: composed.Text, At: time.Now()})

	m := observability.Metrics()
	m.RecordQuery(time.Since(start), composed.Provider, !composed.Grounded)
	m.ActiveSessions.Set(float64(p.sessions.Len()))

	res := Result{
		Answer:        composed.Text,
		Sources:       []string{},
		SourcesScored: []ScoredSource{},
		SessionID:     sid,
		Provider:      composed.Provider,
	}
	if composed.Grounded {
		res.Sources, res.SourcesScored = citations(hits)
	}
	return res, nil
}

func (p *Pipeline) retrieve(ctx context.Context, query string) ([]retrieve.Hit, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.retrieve", trace.WithAttributes(
		attribute.String("docquery.span.kind", observability.SpanKindRetrieve),
	))
	defer span.End()

	hits, err := p.retriever.Select(ctx, query, p.opts.TopK, p.opts.Mode)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	return hits, nil
}

func (p *Pipeline) compose(ctx context.Context, query string, hits []retrieve.Hit, sessionContext string) (answer.Result, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.compose")
	defer span.End()

	return p.composer.Compose(ctx, query, hits, sessionContext, answer.Constraints{
		ExactWordCount: p.opts.ExactWords,
	})
}

// citations derives both source views from one hit sequence so they can
// never drift apart: same deduplication, same order, pairwise-equal paths.
func citations(hits []retrieve.Hit) ([]string, []ScoredSource) {
	sources := make([]string, 0, len(hits))
	scored := make([]ScoredSource, 0, len(hits))
	seen := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		// Deduplicate by source path; the first (best-ranked) occurrence
		// carries the score for that source.
		if _, ok := seen[h.Chunk.SourcePath]; ok {
			continue
		}
		seen[h.Chunk.SourcePath] = struct{}{}
		sources = append(sources, h.Chunk.SourcePath)
		scored = append(scored, ScoredSource{
			SourcePath: h.Chunk.SourcePath,
			Page:       h.Chunk.Page,
			Kind:       h.Kind,
			Score:      h.Score,
		})
	}
	return sources, scored
}
