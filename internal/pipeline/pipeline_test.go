package pipeline

import (
	"context"
	"testing"

	"github.com/docquery/docquery/internal/answer"
	"github.com/docquery/docquery/internal/embed/hashing"
	"github.com/docquery/docquery/internal/llm"
	"github.com/docquery/docquery/internal/retrieve"
	"github.com/docquery/docquery/internal/session"
	"github.com/docquery/docquery/internal/store"
	"github.com/docquery/docquery/internal/store/memory"
)

// newTestPipeline builds a fully offline pipeline: hashing embedder,
// in-memory store, no providers configured.
func newTestPipeline(t *testing.T, chunks []store.Chunk, opts Options) (*Pipeline, *session.Store) {
	t.Helper()
	em := hashing.New(256)
	st := memory.New()

	for i := range chunks {
		if chunks[i].Embedding == nil {
			vec, err := em.Embed(context.Background(), chunks[i].Text)
			if err != nil {
				t.Fatalf("embed: %v", err)
			}
			chunks[i].Embedding = vec
		}
	}
	if len(chunks) > 0 {
		if err := st.Upsert(context.Background(), chunks); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	retriever := retrieve.New(st, em, retrieve.Config{})
	composer := answer.New(llm.NewChain(nil, 0), answer.DefaultConfig())
	sessions := session.NewStore(0)

	p, err := New(retriever, composer, sessions, opts)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	return p, sessions
}

func TestPipeline_Answer_ExtractiveEndToEnd(t *testing.T) {
	chunks := []store.Chunk{{
		ID:         "dummy:0",
		Text:       "Ready Tensor teaches RAG.",
		SourcePath: "data/dummy.md",
	}}
	p, _ := newTestPipeline(t, chunks, Options{Mode: retrieve.ModeKNN, TopK: 1})

	res, err := p.Answer(context.Background(), "What is this project?", "")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}

	if res.Answer != "Ready Tensor teaches RAG." {
		t.Fatalf("expected extractive answer, got %q", res.Answer)
	}
	if len(res.Sources) != 1 || res.Sources[0] != "data/dummy.md" {
		t.Fatalf("expected sources [data/dummy.md], got %v", res.Sources)
	}
	if res.SessionID == "" {
		t.Fatal("expected a minted session id")
	}
}

func TestPipeline_Answer_EmptyStoreAllModes(t *testing.T) {
	for _, mode := range []retrieve.Mode{retrieve.ModeKNN, retrieve.ModeMMR, retrieve.ModeBM25} {
		p, _ := newTestPipeline(t, nil, Options{Mode: mode, TopK: 2})

		res, err := p.Answer(context.Background(), "anything at all?", "")
		if err != nil {
			t.Fatalf("mode %s: %v", mode, err)
		}
		if res.Answer != answer.NoAnswerText {
			t.Fatalf("mode %s: expected no-answer text, got %q", mode, res.Answer)
		}
		if len(res.Sources) != 0 || len(res.SourcesScored) != 0 {
			t.Fatalf("mode %s: refusals must cite nothing, got %v", mode, res.Sources)
		}
	}
}

func TestPipeline_Answer_SourcesPairwiseMatch(t *testing.T) {
	chunks := []store.Chunk{
		{ID: "a:0", Text: "alpha beta gamma", SourcePath: "data/a.md"},
		{ID: "b:0", Text: "alpha beta delta", SourcePath: "data/b.md"},
		{ID: "c:0", Text: "unrelated entirely", SourcePath: "data/c.md"},
	}
	p, _ := newTestPipeline(t, chunks, Options{Mode: retrieve.ModeKNN, TopK: 3})

	res, err := p.Answer(context.Background(), "alpha beta", "")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if len(res.Sources) != len(res.SourcesScored) {
		t.Fatalf("length mismatch: %d sources, %d scored", len(res.Sources), len(res.SourcesScored))
	}
	for i := range res.Sources {
		if res.Sources[i] != res.SourcesScored[i].SourcePath {
			t.Fatalf("position %d: %q != %q", i, res.Sources[i], res.SourcesScored[i].SourcePath)
		}
	}
}

func TestPipeline_Answer_DeduplicatesSources(t *testing.T) {
	chunks := []store.Chunk{
		{ID: "doc:0", Text: "alpha beta gamma", SourcePath: "data/doc.md"},
		{ID: "doc:1", Text: "alpha beta delta", SourcePath: "data/doc.md"},
	}
	p, _ := newTestPipeline(t, chunks, Options{Mode: retrieve.ModeKNN, TopK: 2})

	res, err := p.Answer(context.Background(), "alpha beta", "")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if len(res.Sources) != 1 {
		t.Fatalf("expected deduplicated sources, got %v", res.Sources)
	}
	if res.Sources[0] != "data/doc.md" {
		t.Fatalf("unexpected source %q", res.Sources[0])
	}
}

func TestPipeline_Answer_RecordsTurn(t *testing.T) {
	chunks := []store.Chunk{{ID: "a:0", Text: "alpha beta", SourcePath: "data/a.md"}}
	p, sessions := newTestPipeline(t, chunks, Options{Mode: retrieve.ModeKNN, TopK: 1})

	res, err := p.Answer(context.Background(), "alpha?", "sess-1")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if res.SessionID != "sess-1" {
		t.Fatalf("expected caller's session id, got %q", res.SessionID)
	}

	st := sessions.Get("sess-1")
	if len(st.Turns) != 1 {
		t.Fatalf("expected one recorded turn, got %d", len(st.Turns))
	}
	if st.Turns[0].Question != "alpha?" || st.Turns[0].Answer != res.Answer {
		t.Fatalf("recorded turn mismatch: %+v", st.Turns[0])
	}
}

func TestPipeline_Answer_RefusalRecordedToo(t *testing.T) {
	p, sessions := newTestPipeline(t, nil, Options{Mode: retrieve.ModeKNN, TopK: 1})

	if _, err := p.Answer(context.Background(), "unanswerable?", "sess-2"); err != nil {
		t.Fatalf("answer: %v", err)
	}

	st := sessions.Get("sess-2")
	if len(st.Turns) != 1 {
		t.Fatalf("expected refusal recorded as a turn, got %d turns", len(st.Turns))
	}
	if st.Turns[0].Answer != answer.NoAnswerText {
		t.Fatalf("expected refusal answer recorded, got %q", st.Turns[0].Answer)
	}
}

func TestPipeline_Answer_ConversationCarriesAcrossTurns(t *testing.T) {
	chunks := []store.Chunk{{ID: "a:0", Text: "alpha beta", SourcePath: "data/a.md"}}
	p, sessions := newTestPipeline(t, chunks, Options{Mode: retrieve.ModeKNN, TopK: 1})

	for i := 0; i < 3; i++ {
		if _, err := p.Answer(context.Background(), "alpha?", "sess-3"); err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
	}
	if got := len(sessions.Get("sess-3").Turns); got != 3 {
		t.Fatalf("expected 3 turns, got %d", got)
	}
}

func TestNew_UnknownModeFailsFast(t *testing.T) {
	em := hashing.New(256)
	st := memory.New()
	retriever := retrieve.New(st, em, retrieve.Config{})
	composer := answer.New(llm.NewChain(nil, 0), answer.DefaultConfig())

	_, err := New(retriever, composer, session.NewStore(0), Options{Mode: retrieve.Mode("cosine")})
	if err == nil {
		t.Fatal("expected error for unknown retrieval mode")
	}
}

func TestPipeline_Answer_ExactWordCount(t *testing.T) {
	long := "one two three four five six seven eight nine ten eleven twelve thirteen fourteen"
	chunks := []store.Chunk{{ID: "a:0", Text: long, SourcePath: "data/a.md"}}
	p, _ := newTestPipeline(t, chunks, Options{Mode: retrieve.ModeKNN, TopK: 1, ExactWords: 5})

	res, err := p.Answer(context.Background(), "one two three", "")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if res.Answer != "one two three four five" {
		t.Fatalf("expected 5-word truncation, got %q", res.Answer)
	}
}
