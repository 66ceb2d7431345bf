package embed

import (
	"context"
	"errors"
	"testing"

	"github.com/docquery/docquery/internal/llm"
)

type embedStub struct {
	vecs [][]float32
	err  error
}

func (s *embedStub) Complete(ctx context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	return nil, errors.New("not implemented")
}

func (s *embedStub) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vecs, nil
}

func (s *embedStub) Name() string { return "stub" }

func TestNewProviderEmbedder_Validation(t *testing.T) {
	if _, err := NewProviderEmbedder(nil, 4); err == nil {
		t.Fatal("expected error for nil provider")
	}
	if _, err := NewProviderEmbedder(&embedStub{}, 0); err == nil {
		t.Fatal("expected error for zero dimension")
	}
	if _, err := NewProviderEmbedder(&embedStub{}, -1); err == nil {
		t.Fatal("expected error for negative dimension")
	}
}

func TestProviderEmbedder_Embed(t *testing.T) {
	stub := &embedStub{vecs: [][]float32{{0.1, 0.2, 0.3, 0.4}}}
	e, err := NewProviderEmbedder(stub, 4)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if e.Dimension() != 4 {
		t.Fatalf("expected dimension 4, got %d", e.Dimension())
	}
	if e.Name() != "stub" {
		t.Fatalf("expected provider name passthrough, got %q", e.Name())
	}

	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 4 || vec[0] != 0.1 {
		t.Fatalf("unexpected vector %v", vec)
	}
}

func TestProviderEmbedder_Errors(t *testing.T) {
	t.Run("provider failure", func(t *testing.T) {
		e, _ := NewProviderEmbedder(&embedStub{err: errors.New("boom")}, 4)
		if _, err := e.Embed(context.Background(), "x"); err == nil {
			t.Fatal("expected wrapped provider error")
		}
	})

	t.Run("wrong vector count", func(t *testing.T) {
		e, _ := NewProviderEmbedder(&embedStub{vecs: [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}}, 4)
		if _, err := e.Embed(context.Background(), "x"); err == nil {
			t.Fatal("expected error for two vectors on one input")
		}
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		e, _ := NewProviderEmbedder(&embedStub{vecs: [][]float32{{1, 0}}}, 4)
		if _, err := e.Embed(context.Background(), "x"); err == nil {
			t.Fatal("expected error for 2-dim vector on 4-dim embedder")
		}
	})
}
