package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type stubProvider struct {
	name  string
	reply string
	err   error
	calls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Complete(ctx context.Context, prompt *Prompt, _ *RequestOptions) (*Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &Response{Content: s.reply, Model: s.name}, nil
}

func (s *stubProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("not supported")
}

func TestNewChain_SkipsNilProviders(t *testing.T) {
	p := &stubProvider{name: "p", reply: "hi"}
	c := NewChain([]Provider{nil, p, nil}, 0)
	if c.Len() != 1 {
		t.Fatalf("expected 1 provider, got %d", c.Len())
	}
}

func TestChain_Generate_FirstProviderWins(t *testing.T) {
	first := &stubProvider{name: "first", reply: "from first"}
	second := &stubProvider{name: "second", reply: "from second"}
	c := NewChain([]Provider{first, second}, time.Second)

	text, name, err := c.Generate(context.Background(), UserPrompt("sys", "user"), nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "from first" || name != "first" {
		t.Fatalf("expected first provider's answer, got %q from %q", text, name)
	}
	if second.calls != 0 {
		t.Fatal("second provider must not be consulted when the first succeeds")
	}
}

func TestChain_Generate_AdvancesOnError(t *testing.T) {
	broken := &stubProvider{name: "broken", err: &ProviderError{Provider: "broken", Kind: ErrUnavailable}}
	backup := &stubProvider{name: "backup", reply: "from backup"}
	c := NewChain([]Provider{broken, backup}, time.Second)

	text, name, err := c.Generate(context.Background(), UserPrompt("sys", "user"), nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "from backup" || name != "backup" {
		t.Fatalf("expected fallback answer, got %q from %q", text, name)
	}
	if broken.calls != 1 {
		t.Fatalf("expected broken provider tried once, got %d", broken.calls)
	}
}

func TestChain_Generate_AdvancesOnTimeout(t *testing.T) {
	// A timed-out member wraps context.DeadlineExceeded; the chain treats it
	// like any other provider failure and keeps going.
	slow := &stubProvider{name: "slow", err: &ProviderError{
		Provider: "slow",
		Kind:     ErrTimeout,
		Err:      fmt.Errorf("request: %w", context.DeadlineExceeded),
	}}
	backup := &stubProvider{name: "backup", reply: "from backup"}
	c := NewChain([]Provider{slow, backup}, time.Second)

	text, name, err := c.Generate(context.Background(), UserPrompt("sys", "user"), nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "from backup" || name != "backup" {
		t.Fatalf("timeout must advance the chain, got %q from %q", text, name)
	}
}

func TestChain_Generate_AdvancesOnEmptyOutput(t *testing.T) {
	empty := &stubProvider{name: "empty", reply: "   \n"}
	backup := &stubProvider{name: "backup", reply: "real text"}
	c := NewChain([]Provider{empty, backup}, time.Second)

	text, name, err := c.Generate(context.Background(), UserPrompt("sys", "user"), nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "real text" || name != "backup" {
		t.Fatalf("blank output must advance the chain, got %q from %q", text, name)
	}
}

func TestChain_Generate_Exhausted(t *testing.T) {
	a := &stubProvider{name: "a", err: &ProviderError{Provider: "a", Kind: ErrAuth}}
	b := &stubProvider{name: "b", err: &ProviderError{Provider: "b", Kind: ErrQuota}}
	c := NewChain([]Provider{a, b}, time.Second)

	_, _, err := c.Generate(context.Background(), UserPrompt("sys", "user"), nil)
	if !errors.Is(err, ErrChainExhausted) {
		t.Fatalf("expected ErrChainExhausted, got %v", err)
	}
}

func TestChain_Generate_EmptyChain(t *testing.T) {
	c := NewChain(nil, 0)
	_, _, err := c.Generate(context.Background(), UserPrompt("sys", "user"), nil)
	if !errors.Is(err, ErrChainExhausted) {
		t.Fatalf("expected ErrChainExhausted for empty chain, got %v", err)
	}
}

func TestChain_Generate_CancelledContext(t *testing.T) {
	p := &stubProvider{name: "p", reply: "unused"}
	c := NewChain([]Provider{p}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := c.Generate(ctx, UserPrompt("sys", "user"), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestChain_Generate_StripsThinkingTags(t *testing.T) {
	p := &stubProvider{name: "p", reply: "<think>internal musings</think>The answer."}
	c := NewChain([]Provider{p}, time.Second)

	text, _, err := c.Generate(context.Background(), UserPrompt("sys", "user"), nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "The answer." {
		t.Fatalf("expected reasoning stripped, got %q", text)
	}
}
