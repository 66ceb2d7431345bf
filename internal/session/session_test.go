package session

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func turn(i int) Turn {
	return Turn{
		Question: fmt.Sprintf("question %d?", i),
		Answer:   fmt.Sprintf("Answer number %d. Some trailing detail.", i),
		At:       time.Now(),
	}
}

func TestStore_Resolve(t *testing.T) {
	s := NewStore(0)

	if got := s.Resolve("abc"); got != "abc" {
		t.Fatalf("expected existing id back, got %s", got)
	}

	minted := s.Resolve("")
	if minted == "" {
		t.Fatal("expected a minted id for empty input")
	}
	if again := s.Resolve(""); again == minted {
		t.Fatal("expected a fresh id per empty resolve")
	}
}

func TestStore_Get_UnknownIDIdempotent(t *testing.T) {
	s := NewStore(0)

	first := s.Get("ghost")
	second := s.Get("ghost")

	if first.ID != "ghost" || second.ID != "ghost" {
		t.Fatalf("expected id carried through, got %q and %q", first.ID, second.ID)
	}
	if len(first.Turns) != 0 || len(second.Turns) != 0 {
		t.Fatal("expected empty states for unknown id")
	}
	// Lookups must not persist anything.
	if s.Len() != 0 {
		t.Fatalf("expected no sessions after gets, got %d", s.Len())
	}
}

func TestStore_Append_NoCompactionUnderKeep(t *testing.T) {
	s := NewStore(5)

	var st State
	for i := 0; i < 5; i++ {
		st = s.Append("s1", turn(i))
	}

	if len(st.Turns) != 5 {
		t.Fatalf("expected 5 turns, got %d", len(st.Turns))
	}
	if st.Summary != "" {
		t.Fatalf("expected no summary yet, got %q", st.Summary)
	}
}

func TestStore_Append_CompactsOverflow(t *testing.T) {
	s := NewStore(5)

	var st State
	for i := 0; i < 6; i++ {
		st = s.Append("s1", turn(i))
	}

	if len(st.Turns) != 5 {
		t.Fatalf("expected 5 retained turns, got %d", len(st.Turns))
	}
	if st.Summary == "" {
		t.Fatal("expected non-empty summary after compaction")
	}
	// Oldest turn went into the summary, newest stayed verbatim.
	if !strings.Contains(st.Summary, "question 0?") {
		t.Fatalf("summary missing oldest question: %q", st.Summary)
	}
	if st.Turns[0].Question != "question 1?" {
		t.Fatalf("expected oldest retained turn to be question 1, got %q", st.Turns[0].Question)
	}
	if st.Turns[4].Question != "question 5?" {
		t.Fatalf("expected newest turn retained, got %q", st.Turns[4].Question)
	}
}

func TestStore_Append_SummaryAccumulates(t *testing.T) {
	s := NewStore(2)

	var st State
	for i := 0; i < 6; i++ {
		st = s.Append("s1", turn(i))
	}

	if len(st.Turns) != 2 {
		t.Fatalf("expected 2 retained turns, got %d", len(st.Turns))
	}
	for i := 0; i < 4; i++ {
		want := fmt.Sprintf("question %d?", i)
		if !strings.Contains(st.Summary, want) {
			t.Fatalf("summary missing %q: %q", want, st.Summary)
		}
	}
}

func TestStore_Append_Deterministic(t *testing.T) {
	run := func() State {
		s := NewStore(3)
		var st State
		for i := 0; i < 7; i++ {
			st = s.Append("s1", Turn{Question: fmt.Sprintf("q%d", i), Answer: fmt.Sprintf("a%d.", i)})
		}
		return st
	}

	a, b := run(), run()
	if a.Summary != b.Summary {
		t.Fatalf("summaries differ across identical runs:\n%q\n%q", a.Summary, b.Summary)
	}
	if len(a.Turns) != len(b.Turns) {
		t.Fatalf("turn counts differ: %d vs %d", len(a.Turns), len(b.Turns))
	}
}

func TestStore_Context(t *testing.T) {
	s := NewStore(5)

	if got := s.Context("empty"); got != "" {
		t.Fatalf("expected empty context for fresh session, got %q", got)
	}

	s.Append("s1", Turn{Question: "What is X?", Answer: "X is a thing."})
	ctx := s.Context("s1")
	if !strings.Contains(ctx, "Recent turns:") {
		t.Fatalf("context missing turns header: %q", ctx)
	}
	if !strings.Contains(ctx, "Q: What is X?") || !strings.Contains(ctx, "A: X is a thing.") {
		t.Fatalf("context missing turn content: %q", ctx)
	}

	// Push past the window so a summary section shows up too.
	for i := 0; i < 6; i++ {
		s.Append("s1", turn(i))
	}
	ctx = s.Context("s1")
	if !strings.Contains(ctx, "Conversation summary:") {
		t.Fatalf("context missing summary header: %q", ctx)
	}
}

func TestStore_ConcurrentAppendsSameSession(t *testing.T) {
	s := NewStore(5)

	const goroutines = 8
	const perGoroutine = 20

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				s.Append("shared", Turn{
					Question: fmt.Sprintf("g%d q%d", g, i),
					Answer:   "An answer.",
				})
			}
		}(g)
	}
	wg.Wait()

	st := s.Get("shared")
	if len(st.Turns) != 5 {
		t.Fatalf("expected exactly 5 retained turns, got %d", len(st.Turns))
	}
	// Every appended turn either survived verbatim or was folded into the
	// summary; none may be lost.
	total := len(st.Turns) + strings.Count(st.Summary, "Q: ")
	if total != goroutines*perGoroutine {
		t.Fatalf("lost updates: %d turns accounted for, want %d", total, goroutines*perGoroutine)
	}
}

func TestStore_DistinctSessionsIsolated(t *testing.T) {
	s := NewStore(5)

	s.Append("a", Turn{Question: "qa", Answer: "aa."})
	s.Append("b", Turn{Question: "qb", Answer: "ab."})

	if got := s.Get("a").Turns[0].Question; got != "qa" {
		t.Fatalf("session a polluted: %q", got)
	}
	if got := s.Get("b").Turns[0].Question; got != "qb" {
		t.Fatalf("session b polluted: %q", got)
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", s.Len())
	}
}

func TestStore_SnapshotIsolation(t *testing.T) {
	s := NewStore(5)
	s.Append("s1", Turn{Question: "q", Answer: "a."})

	st := s.Get("s1")
	st.Turns[0].Question = "mutated"

	if got := s.Get("s1").Turns[0].Question; got != "q" {
		t.Fatalf("snapshot mutation leaked into store: %q", got)
	}
}

func TestCondense(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"Short answer.", "Short answer."},
		{"First sentence here. Second sentence ignored.", "First sentence here."},
		{"No terminal punctuation at all", "No terminal punctuation at all"},
	}
	for _, tt := range tests {
		if got := condense(tt.in); got != tt.want {
			t.Fatalf("condense(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCondense_WordCap(t *testing.T) {
	long := strings.Repeat("word ", 40) + "end."
	got := condense(long)
	if n := len(strings.Fields(got)); n > condenseMaxWords+1 {
		t.Fatalf("condensed answer has %d words, cap is %d", n, condenseMaxWords)
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("expected ellipsis on truncated summary, got %q", got)
	}
}
