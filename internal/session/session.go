// Package session keeps per-session conversation history bounded. Old turns
// are condensed into a rolling summary instead of growing the prompt without
// limit. State lives in process memory and is lost on restart by design.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Turn is one question/answer exchange. Append-only within a session.
type Turn struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	At       time.Time `json:"at"`
}

// State is the full memory of one session.
type State struct {
	ID      string `json:"id"`
	Turns   []Turn `json:"turns"`
	Summary string `json:"summary,omitempty"`
}

// DefaultKeep is the number of turns retained verbatim before compaction.
const DefaultKeep = 5

// Store holds all session states, keyed by session id. Mutations on one
// session serialize on that session's own lock; distinct sessions never
// contend beyond the map lookup.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	keep     int
}

type entry struct {
	mu    sync.Mutex
	state State
}

// NewStore creates an empty session store. keep <= 0 selects DefaultKeep.
func NewStore(keep int) *Store {
	if keep <= 0 {
		keep = DefaultKeep
	}
	return &Store{sessions: make(map[string]*entry), keep: keep}
}

// Resolve returns the session id to use for a request, minting a fresh one
// when the caller supplied none.
func (s *Store) Resolve(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

// Get returns a snapshot of the session's state. Unknown ids yield a fresh
// empty state carrying that id; nothing is persisted until the first append,
// so repeated Gets without an intervening append are identical.
func (s *Store) Get(id string) State {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return State{ID: id}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.snapshot()
}

// Append records a turn and compacts when the retained window overflows:
// turns beyond the newest keep are condensed oldest-first into the summary
// and dropped from the verbatim list. Deterministic for a given turn
// sequence. The summary is advisory grounding context only; it never feeds
// the citation set.
func (s *Store) Append(id string, turn Turn) State {
	e := s.entry(id)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.Turns = append(e.state.Turns, turn)
	if overflow := len(e.state.Turns) - s.keep; overflow > 0 {
		var b strings.Builder
		b.WriteString(e.state.Summary)
		for _, old := range e.state.Turns[:overflow] {
			b.WriteString("Q: ")
			b.WriteString(old.Question)
			b.WriteString(" A: ")
			b.WriteString(condense(old.Answer))
			b.WriteString("\n")
		}
		e.state.Summary = b.String()
		e.state.Turns = append([]Turn(nil), e.state.Turns[overflow:]...)
	}

	return e.state.snapshot()
}

// Context renders the session's memory as a grounding preamble: the rolling
// summary first, then the retained turns verbatim.
func (s *Store) Context(id string) string {
	st := s.Get(id)

	var b strings.Builder
	if st.Summary != "" {
		b.WriteString("Conversation summary:\n")
		b.WriteString(st.Summary)
		b.WriteString("\n")
	}
	if len(st.Turns) > 0 {
		b.WriteString("Recent turns:\n")
		for _, t := range st.Turns {
			b.WriteString("Q: ")
			b.WriteString(t.Question)
			b.WriteString("\nA: ")
			b.WriteString(t.Answer)
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(b.String())
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) entry(id string) *entry {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.sessions[id]; ok {
		return e
	}
	e = &entry{state: State{ID: id}}
	s.sessions[id] = e
	return e
}

func (st State) snapshot() State {
	out := State{ID: st.ID, Summary: st.Summary}
	out.Turns = append([]Turn(nil), st.Turns...)
	return out
}
