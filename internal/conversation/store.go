package conversation

import (
	"sync"
	"time"
)

// DefaultWindow is the bounded history length used when none is configured.
const DefaultWindow = 10

// Turn is a single message recorded in a conversation history.
// Immutable once recorded.
type Turn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Store maps conversation ids to bounded in-memory histories. Entries
// materialize lazily on first use; an unseen id is an empty history, never
// an error. State lives for the process lifetime only.
//
// Histories for distinct ids are fully independent: mutations never
// contend across ids and never leak turns between them.
type Store struct {
	mu      sync.Mutex
	window  int
	entries map[string]*entry
}

type entry struct {
	turnMu sync.Mutex // serializes whole read-generate-persist turns, see Lock
	mu     sync.Mutex // guards turns
	turns  []Turn
}

// NewStore creates a Store with the given history window. Non-positive
// windows fall back to DefaultWindow.
func NewStore(window int) *Store {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Store{
		window:  window,
		entries: make(map[string]*entry),
	}
}

// Window returns the configured history window.
func (s *Store) Window() int {
	return s.window
}

// History returns a copy of the current history for id, or an empty
// history when the id has not been seen.
func (s *Store) History(id string) []Turn {
	e := s.entryFor(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyTurns(e.turns)
}

// AppendAndTrim appends turns to the identified history and evicts from
// the front until the window is respected. It returns the resulting
// history. This is the sole windowed mutator.
func (s *Store) AppendAndTrim(id string, turns ...Turn) []Turn {
	e := s.entryFor(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.turns = append(e.turns, turns...)
	if n := len(e.turns); n > s.window {
		trimmed := make([]Turn, s.window)
		copy(trimmed, e.turns[n-s.window:])
		e.turns = trimmed
	}
	return copyTurns(e.turns)
}

// Replace stores history wholesale for id without trimming. The session
// deployment mode delegates the growth bound to the backend's own
// session semantics, so no window applies here.
func (s *Store) Replace(id string, history []Turn) {
	e := s.entryFor(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.turns = copyTurns(history)
}

// Lock acquires the per-id turn lock and returns its release func. The
// orchestrator holds it across a whole read-generate-persist cycle so two
// concurrent turns for the same id cannot interleave; turns for different
// ids proceed without contention.
func (s *Store) Lock(id string) (unlock func()) {
	e := s.entryFor(id)
	e.turnMu.Lock()
	return e.turnMu.Unlock
}

func (s *Store) entryFor(id string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		e = &entry{}
		s.entries[id] = e
	}
	return e
}

func copyTurns(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}
