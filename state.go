package busloop

import (
	"sync/atomic"
)

// State is the loop lifecycle state.
//
// State machine:
//
//	StateIdle (0) → StateRunning (1)        [Run]
//	StateRunning (1) → StateQuitting (2)    [termination observed at end of iteration]
//	StateIdle (0) → StateQuitting (2)       [Shutdown before Run]
//	StateQuitting (2) → StateTerminated (3) [Run exit / Shutdown cleanup]
//	StateTerminated (3) → (terminal)
//
// Running and Quitting are the two loop-relevant states; Idle and
// Terminated bracket them so a library caller can observe the lifecycle
// safely from any goroutine.
type State uint64

const (
	// StateIdle indicates the loop has been created but not started.
	StateIdle State = iota
	// StateRunning indicates the loop is iterating (or blocked in poll).
	StateRunning
	// StateQuitting indicates termination was observed; the loop is
	// finishing its final iteration or being torn down.
	StateQuitting
	// StateTerminated indicates Run has returned and the wake channel is
	// closed. Terminal.
	StateTerminated
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateQuitting:
		return "Quitting"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// fastState is a lock-free state cell with cache-line padding so the hot
// Load in the iteration body never false-shares with neighbouring fields.
type fastState struct { // betteralign:ignore
	_ [sizeOfCacheLine]byte                      //nolint:unused
	v atomic.Uint64                              // State value
	_ [sizeOfCacheLine - sizeOfAtomicUint64]byte //nolint:unused
}

// Load returns the current state atomically.
func (s *fastState) Load() State {
	return State(s.v.Load())
}

// Store atomically stores a new state. Reserved for irreversible
// transitions (Terminated); reversible ones go through TryTransition.
func (s *fastState) Store(state State) {
	s.v.Store(uint64(state))
}

// TryTransition attempts to atomically transition from one state to
// another. Returns true when the transition happened.
func (s *fastState) TryTransition(from, to State) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// IsTerminal returns true when the state is Terminated.
func (s *fastState) IsTerminal() bool {
	return s.Load() == StateTerminated
}
