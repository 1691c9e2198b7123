package busloop

import "testing"

func TestState_String(t *testing.T) {
	for _, tc := range []struct {
		state State
		want  string
	}{
		{StateIdle, "Idle"},
		{StateRunning, "Running"},
		{StateQuitting, "Quitting"},
		{StateTerminated, "Terminated"},
		{State(99), "Unknown"},
	} {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("State(%d).String() = %q, want %q", uint64(tc.state), got, tc.want)
		}
	}
}

func TestFastState_Transitions(t *testing.T) {
	var s fastState

	if got := s.Load(); got != StateIdle {
		t.Fatalf("zero value state = %v, want %v", got, StateIdle)
	}
	if s.IsTerminal() {
		t.Fatal("idle state reported terminal")
	}

	if !s.TryTransition(StateIdle, StateRunning) {
		t.Fatal("Idle -> Running transition failed")
	}
	if s.TryTransition(StateIdle, StateRunning) {
		t.Fatal("Idle -> Running transition succeeded twice")
	}
	if got := s.Load(); got != StateRunning {
		t.Fatalf("state = %v, want %v", got, StateRunning)
	}

	// Wrong-from CAS must not disturb the current state.
	if s.TryTransition(StateQuitting, StateTerminated) {
		t.Fatal("transition from wrong state succeeded")
	}
	if got := s.Load(); got != StateRunning {
		t.Fatalf("state disturbed by failed transition: %v", got)
	}

	if !s.TryTransition(StateRunning, StateQuitting) {
		t.Fatal("Running -> Quitting transition failed")
	}

	s.Store(StateTerminated)
	if !s.IsTerminal() {
		t.Fatal("terminated state not reported terminal")
	}
}
