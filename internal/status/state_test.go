package status

import "testing"

func TestHappyPathTransitions(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Idle {
		t.Fatalf("initial state = %s, want %s", m.Current(), Idle)
	}

	for _, to := range []State{Connecting, OpenUnacknowledged, Ready, Closing, Idle} {
		if err := m.Transition(to); err != nil {
			t.Fatalf("Transition(%s) error = %v", to, err)
		}
		if m.Current() != to {
			t.Fatalf("state = %s, want %s", m.Current(), to)
		}
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Ready); err == nil {
		t.Error("Transition(Idle->Ready) expected error")
	}
	if m.Current() != Idle {
		t.Errorf("state = %s, want %s after rejected transition", m.Current(), Idle)
	}
}

func TestEpochBumpsOnConnecting(t *testing.T) {
	m := NewMachine(nil)
	if m.Epoch() != 0 {
		t.Fatalf("initial epoch = %d, want 0", m.Epoch())
	}

	mustTransition(t, m, Connecting)
	if m.Epoch() != 1 {
		t.Errorf("epoch = %d, want 1", m.Epoch())
	}

	mustTransition(t, m, OpenUnacknowledged)
	mustTransition(t, m, Ready)
	if m.Epoch() != 1 {
		t.Errorf("epoch = %d, want 1 (only Connecting bumps)", m.Epoch())
	}

	m.Reset()
	mustTransition(t, m, Connecting)
	if m.Epoch() != 2 {
		t.Errorf("epoch = %d, want 2 after reconnect", m.Epoch())
	}
}

func TestResetFromAnywhere(t *testing.T) {
	m := NewMachine(nil)
	mustTransition(t, m, Connecting)
	mustTransition(t, m, OpenUnacknowledged)

	m.Reset()
	if m.Current() != Idle {
		t.Errorf("state = %s, want %s after Reset", m.Current(), Idle)
	}
}

func TestIs(t *testing.T) {
	m := NewMachine(nil)
	mustTransition(t, m, Connecting)

	if !m.Is(Connecting, OpenUnacknowledged, Ready) {
		t.Error("Is() = false, want true for Connecting")
	}
	if m.Is(Idle, Ready) {
		t.Error("Is() = true, want false")
	}
}

func mustTransition(t *testing.T, m *Machine, to State) {
	t.Helper()
	if err := m.Transition(to); err != nil {
		t.Fatalf("Transition(%s) error = %v", to, err)
	}
}
