package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/lucasreis/chatsync/internal/bus"
)

// State represents a connection lifecycle state.
type State string

const (
	// Idle means no transport handle exists.
	Idle State = "IDLE"
	// Connecting means a dial is in progress.
	Connecting State = "CONNECTING"
	// OpenUnacknowledged means the transport is open and identification
	// was sent, but the service has not confirmed the session yet.
	OpenUnacknowledged State = "OPEN_UNACKED"
	// Ready means the service confirmed the session. Content frames are
	// sent only in this state.
	Ready State = "READY"
	// Closing means a graceful close was requested.
	Closing State = "CLOSING"
)

// validTransitions defines allowed state transitions. Every non-idle
// state can fall back to Idle: teardown resets the machine from
// anywhere.
var validTransitions = map[State][]State{
	Idle:               {Connecting},
	Connecting:         {OpenUnacknowledged, Closing, Idle},
	OpenUnacknowledged: {Ready, Closing, Idle},
	Ready:              {Closing, Idle},
	Closing:            {Idle},
}

// Machine tracks and enforces connection state transitions. It is the
// single synchronously updated holder of the connection state: the
// submission fast path and the asynchronous frame handlers all read
// the same value, with no caching layer in between.
//
// The machine also owns the connection epoch, a counter bumped on
// every transition into Connecting. Asynchronous results (history
// fetches) capture the epoch they started under and are discarded if
// the machine has moved on.
type Machine struct {
	mu      sync.RWMutex
	current State
	epoch   uint64
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Idle.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Idle,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Epoch returns the current connection epoch.
func (m *Machine) Epoch() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.epoch
}

// Is reports whether the current state is one of the given states.
func (m *Machine) Is(states ...State) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Contains(states, m.current)
}

// Transition attempts to move to a new state. Returns an error if the
// transition is not allowed from the current state.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		from := m.current
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	from := m.current
	m.current = to
	if to == Connecting {
		m.epoch++
	}
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Emit(bus.KindStateChanged, StateChange{From: from, To: to})
	}
	return nil
}

// Reset forces the machine back to Idle regardless of the current
// state. Used by teardown, which must succeed from anywhere.
func (m *Machine) Reset() {
	m.mu.Lock()
	from := m.current
	m.current = Idle
	m.mu.Unlock()

	if m.bus != nil && from != Idle {
		m.bus.Emit(bus.KindStateChanged, StateChange{From: from, To: Idle})
	}
}

// StateChange is the payload for state change events.
type StateChange struct {
	From State
	To   State
}
