package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/remedygo/remedyd/internal/bus"
)

// State represents the daemon's connectivity to the hosted backend.
type State string

const (
	Booting      State = "BOOTING"
	SignedOut    State = "SIGNED_OUT"
	Connecting   State = "CONNECTING"
	Live         State = "LIVE"
	Offline      State = "OFFLINE"
	Reconnecting State = "RECONNECTING"
	Error        State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:      {SignedOut, Connecting, Error},
	SignedOut:    {Connecting, Error},
	Connecting:   {Live, SignedOut, Offline, Error},
	Live:         {Offline, Reconnecting, SignedOut, Error},
	Offline:      {Connecting, Reconnecting, SignedOut, Error},
	Reconnecting: {Connecting, Live, Offline, SignedOut, Error},
	Error:        {Booting},
}

// Machine tracks and enforces connectivity state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Online reports whether the device currently has a live backend connection.
// The analytics emitter consults this before attempting a remote write.
func (m *Machine) Online() bool {
	return m.Current() == Live
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      "connectivity.changed",
			Timestamp: time.Now(),
			Payload: Change{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// Change is the payload for connectivity change events.
type Change struct {
	From State
	To   State
}
