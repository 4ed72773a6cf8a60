// Package status holds the sign-in state machine of a tab.
package status

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/qchat/internal/bus"
)

// State is a tab's sign-in state.
type State string

const (
	Booting      State = "BOOTING"
	SignedOut    State = "SIGNED_OUT"
	AwaitingCode State = "AWAITING_CODE"
	SignedIn     State = "SIGNED_IN"
	Closed       State = "CLOSED"
	Error        State = "ERROR"
)

// KindStatusChanged is the bus kind suffix for transitions.
const KindStatusChanged = "status_changed"

// ErrInvalidTransition is wrapped by Transition when the move is not allowed.
var ErrInvalidTransition = errors.New("invalid transition")

// AwaitingCode may repeat: sending a new code keeps the tab waiting.
var edges = map[State][]State{
	Booting:      {SignedOut, SignedIn, Error, Closed},
	SignedOut:    {AwaitingCode, Closed},
	AwaitingCode: {AwaitingCode, SignedIn, SignedOut, Closed},
	SignedIn:     {SignedOut, Closed},
	Error:        {Booting, Closed},
}

// Allowed reports whether from may move to to.
func Allowed(from, to State) bool {
	return slices.Contains(edges[from], to)
}

// StatusChange is the payload of a status_changed event.
type StatusChange struct {
	From State
	To   State
}

// Machine tracks one tab's state and announces every transition on the bus.
type Machine struct {
	mu      sync.Mutex
	current State
	bus     *bus.Bus
	kind    string
	tab     string
}

// NewMachine returns a machine for tab in Booting. b may be nil.
func NewMachine(b *bus.Bus, tab string) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
		kind:    "tab." + tab + "." + KindStatusChanged,
		tab:     tab,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Transition moves to to, or returns an error wrapping ErrInvalidTransition.
// Events are published under the lock so subscribers see transitions in order.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.current
	if !Allowed(from, to) {
		return fmt.Errorf("%w from %s to %s", ErrInvalidTransition, from, to)
	}
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:    m.kind,
			Origin:  m.tab,
			Payload: StatusChange{From: from, To: to},
		})
	}
	return nil
}
