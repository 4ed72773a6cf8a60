package status

import (
	"errors"
	"testing"

	"github.com/matheus3301/qchat/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil, "main")
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want BOOTING", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Booting, SignedOut},
		{Booting, SignedIn},
		{Booting, Error},
		{SignedOut, AwaitingCode},
		{AwaitingCode, AwaitingCode},
		{AwaitingCode, SignedIn},
		{AwaitingCode, SignedOut},
		{SignedIn, SignedOut},
		{SignedIn, Closed},
		{Error, Booting},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil, "main")
			// Walk to the "from" state.
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil, "main")
	if err := m.Transition(AwaitingCode); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Transition(BOOTING -> AWAITING_CODE) err = %v, want ErrInvalidTransition", err)
	}
	if m.Current() != Booting {
		t.Errorf("state = %s after rejected transition, want BOOTING", m.Current())
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("tab.main.", 10)
	defer unsub()

	m := NewMachine(b, "main")
	if err := m.Transition(SignedOut); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != "tab.main.status_changed" {
		t.Errorf("event kind = %q, want tab.main.status_changed", evt.Kind)
	}
	if evt.Origin != "main" {
		t.Errorf("origin = %q, want main", evt.Origin)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Booting || change.To != SignedOut {
		t.Errorf("change = %v -> %v, want BOOTING -> SIGNED_OUT", change.From, change.To)
	}
}

// TestSignedOutCannotSkipCode verifies a signed-out tab must request a code
// before it can sign in.
func TestSignedOutCannotSkipCode(t *testing.T) {
	m := NewMachine(nil, "main")
	walkTo(t, m, SignedOut)

	if err := m.Transition(SignedIn); err == nil {
		t.Fatal("Transition(SIGNED_OUT -> SIGNED_IN) should fail; must go through AWAITING_CODE first")
	}
	if m.Current() != SignedOut {
		t.Errorf("state = %s, want SIGNED_OUT (should not have changed)", m.Current())
	}
}

// TestFirstLoginLifecycle simulates a fresh tab signing in and out:
// BOOTING → SIGNED_OUT → AWAITING_CODE → SIGNED_IN → SIGNED_OUT
func TestFirstLoginLifecycle(t *testing.T) {
	m := NewMachine(nil, "main")

	steps := []State{SignedOut, AwaitingCode, AwaitingCode, SignedIn, SignedOut}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != SignedOut {
		t.Errorf("final state = %s, want SIGNED_OUT", m.Current())
	}
}

// TestRestoredIdentityLifecycle covers a tab whose identity was persisted.
func TestRestoredIdentityLifecycle(t *testing.T) {
	m := NewMachine(nil, "main")
	for _, s := range []State{SignedIn, Closed} {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v", s, err)
		}
	}
	if err := m.Transition(Booting); err == nil {
		t.Error("CLOSED must be terminal")
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Booting:      {},
		SignedOut:    {SignedOut},
		AwaitingCode: {SignedOut, AwaitingCode},
		SignedIn:     {SignedIn},
		Error:        {Error},
		Closed:       {Closed},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}

func TestClosedIsTerminal(t *testing.T) {
	for _, to := range []State{Booting, SignedOut, AwaitingCode, SignedIn, Error, Closed} {
		if Allowed(Closed, to) {
			t.Errorf("Allowed(CLOSED, %s) = true", to)
		}
	}
}
