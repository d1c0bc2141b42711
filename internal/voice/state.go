package voice

import (
	"fmt"
	"sync"
)

// State is the lifecycle phase of a voice session.
type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateConnecting   State = "connecting"
	StateListening    State = "listening"
	StateSpeaking     State = "speaking"
	StateReconnecting State = "reconnecting"
	StateError        State = "error"
	StateClosed       State = "closed"
)

// validTransitions is the full lifecycle graph. Anything not listed here
// is a bug in the caller, not a condition to paper over.
var validTransitions = map[State][]State{
	StateIdle:         {StateInitializing},
	StateInitializing: {StateConnecting, StateError, StateClosed},
	StateConnecting:   {StateListening, StateReconnecting, StateError, StateClosed},
	StateListening:    {StateSpeaking, StateReconnecting, StateError, StateClosed},
	StateSpeaking:     {StateListening, StateReconnecting, StateError, StateClosed},
	StateReconnecting: {StateConnecting, StateError, StateClosed},
	StateError:        {StateIdle, StateClosed},
	StateClosed:       {StateIdle},
}

func canTransition(from, to State) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// machine guards state changes and notifies observers of each change.
type machine struct {
	mu       sync.Mutex
	cur      State
	onChange func(State)
}

func newMachine(onChange func(State)) *machine {
	return &machine{cur: StateIdle, onChange: onChange}
}

func (m *machine) state() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

// to moves the machine to next, rejecting moves the lifecycle graph does
// not allow. A self-transition is a no-op.
func (m *machine) to(next State) error {
	m.mu.Lock()
	if m.cur == next {
		m.mu.Unlock()
		return nil
	}
	if !canTransition(m.cur, next) {
		cur := m.cur
		m.mu.Unlock()
		return fmt.Errorf("invalid voice state transition %s -> %s", cur, next)
	}
	m.cur = next
	onChange := m.onChange
	m.mu.Unlock()

	if onChange != nil {
		onChange(next)
	}
	return nil
}
