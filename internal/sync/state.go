package sync

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/mneme-app/mneme/internal/bus"
)

// State represents where the engine is in a sync cycle.
type State string

const (
	Idle    State = "IDLE"
	Pushing State = "PUSHING"
	Pulling State = "PULLING"
	Failed  State = "FAILED"
)

// validTransitions defines allowed cycle transitions. Failed is transient:
// it always returns to Idle, never sticks.
var validTransitions = map[State][]State{
	Idle:    {Pushing, Pulling},
	Pushing: {Pulling, Idle, Failed},
	Pulling: {Idle, Failed},
	Failed:  {Idle},
}

// Machine tracks and enforces sync cycle state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a state machine starting in Idle.
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
			Kind:      "sync.status_changed",
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
