package hostloop

import (
	"sync/atomic"
)

// runState represents the lifecycle of the process runtime.
//
// State Machine:
//
//	stateIdle (0) → stateRunning (1)   [Run claims the process slot]
//	stateRunning (1) → stateExited (2) [host loop returned]
//
// Transitions use TryTransition (CAS) so a concurrent second Run fails
// loudly instead of racing. stateExited is terminal for a given handle; a
// later Run installs a fresh handle (see Run).
type runState uint32

const (
	// stateIdle indicates the handle has been created but the host loop has
	// not started.
	stateIdle runState = iota
	// stateRunning indicates the host loop is executing callbacks.
	stateRunning
	// stateExited indicates the host loop has returned.
	stateExited
)

// String returns a human-readable representation of the state.
func (s runState) String() string {
	switch s {
	case stateIdle:
		return "Idle"
	case stateRunning:
		return "Running"
	case stateExited:
		return "Exited"
	default:
		return "Unknown"
	}
}

// execState is a lock-free state cell. Pure atomic CAS, no mutex.
type execState struct {
	v atomic.Uint32
}

// Load returns the current state atomically.
func (s *execState) Load() runState {
	return runState(s.v.Load())
}

// Store atomically stores a new state. Reserved for irreversible
// transitions; reversible ones go through TryTransition.
func (s *execState) Store(state runState) {
	s.v.Store(uint32(state))
}

// TryTransition attempts to atomically transition from one state to another,
// reporting success.
func (s *execState) TryTransition(from, to runState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
