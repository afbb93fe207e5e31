// Package session owns the continuous-recognition capture lifecycle
// and feeds final transcripts through the normalize-extract-dedup-
// record pipeline.
package session

import "fmt"

// State is the lifecycle state of the capture session.
type State int

const (
	// StateIdle - no engine running, ready to start.
	StateIdle State = iota
	// StateListening - an engine instance is active.
	StateListening
	// StateStopped - the engine ended and no restart is wanted.
	StateStopped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// Machine holds the session state together with the orthogonal
// "desired listening" intent bit. The intent is the single source of
// truth for auto-restart decisions: the engine may terminate itself
// while the user's intent to keep listening is still true. Owned by
// the session event loop; no external synchronization.
//
// Transitions:
//
//	IDLE ── UserStart ──→ LISTENING
//	LISTENING ── UserStop ──→ IDLE
//	LISTENING ── EngineEnded (desired) ──→ LISTENING  (fresh instance)
//	LISTENING ── EngineEnded (!desired) ──→ STOPPED
type Machine struct {
	state   State
	desired bool
}

// NewMachine creates a machine in the IDLE state.
func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Desired reports whether the user's intent to keep listening is set.
func (m *Machine) Desired() bool { return m.desired }

// Listening reports whether an engine instance is active.
func (m *Machine) Listening() bool { return m.state == StateListening }

// UserStart records the user's start action. Returns false when the
// session is already listening (start is a no-op then).
func (m *Machine) UserStart() bool {
	if m.state == StateListening {
		return false
	}
	m.state = StateListening
	m.desired = true
	return true
}

// UserStop records the user's stop action and clears the intent.
func (m *Machine) UserStop() {
	m.desired = false
	m.state = StateIdle
}

// EngineEnded records the engine instance terminating. It returns true
// when a fresh instance must be started (the intent is still set).
func (m *Machine) EngineEnded() bool {
	if m.desired {
		// State stays LISTENING across the restart.
		return true
	}
	if m.state == StateListening {
		m.state = StateStopped
	}
	return false
}

// StartFailed records a failed engine start: the session falls back to
// IDLE and the intent is cleared.
func (m *Machine) StartFailed() {
	m.desired = false
	m.state = StateIdle
}

// RestartFailed records a failed restart after an engine end event.
// Nothing will emit further events, so the intent is cleared and the
// session parks in STOPPED.
func (m *Machine) RestartFailed() {
	m.desired = false
	m.state = StateStopped
}
