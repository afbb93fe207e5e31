// Package engine defines the boundary to a continuous, interim-capable
// speech recognition engine. Providers implement Engine; the capture
// session owns exactly one instance at a time and never reuses an
// instance after its end event.
package engine

import (
	"context"
	"errors"

	"voice-order-logger/internal/models"
)

// ErrEngineUnavailable is returned by a factory when no recognition
// capability exists in the execution environment. It is terminal and
// reported to the user, never retried.
var ErrEngineUnavailable = errors.New("no speech recognition capability available")

// Callback receives lifecycle and transcript events from the engine.
// All callbacks may be invoked from engine-owned goroutines.
type Callback interface {
	// OnStart is called once the engine is actively listening.
	OnStart()

	// OnResult delivers the recognized fragments for one result event.
	// A fragment marked final is complete and eligible for extraction;
	// interim fragments are provisional and display-only.
	OnResult(fragments []models.Fragment)

	// OnEnd is called when the engine instance terminates, whether by
	// Stop, timeout, or after an error. It is the last event emitted.
	OnEnd()

	// OnError reports a recognition error. The engine's own end event
	// still follows and governs any restart.
	OnError(err error)
}

// Engine is a single bounded recognition session.
type Engine interface {
	// Start begins recognition and registers the event receiver.
	Start(ctx context.Context, cb Callback) error

	// Stop force-stops the instance. The end event is still emitted.
	Stop()
}

// Factory creates fresh engine instances. The session calls it on every
// start and restart; prior instances are discarded.
type Factory interface {
	New() (Engine, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func() (Engine, error)

// New calls f.
func (f FactoryFunc) New() (Engine, error) { return f() }
