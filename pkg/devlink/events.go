package devlink

import (
	"github.com/bft-labs/devlink/internal/app"
	"github.com/bft-labs/devlink/internal/domain"
)

// State is the process state of a Devlink instance.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

// StateChangeEvent is emitted when the process state changes.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// TransitionEvent is emitted when the connectivity lifecycle changes state.
type TransitionEvent struct {
	From LifecycleState
	To   LifecycleState
}

// CloudStatusEvent is emitted on every cloud status update.
type CloudStatusEvent struct {
	Status CloudStatus
}

// EventHandler receives devlink events. Methods are called synchronously
// from the goroutine that caused the event and must not block.
type EventHandler interface {
	OnStateChange(e StateChangeEvent)
	OnTransition(e TransitionEvent)
	OnCloudStatus(e CloudStatusEvent)
}

// NoopEventHandler ignores all events. Embed it to implement a subset.
type NoopEventHandler struct{}

func (NoopEventHandler) OnStateChange(StateChangeEvent) {}
func (NoopEventHandler) OnTransition(TransitionEvent)   {}
func (NoopEventHandler) OnCloudStatus(CloudStatusEvent) {}

// eventEmitterWrapper adapts EventHandler to the internal emitter interfaces.
type eventEmitterWrapper struct {
	handler EventHandler
}

func (e *eventEmitterWrapper) OnStateChange(previous, current app.ProcessState, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: convertState(previous),
		Current:  convertState(current),
		Reason:   reason,
	})
}

func (e *eventEmitterWrapper) onTransition(from, to domain.State) {
	if e.handler == nil {
		return
	}
	e.handler.OnTransition(TransitionEvent{From: from, To: to})
}

// SetStatus implements ports.StatusSink.
func (e *eventEmitterWrapper) SetStatus(s domain.CloudStatus) {
	if e.handler == nil {
		return
	}
	e.handler.OnCloudStatus(CloudStatusEvent{Status: s})
}

// OnDisconnect implements ports.StatusSink.
func (e *eventEmitterWrapper) OnDisconnect() {}

func convertState(s app.ProcessState) State {
	switch s {
	case app.ProcessStopped:
		return StateStopped
	case app.ProcessStarting:
		return StateStarting
	case app.ProcessRunning:
		return StateRunning
	case app.ProcessStopping:
		return StateStopping
	case app.ProcessCrashed:
		return StateCrashed
	default:
		return StateStopped
	}
}
