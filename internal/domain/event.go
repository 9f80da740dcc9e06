package domain

import "time"

// EventKind identifies the variant of a lifecycle event.
type EventKind int

const (
	EventSensorSample EventKind = iota
	EventKeepAliveTick
	EventSessionDisconnected
	EventDecommissionRequested
	EventCredentialsInstalled
)

// String returns a human-readable representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventSensorSample:
		return "SensorSample"
	case EventKeepAliveTick:
		return "KeepAliveTick"
	case EventSessionDisconnected:
		return "SessionDisconnected"
	case EventDecommissionRequested:
		return "DecommissionRequested"
	case EventCredentialsInstalled:
		return "CredentialsInstalled"
	default:
		return "Unknown"
	}
}

// Control reports whether events of this kind must survive a queue flush.
func (k EventKind) Control() bool {
	switch k {
	case EventSessionDisconnected, EventDecommissionRequested, EventCredentialsInstalled:
		return true
	default:
		return false
	}
}

// DropRank orders droppable kinds for a flush: lower ranks go first.
// Control events return -1 and are never dropped.
func (k EventKind) DropRank() int {
	switch k {
	case EventSensorSample:
		return 0
	case EventKeepAliveTick:
		return 1
	default:
		return -1
	}
}

// Event is a lifecycle event. Events are values and are never modified after
// they are enqueued.
type Event struct {
	Kind EventKind

	// Payload is set for SensorSample only.
	Payload []byte

	// Session is the session generation current when the event was produced.
	Session uint64

	// At is the time the event was produced.
	At time.Time
}

// NewEvent creates an event of the given kind stamped with session and time.
func NewEvent(kind EventKind, session uint64) Event {
	return Event{Kind: kind, Session: session, At: time.Now()}
}

// NewSensorSample creates a SensorSample event carrying payload.
func NewSensorSample(payload []byte, session uint64) Event {
	return Event{Kind: EventSensorSample, Payload: payload, Session: session, At: time.Now()}
}
