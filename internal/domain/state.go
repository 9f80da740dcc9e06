package domain

// State is a connectivity lifecycle state. Exactly one state is active at a
// time and only the state machine changes it.
type State int

const (
	StateStartup State = iota
	StateWaitForNetwork
	StateResolveServer
	StateConnecting
	StateInitSession
	StateStreaming
	StateDisconnecting
	StateCommissioning

	// Alternate protocol branch, mutually exclusive with the cloud branch.
	StateInitAltClient
	StateAltStreaming
)

// States lists every lifecycle state in declaration order.
var States = []State{
	StateStartup,
	StateWaitForNetwork,
	StateResolveServer,
	StateConnecting,
	StateInitSession,
	StateStreaming,
	StateDisconnecting,
	StateCommissioning,
	StateInitAltClient,
	StateAltStreaming,
}

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStartup:
		return "Startup"
	case StateWaitForNetwork:
		return "WaitForNetwork"
	case StateResolveServer:
		return "ResolveServer"
	case StateConnecting:
		return "Connecting"
	case StateInitSession:
		return "InitSession"
	case StateStreaming:
		return "Streaming"
	case StateDisconnecting:
		return "Disconnecting"
	case StateCommissioning:
		return "Commissioning"
	case StateInitAltClient:
		return "InitAltClient"
	case StateAltStreaming:
		return "AltStreaming"
	default:
		return "Unknown"
	}
}

// Connected reports whether the state implies a live cloud session.
func (s State) Connected() bool {
	return s == StateInitSession || s == StateStreaming || s == StateAltStreaming
}
