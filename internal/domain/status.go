package domain

// CloudStatus is the cloud connection status published to the provisioning
// transport.
type CloudStatus int

const (
	CloudNotProvisioned CloudStatus = iota
	CloudDisconnected
	CloudConnecting
	CloudConnected
	CloudConnectionError
)

// String returns a human-readable representation of the status.
func (s CloudStatus) String() string {
	switch s {
	case CloudNotProvisioned:
		return "not provisioned"
	case CloudDisconnected:
		return "disconnected"
	case CloudConnecting:
		return "connecting"
	case CloudConnected:
		return "connected"
	case CloudConnectionError:
		return "connection error"
	default:
		return "unknown"
	}
}

// LinkEvent is delivered by the network link callback.
type LinkEvent int

const (
	LinkReady LinkEvent = iota
	LinkDisconnected
)

// String returns a human-readable representation of the link event.
func (e LinkEvent) String() string {
	if e == LinkReady {
		return "ready"
	}
	return "disconnected"
}

// LinkStatus describes the radio link.
type LinkStatus struct {
	ID              string `json:"id"`
	SignalQuality   int    `json:"rssi"`
	SINR            int    `json:"sinr"`
	FirmwareVersion string `json:"radio_version"`
	Serial          string `json:"radio_sn"`
	ICCID           string `json:"iccid"`
}

// Topic selects the cloud topic a payload is published to.
type Topic int

const (
	TopicTelemetry Topic = iota
	TopicKeepAlive
	TopicShadow
)

// String returns the topic suffix used on the wire.
func (t Topic) String() string {
	switch t {
	case TopicTelemetry:
		return "telemetry"
	case TopicKeepAlive:
		return "keepalive"
	case TopicShadow:
		return "shadow/update"
	default:
		return "unknown"
	}
}
