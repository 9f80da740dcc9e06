package ports

import (
	"context"

	"github.com/bft-labs/devlink/internal/domain"
)

// CloudStatusCallback receives status changes reported by the cloud client
// itself, such as an unsolicited session drop.
type CloudStatusCallback func(domain.CloudStatus)

// CloudClient is the cloud session. Implementations own the wire protocol.
type CloudClient interface {
	// Init prepares the client. It is called once at boot.
	Init(ctx context.Context) error

	// SetCredentials validates and installs the device certificate and key.
	SetCredentials(cert, key []byte) error

	// ResolveServer resolves the configured endpoint.
	ResolveServer(ctx context.Context) error

	// Connect establishes a session.
	Connect(ctx context.Context) error

	// Disconnect tears down the session. Safe to call when not connected.
	Disconnect()

	// IsConnected reports whether a session is established.
	IsConnected() bool

	// Publish sends payload on topic.
	Publish(ctx context.Context, topic domain.Topic, payload []byte) error

	// SetStatusCallback registers a callback for client-originated status changes.
	SetStatusCallback(cb CloudStatusCallback)

	// PublishPersistentMetadata clears and republishes the device shadow.
	PublishPersistentMetadata(ctx context.Context, fields map[string]string) error
}

// AltClient publishes telemetry over the alternate protocol.
type AltClient interface {
	Init(ctx context.Context) error
	Publish(ctx context.Context, payload []byte) error
	Close() error
}
