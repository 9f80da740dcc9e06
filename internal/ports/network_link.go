package ports

import (
	"context"

	"github.com/bft-labs/devlink/internal/domain"
)

// LinkCallback receives link readiness changes. It must not block.
type LinkCallback func(domain.LinkEvent)

// NetworkLink is the radio/network link the device attaches through.
type NetworkLink interface {
	// Init starts link monitoring. Readiness changes are delivered to the
	// registered callback until ctx is cancelled.
	Init(ctx context.Context) error

	// RegisterEventCallback sets the callback for readiness changes.
	RegisterEventCallback(cb LinkCallback)

	// IsReady reports whether the link currently carries traffic.
	IsReady() bool

	// Status returns identity and signal metrics of the link.
	Status() domain.LinkStatus
}
