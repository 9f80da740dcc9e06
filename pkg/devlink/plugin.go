package devlink

import (
	"context"

	"github.com/bft-labs/devlink/pkg/log"
)

// Plugin extends a Devlink instance. Plugins are initialized on every Start
// in registration order and shut down on Stop in reverse order.
type Plugin interface {
	// Name returns the plugin identifier used in logs.
	Name() string

	// Initialize is called after the orchestrator is wired and before the
	// state machine starts. ctx is cancelled when the run ends.
	Initialize(ctx context.Context, cfg PluginConfig) error

	// Shutdown releases plugin resources.
	Shutdown(ctx context.Context) error
}

// PluginConfig is passed to Plugin.Initialize.
type PluginConfig struct {
	StateDir     string
	ProvisionDir string
	ClientID     string
	Logger       log.Logger

	// Commissioner installs credentials and decommissions the device.
	Commissioner Commissioner

	// RegisterStatusSink subscribes sink to cloud status updates.
	RegisterStatusSink func(sink StatusSink)
}
