package devlink

import "github.com/bft-labs/devlink/pkg/log"

// Option configures optional behavior of Devlink.
type Option func(*options)

// options holds the optional configuration for a Devlink instance.
type options struct {
	logger       log.Logger
	eventHandler EventHandler
	plugins      []Plugin

	link       NetworkLink
	cloud      CloudClient
	alt        AltClient
	store      CredentialStore
	statusRepo StatusRepository
	resetter   Resetter
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventHandler sets a handler for devlink events.
// If not provided, no events are emitted.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithPlugin registers a plugin to be initialized when Devlink starts.
// Plugins are initialized in registration order and shutdown in reverse order.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}

// WithNetworkLink replaces the host interface monitor.
func WithNetworkLink(link NetworkLink) Option {
	return func(o *options) {
		o.link = link
	}
}

// WithCloudClient replaces the websocket cloud client.
func WithCloudClient(c CloudClient) Option {
	return func(o *options) {
		o.cloud = c
	}
}

// WithAltClient replaces the Redis alternate-protocol client.
func WithAltClient(c AltClient) Option {
	return func(o *options) {
		o.alt = c
	}
}

// WithCredentialStore replaces the SQLite credential store. The caller
// keeps ownership; Devlink does not close it.
func WithCredentialStore(s CredentialStore) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithStatusRepository replaces the status.json snapshot file.
func WithStatusRepository(r StatusRepository) Option {
	return func(o *options) {
		o.statusRepo = r
	}
}

// WithResetter sets the process-wide reset performed after a fatal error or
// a reboot command. Without it a reset ends the run and leaves the instance
// Crashed; call Start again to reboot.
func WithResetter(r Resetter) Option {
	return func(o *options) {
		o.resetter = r
	}
}
