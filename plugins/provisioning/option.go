package provisioning

import "github.com/bft-labs/devlink/pkg/devlink"

// WithProvisioning returns a devlink Option that enables the file-drop
// provisioning transport.
//
// Usage:
//
//	d, err := devlink.New(cfg,
//	    provisioning.WithProvisioning(provisioning.Config{
//	        Dir:           "/run/devlink/provision",
//	        DebounceDelay: 200 * time.Millisecond,
//	    }),
//	)
func WithProvisioning(cfg Config) devlink.Option {
	return devlink.WithPlugin(New(cfg))
}

// WithDefaultProvisioning enables the transport on the configured
// provision_dir with default settings.
func WithDefaultProvisioning() devlink.Option {
	return WithProvisioning(DefaultConfig())
}
