// Package devlink keeps a field device connected to its cloud backend.
//
// Example usage:
//
//	cfg := devlink.DefaultConfig()
//	cfg.Endpoint = "wss://broker.example.com/mqtt"
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//	if err := devlink.EnsureClientID(&cfg); err != nil {
//	    log.Fatal(err)
//	}
//	if err := devlink.Run(ctx, cfg); err != nil {
//	    log.Fatal(err)
//	}
//
// Embedders that need events, plugins or injected adapters use pkg/devlink.
package devlink

import (
	"context"
	"errors"

	"github.com/bft-labs/devlink/internal/cliconfig"
	"github.com/bft-labs/devlink/pkg/devlink"
	"github.com/bft-labs/devlink/plugins/provisioning"
)

// Config holds the orchestrator configuration.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = cliconfig.Config

// DefaultConfig returns a Config with sensible default values.
// At minimum, set Endpoint (or AltProtocol and RedisAddr) before calling Run.
func DefaultConfig() Config {
	return cliconfig.DefaultConfig()
}

// EnsureClientID fills cfg.ClientID from the state directory, generating
// and persisting a new id on first use.
func EnsureClientID(cfg *Config) error {
	return cliconfig.EnsureClientID(cfg)
}

// Run starts the orchestrator with file-based provisioning and blocks until
// ctx is cancelled. A reset request ends Run with ErrReset.
func Run(ctx context.Context, cfg Config) error {
	resetCh := make(chan struct{}, 1)
	d, err := devlink.New(cfg,
		provisioning.WithDefaultProvisioning(),
		devlink.WithResetter(devlink.ResetFunc(func(devlink.ResetMode) {
			select {
			case resetCh <- struct{}{}:
			default:
			}
		})),
	)
	if err != nil {
		return err
	}
	if err := d.Start(ctx); err != nil {
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
	case <-resetCh:
		runErr = ErrReset
	}
	if err := d.Stop(); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// ErrReset is returned by Run when a reset was requested.
var ErrReset = errors.New("devlink: reset requested")
