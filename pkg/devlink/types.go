package devlink

import (
	"github.com/bft-labs/devlink/internal/app"
	"github.com/bft-labs/devlink/internal/cliconfig"
	"github.com/bft-labs/devlink/internal/domain"
	"github.com/bft-labs/devlink/internal/ports"
)

// Config holds the orchestrator configuration.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = cliconfig.Config

// DefaultConfig returns a Config with default values. At minimum Endpoint
// (or AltProtocol with RedisAddr) must be set before New.
func DefaultConfig() Config {
	return cliconfig.DefaultConfig()
}

// Re-exported domain types.
type (
	LifecycleState = domain.State
	CloudStatus    = domain.CloudStatus
	CredentialKind = domain.CredentialKind
	Credentials    = domain.Credentials
	Snapshot       = ports.Snapshot
)

// Credential kinds accepted by Commissioner.InstallCredential.
const (
	CredentialCert = domain.CredentialCert
	CredentialKey  = domain.CredentialKey
)

// Identity kinds accepted by Commissioner.StoreIdentity.
const (
	CredentialEndpoint = domain.CredentialEndpoint
	CredentialClientID = domain.CredentialClientID
	CredentialRootCA   = domain.CredentialRootCA
)

// Collaborator interfaces that can be replaced through options.
type (
	Commissioner     = ports.Commissioner
	StatusSink       = ports.StatusSink
	NetworkLink      = ports.NetworkLink
	CloudClient      = ports.CloudClient
	AltClient        = ports.AltClient
	CredentialStore  = ports.CredentialStore
	StatusRepository = ports.StatusRepository
	Resetter         = ports.Resetter
	ResetMode        = ports.ResetMode
	ResetFunc        = ports.ResetFunc
)

// Reset modes.
const (
	ResetNormal     = ports.ResetNormal
	ResetBootloader = ports.ResetBootloader
)

// Errors returned by the embedding API. Check with errors.Is.
var (
	ErrAlreadyRunning       = domain.ErrAlreadyRunning
	ErrNotRunning           = domain.ErrNotRunning
	ErrShutdownTimeout      = domain.ErrShutdownTimeout
	ErrInvalidConfig        = domain.ErrInvalidConfig
	ErrNotReady             = domain.ErrNotReady
	ErrCommissionDisallowed = domain.ErrCommissionDisallowed
	ErrCredTooLarge         = domain.ErrCredTooLarge
	ErrUnknownCredential    = domain.ErrUnknownCredential
	ErrHalted               = app.ErrHalted
)

// Code maps an error returned by a Commissioner to its shell error code.
func Code(err error) int {
	return domain.Code(err)
}
