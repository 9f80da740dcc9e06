package domain

import "errors"

// Domain errors represent error conditions in the devlink domain.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running instance.
	ErrAlreadyRunning = errors.New("devlink: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped instance.
	ErrNotRunning = errors.New("devlink: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("devlink: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("devlink: invalid configuration")

	// ErrNotReady is returned when the orchestrator has not completed boot.
	ErrNotReady = errors.New("devlink: app is not ready")

	// ErrCommissionDisallowed is returned when credentials are installed on a
	// commissioned device. Decommission first.
	ErrCommissionDisallowed = errors.New("devlink: commissioning not allowed, decommission device first")

	// ErrCredTooLarge is returned when a credential exceeds its maximum length.
	ErrCredTooLarge = errors.New("devlink: credential too large")

	// ErrUnknownCredential is returned for credential kinds that cannot be installed.
	ErrUnknownCredential = errors.New("devlink: unknown credential")

	// ErrCredentialMissing is returned when a stored credential cannot be read.
	ErrCredentialMissing = errors.New("devlink: credential not stored")
)

// Shell error codes reported by the command surface.
const (
	CodeOK                   = 0
	CodeNotReady             = -1
	CodeCommissionDisallowed = -2
	CodeCredTooLarge         = -3
	CodeUnknownCredential    = -4
	CodeStorage              = -5
)

// Code maps an error to its shell error code. Errors that are not domain
// sentinels are reported as storage failures.
func Code(err error) int {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrNotReady):
		return CodeNotReady
	case errors.Is(err, ErrCommissionDisallowed):
		return CodeCommissionDisallowed
	case errors.Is(err, ErrCredTooLarge):
		return CodeCredTooLarge
	case errors.Is(err, ErrUnknownCredential):
		return CodeUnknownCredential
	default:
		return CodeStorage
	}
}
