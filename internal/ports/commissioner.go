package ports

import "github.com/bft-labs/devlink/internal/domain"

// Commissioner is the commissioning surface offered to provisioning
// transports (shell, file drop, embedders).
type Commissioner interface {
	// InstallCredential stores one credential. Errors map to shell codes
	// through domain.Code.
	InstallCredential(kind domain.CredentialKind, data []byte) error

	// StoreIdentity stores the endpoint, client id or root CA applied to
	// the cloud client at the next boot. Empty data removes the entry.
	StoreIdentity(kind domain.CredentialKind, data []byte) error

	// Decommission clears stored credentials. Calling it on an already
	// decommissioned device is a no-op.
	Decommission() error
}
