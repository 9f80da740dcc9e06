package ports

import "github.com/bft-labs/devlink/internal/domain"

// CredentialStore persists the commissioning flag and credential entries.
// Writes are synchronous: when a call returns nil the value is durable.
type CredentialStore interface {
	// ReadCommissioned returns the persisted flag, false if never stored.
	ReadCommissioned() (bool, error)

	// StoreCommissioned persists the flag.
	StoreCommissioned(v bool) error

	// Store writes the entry for kind, replacing any previous value.
	Store(kind domain.CredentialKind, data []byte) error

	// Read returns the entry for kind or domain.ErrCredentialMissing.
	Read(kind domain.CredentialKind) ([]byte, error)

	// Delete removes the entry for kind. Deleting a missing entry is not an error.
	Delete(kind domain.CredentialKind) error
}
