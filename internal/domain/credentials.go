package domain

// Credentials tracks commissioning progress. Connecting is permitted only
// when both CertPresent and KeyPresent are set.
type Credentials struct {
	CertPresent  bool `json:"cert_present"`
	KeyPresent   bool `json:"key_present"`
	Commissioned bool `json:"commissioned"`
}

// Complete reports whether both the device certificate and key are present.
func (c Credentials) Complete() bool {
	return c.CertPresent && c.KeyPresent
}

// CredentialKind names an entry in the credential store.
type CredentialKind int

const (
	CredentialCert CredentialKind = iota
	CredentialKey
	CredentialEndpoint
	CredentialClientID
	CredentialRootCA
)

// String returns the storage name of the credential kind.
func (k CredentialKind) String() string {
	switch k {
	case CredentialCert:
		return "cert"
	case CredentialKey:
		return "key"
	case CredentialEndpoint:
		return "endpoint"
	case CredentialClientID:
		return "client_id"
	case CredentialRootCA:
		return "root_ca"
	default:
		return "unknown"
	}
}

// Installable reports whether the kind can be installed through commissioning.
func (k CredentialKind) Installable() bool {
	return k == CredentialCert || k == CredentialKey
}

// Identity reports whether the kind configures the cloud client rather than
// authenticating the device.
func (k CredentialKind) Identity() bool {
	return k == CredentialEndpoint || k == CredentialClientID || k == CredentialRootCA
}

// ParseCredentialKind returns the kind with the given storage name.
func ParseCredentialKind(name string) (CredentialKind, error) {
	for k := CredentialCert; k <= CredentialRootCA; k++ {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, ErrUnknownCredential
}
