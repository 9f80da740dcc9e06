package devlink

// Version information for the devlink module.
const (
	// Version is the current version of the devlink module.
	Version = "0.3.0"

	// MinCompatibleVersion is the minimum version that is compatible with this version.
	MinCompatibleVersion = "0.3.0"
)
