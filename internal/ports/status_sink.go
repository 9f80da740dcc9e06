package ports

import (
	"context"

	"github.com/bft-labs/devlink/internal/domain"
)

// StatusSink receives cloud status updates. The provisioning transport is
// the primary sink; others (status file, log) register alongside it.
type StatusSink interface {
	SetStatus(status domain.CloudStatus)
	OnDisconnect()
}

// Snapshot is the persisted orchestrator status.
type Snapshot struct {
	LifecycleState string `json:"lifecycle_state" yaml:"lifecycle_state"`
	CloudStatus    string `json:"cloud_status" yaml:"cloud_status"`
	Commissioned   bool   `json:"commissioned" yaml:"commissioned"`
	QueueDepth     int    `json:"queue_depth" yaml:"queue_depth"`
	DroppedTotal   uint64 `json:"dropped_total" yaml:"dropped_total"`
	UpdatedAt      string `json:"updated_at" yaml:"updated_at"`
}

// StatusRepository persists the status snapshot.
type StatusRepository interface {
	// Load returns the last saved snapshot, or a zero snapshot and nil error
	// if none exists.
	Load(ctx context.Context) (Snapshot, error)

	// Save persists the snapshot atomically.
	Save(ctx context.Context, s Snapshot) error
}

// ResetMode selects how the process resets.
type ResetMode int

const (
	ResetNormal ResetMode = iota
	ResetBootloader
)

// String returns the reset mode name.
func (m ResetMode) String() string {
	if m == ResetBootloader {
		return "bootloader"
	}
	return "normal"
}

// Resetter performs the process-wide reset.
type Resetter interface {
	Reset(mode ResetMode)
}

// ResetFunc adapts a function to Resetter.
type ResetFunc func(mode ResetMode)

// Reset calls f(mode).
func (f ResetFunc) Reset(mode ResetMode) { f(mode) }
