package app

import (
	"context"
	"time"

	"github.com/bft-labs/devlink/internal/domain"
	"github.com/bft-labs/devlink/internal/ports"
	"github.com/bft-labs/devlink/pkg/log"
)

// SnapshotFunc assembles the current status snapshot.
type SnapshotFunc func() ports.Snapshot

// StatusRecorder persists a status snapshot on every lifecycle transition
// and cloud status change. Register it as a StatusSink and a transition
// observer.
type StatusRecorder struct {
	repo     ports.StatusRepository
	snapshot SnapshotFunc
	logger   log.Logger
}

// NewStatusRecorder creates a recorder saving to repo.
func NewStatusRecorder(repo ports.StatusRepository, snapshot SnapshotFunc, logger log.Logger) *StatusRecorder {
	return &StatusRecorder{
		repo:     repo,
		snapshot: snapshot,
		logger:   log.With(logger, log.String("component", "recorder")),
	}
}

// SetStatus implements ports.StatusSink.
func (r *StatusRecorder) SetStatus(domain.CloudStatus) { r.Save() }

// OnDisconnect implements ports.StatusSink.
func (r *StatusRecorder) OnDisconnect() {}

// OnTransition records a lifecycle transition.
func (r *StatusRecorder) OnTransition(_, _ domain.State) { r.Save() }

// Save writes the current snapshot. Failures are logged.
func (r *StatusRecorder) Save() {
	s := r.snapshot()
	s.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := r.repo.Save(context.Background(), s); err != nil {
		r.logger.Warn("failed to save status snapshot", log.Err(err))
	}
}
