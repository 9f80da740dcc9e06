package app

import (
	"sync"

	"github.com/bft-labs/devlink/internal/domain"
	"github.com/bft-labs/devlink/internal/ports"
	"github.com/bft-labs/devlink/pkg/log"
)

// StatusBroadcaster fans cloud status and disconnect notifications out to
// the registered sinks.
type StatusBroadcaster struct {
	mu          sync.RWMutex
	sinks       []ports.StatusSink
	status      domain.CloudStatus
	disconnects int
	logger      log.Logger
}

// NewStatusBroadcaster creates a broadcaster with no sinks.
func NewStatusBroadcaster(logger log.Logger) *StatusBroadcaster {
	return &StatusBroadcaster{
		status: domain.CloudDisconnected,
		logger: log.With(logger, log.String("component", "status")),
	}
}

// Register adds sink. Sinks are called in registration order.
func (b *StatusBroadcaster) Register(sink ports.StatusSink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, sink)
}

func (b *StatusBroadcaster) snapshot() []ports.StatusSink {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]ports.StatusSink(nil), b.sinks...)
}

// SetStatus records and publishes status.
func (b *StatusBroadcaster) SetStatus(status domain.CloudStatus) {
	b.mu.Lock()
	prev := b.status
	b.status = status
	b.mu.Unlock()

	if prev != status {
		b.logger.Info("cloud status", log.Stringer("status", status))
	}
	for _, s := range b.snapshot() {
		s.SetStatus(status)
	}
}

// OnDisconnect notifies sinks that the cloud session ended.
func (b *StatusBroadcaster) OnDisconnect() {
	b.mu.Lock()
	b.disconnects++
	b.mu.Unlock()

	for _, s := range b.snapshot() {
		s.OnDisconnect()
	}
}

// Status returns the last published status.
func (b *StatusBroadcaster) Status() domain.CloudStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// Disconnects returns how many disconnect notifications were sent.
func (b *StatusBroadcaster) Disconnects() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.disconnects
}
