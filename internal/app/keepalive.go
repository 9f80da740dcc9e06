package app

import (
	"sync"
	"time"

	"github.com/bft-labs/devlink/internal/domain"
	"github.com/bft-labs/devlink/pkg/log"
)

// DefaultKeepAliveInterval is the keep-alive period while streaming.
const DefaultKeepAliveInterval = 90 * time.Second

// KeepAliveScheduler enqueues KeepAliveTick events on a fixed period. Ticks
// are stamped with the session they were started for.
type KeepAliveScheduler struct {
	interval time.Duration
	queue    *EventQueue
	logger   log.Logger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewKeepAliveScheduler creates a stopped scheduler.
func NewKeepAliveScheduler(interval time.Duration, queue *EventQueue, logger log.Logger) *KeepAliveScheduler {
	return &KeepAliveScheduler{
		interval: interval,
		queue:    queue,
		logger:   log.With(logger, log.String("component", "keepalive")),
	}
}

// Start begins ticking for session, replacing any running ticker.
func (k *KeepAliveScheduler) Start(session uint64) {
	k.Stop()

	k.mu.Lock()
	defer k.mu.Unlock()
	stop := make(chan struct{})
	done := make(chan struct{})
	k.stop, k.done = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(k.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				k.queue.Enqueue(domain.NewEvent(domain.EventKeepAliveTick, session))
			}
		}
	}()
	k.logger.Debug("keep-alive started", log.Uint64("session", session), log.Duration("interval", k.interval))
}

// Stop halts the ticker and waits for it to exit. Safe to call when stopped.
func (k *KeepAliveScheduler) Stop() {
	k.mu.Lock()
	stop, done := k.stop, k.done
	k.stop, k.done = nil, nil
	k.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	k.logger.Debug("keep-alive stopped")
}

// Running reports whether the ticker is active.
func (k *KeepAliveScheduler) Running() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.stop != nil
}
