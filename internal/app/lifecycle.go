package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bft-labs/devlink/internal/domain"
	"github.com/bft-labs/devlink/pkg/log"
)

// ShutdownTimeout is the maximum time to wait for graceful shutdown.
const ShutdownTimeout = 30 * time.Second

// ProcessState is the run state of the orchestrator process, distinct from
// the connectivity lifecycle driven by the state machine.
type ProcessState int

const (
	ProcessStopped ProcessState = iota
	ProcessStarting
	ProcessRunning
	ProcessStopping
	ProcessCrashed
)

var processStateNames = [...]string{"Stopped", "Starting", "Running", "Stopping", "Crashed"}

func (s ProcessState) String() string {
	if s < 0 || int(s) >= len(processStateNames) {
		return "Unknown"
	}
	return processStateNames[s]
}

// processEdges lists the permitted process transitions. A failed Start and
// a reset both end in Crashed, which can be started again.
var processEdges = map[ProcessState][]ProcessState{
	ProcessStopped:  {ProcessStarting},
	ProcessStarting: {ProcessRunning, ProcessStopping, ProcessCrashed},
	ProcessRunning:  {ProcessStopping, ProcessCrashed},
	ProcessStopping: {ProcessStopped, ProcessCrashed},
	ProcessCrashed:  {ProcessStarting},
}

func canTransition(from, to ProcessState) bool {
	for _, s := range processEdges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// EventEmitter is called when the process state changes.
type EventEmitter interface {
	OnStateChange(previous, current ProcessState, reason string)
}

// Lifecycle tracks the process state of the orchestrator and the workers of
// its current run.
type Lifecycle struct {
	mu      sync.RWMutex
	state   ProcessState
	cancel  context.CancelFunc
	workers sync.WaitGroup
	logger  log.Logger
	emitter EventEmitter
}

// NewLifecycle creates a lifecycle in ProcessStopped.
func NewLifecycle(logger log.Logger, emitter EventEmitter) *Lifecycle {
	return &Lifecycle{
		logger:  log.With(logger, log.String("component", "process")),
		emitter: emitter,
	}
}

// State returns the current process state.
func (l *Lifecycle) State() ProcessState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// TransitionTo moves to next. Leaving an idle state for anything but
// Starting fails with ErrNotRunning; every other refused edge fails with
// ErrAlreadyRunning.
func (l *Lifecycle) TransitionTo(next ProcessState, reason string) error {
	l.mu.Lock()
	prev := l.state
	if !canTransition(prev, next) {
		l.mu.Unlock()
		if prev == ProcessStopped || prev == ProcessCrashed {
			return domain.ErrNotRunning
		}
		return domain.ErrAlreadyRunning
	}
	l.state = next
	l.mu.Unlock()

	if l.emitter != nil {
		l.emitter.OnStateChange(prev, next, reason)
	}
	l.logger.Info("process state",
		log.Stringer("from", prev),
		log.Stringer("to", next),
		log.String("reason", reason),
	)
	return nil
}

// CanStart reports whether a run can begin.
func (l *Lifecycle) CanStart() bool {
	return canTransition(l.State(), ProcessStarting)
}

// CanStop reports whether a run is in progress.
func (l *Lifecycle) CanStop() bool {
	return canTransition(l.State(), ProcessStopping)
}

// Begin derives the context of a new run from parent. Shutdown cancels it.
func (l *Lifecycle) Begin(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	l.mu.Lock()
	l.cancel = cancel
	l.mu.Unlock()
	return ctx
}

// Go runs fn as a worker of the current run. Errors other than
// cancellation are logged with the worker name and passed to onExit when
// it is non-nil.
func (l *Lifecycle) Go(ctx context.Context, name string, fn func(context.Context) error, onExit func(error)) {
	l.workers.Add(1)
	go func() {
		defer l.workers.Done()
		err := fn(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Error("worker exited", log.String("worker", name), log.Err(err))
		}
		if onExit != nil {
			onExit(err)
		}
	}()
}

// Shutdown cancels the run and waits up to timeout for its workers.
// Returns ErrShutdownTimeout when they do not finish in time.
func (l *Lifecycle) Shutdown(timeout time.Duration) error {
	l.mu.Lock()
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		l.workers.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		l.logger.Warn("workers still running after shutdown timeout", log.Duration("timeout", timeout))
		return domain.ErrShutdownTimeout
	}
}
