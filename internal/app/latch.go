package app

import "context"

// Latch is a single-slot readiness notification. Set never blocks and
// collapses repeated signals into one; Wait consumes the signal.
type Latch struct {
	ch chan struct{}
}

// NewLatch creates an unset latch.
func NewLatch() *Latch {
	return &Latch{ch: make(chan struct{}, 1)}
}

// Set signals the latch.
func (l *Latch) Set() {
	select {
	case l.ch <- struct{}{}:
	default:
	}
}

// Reset clears a pending signal.
func (l *Latch) Reset() {
	select {
	case <-l.ch:
	default:
	}
}

// Wait blocks until the latch is set. ctx only ends the wait on shutdown.
func (l *Latch) Wait(ctx context.Context) error {
	select {
	case <-l.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
