package app

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultRetryDelay is the delay after a failed resolve, connect or
// alternate-client init.
const DefaultRetryDelay = 30 * time.Second

// RetryPolicy applies a fixed delay between attempts.
type RetryPolicy struct {
	b backoff.BackOff
}

// NewRetryPolicy creates a policy with constant delay d.
func NewRetryPolicy(d time.Duration) *RetryPolicy {
	return &RetryPolicy{b: backoff.NewConstantBackOff(d)}
}

// Delay returns the delay applied before the next attempt.
func (p *RetryPolicy) Delay() time.Duration {
	return p.b.NextBackOff()
}

// Wait sleeps for the retry delay. ctx only ends the wait on shutdown.
func (p *RetryPolicy) Wait(ctx context.Context) error {
	t := time.NewTimer(p.b.NextBackOff())
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
