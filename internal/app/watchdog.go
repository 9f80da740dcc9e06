package app

import (
	"context"
	"time"

	"github.com/bft-labs/devlink/pkg/log"
)

// Watchdog samples the queue depth on a fixed period and flushes down to
// the low-water mark once the depth exceeds the threshold.
type Watchdog struct {
	queue     *EventQueue
	threshold int
	lowWater  int
	interval  time.Duration
	logger    log.Logger
}

// NewWatchdog creates a watchdog for queue.
func NewWatchdog(queue *EventQueue, threshold, lowWater int, interval time.Duration, logger log.Logger) *Watchdog {
	return &Watchdog{
		queue:     queue,
		threshold: threshold,
		lowWater:  lowWater,
		interval:  interval,
		logger:    log.With(logger, log.String("component", "watchdog")),
	}
}

// Run checks the queue every interval until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Check()
		}
	}
}

// Check performs one depth sample and flushes when over threshold.
func (w *Watchdog) Check() FlushResult {
	depth := w.queue.Depth()
	if depth <= w.threshold {
		return FlushResult{Depth: depth}
	}

	res := w.queue.Flush(w.lowWater)
	w.logger.Warn("queue over threshold, flushed",
		log.Int("depth_before", depth),
		log.Int("depth_after", res.Depth),
		log.Int("samples_dropped", res.Samples),
		log.Int("ticks_dropped", res.Ticks),
	)
	return res
}
