package app

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/bft-labs/devlink/internal/domain"
	"github.com/bft-labs/devlink/pkg/log"
)

// FlushResult reports what a flush removed.
type FlushResult struct {
	Samples int
	Ticks   int
	Depth   int
}

// Dropped returns the number of events removed.
func (r FlushResult) Dropped() int {
	return r.Samples + r.Ticks
}

// EventQueue is a bounded FIFO of lifecycle events with many producers and
// one consumer. Enqueue never blocks.
type EventQueue struct {
	mu       sync.Mutex
	items    []domain.Event
	capacity int
	notify   chan struct{}
	dropped  atomic.Uint64
	logger   log.Logger
}

// NewEventQueue creates a queue holding at most capacity events.
func NewEventQueue(capacity int, logger log.Logger) *EventQueue {
	return &EventQueue{
		items:    make([]domain.Event, 0, capacity),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
		logger:   log.With(logger, log.String("component", "queue")),
	}
}

// Enqueue appends ev. When the queue is full a control event evicts the
// oldest droppable event; any other event is dropped. Returns whether ev
// was queued.
func (q *EventQueue) Enqueue(ev domain.Event) bool {
	q.mu.Lock()
	if len(q.items) >= q.capacity {
		if !ev.Kind.Control() || !q.evictLocked() {
			depth := len(q.items)
			q.mu.Unlock()
			q.dropped.Add(1)
			q.logger.Warn("queue full, event dropped",
				log.Stringer("kind", ev.Kind),
				log.Int("depth", depth),
			)
			return false
		}
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// evictLocked removes the oldest event of the lowest drop rank.
func (q *EventQueue) evictLocked() bool {
	for rank := 0; rank <= 1; rank++ {
		for i, ev := range q.items {
			if ev.Kind.DropRank() == rank {
				q.items = append(q.items[:i], q.items[i+1:]...)
				q.dropped.Add(1)
				q.logger.Warn("queue full, evicted event for control event",
					log.Stringer("evicted", ev.Kind),
				)
				return true
			}
		}
	}
	return false
}

// Dequeue removes the oldest event, blocking while the queue is empty.
func (q *EventQueue) Dequeue(ctx context.Context) (domain.Event, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items[0] = domain.Event{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return ev, nil
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return domain.Event{}, ctx.Err()
		}
	}
}

// Depth returns the number of queued events.
func (q *EventQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns the total number of events dropped or flushed.
func (q *EventQueue) Dropped() uint64 {
	return q.dropped.Load()
}

// Flush drops sensor samples oldest first, then keep-alive ticks, until the
// depth reaches target. Control events are never dropped, so the resulting
// depth can stay above target.
func (q *EventQueue) Flush(target int) FlushResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	var res FlushResult
	for rank := 0; rank <= 1 && len(q.items) > target; rank++ {
		excess := len(q.items) - target
		kept := q.items[:0]
		for _, ev := range q.items {
			if excess > 0 && ev.Kind.DropRank() == rank {
				excess--
				if rank == 0 {
					res.Samples++
				} else {
					res.Ticks++
				}
				continue
			}
			kept = append(kept, ev)
		}
		for i := len(kept); i < len(q.items); i++ {
			q.items[i] = domain.Event{}
		}
		q.items = kept
	}
	q.dropped.Add(uint64(res.Dropped()))
	res.Depth = len(q.items)
	return res
}
