// Package events carries monitor transitions to the subscription registry.
//
// Publish never blocks, so a slow display or chat sink cannot stall the poll
// loop. A single consumer drains the queue in publish order, which keeps
// events for any one target in the order they were produced.
package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/serverwatch/internal/domain"
)

type Kind int

const (
	StatusChanged Kind = iota + 1
	SnapshotUpdated
)

func (k Kind) String() string {
	switch k {
	case StatusChanged:
		return "status_changed"
	case SnapshotUpdated:
		return "snapshot_updated"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind     Kind
	Target   domain.TargetID
	Status   domain.Status
	Snapshot *domain.ServiceSnapshot
	At       time.Time
}

type Handler func(ctx context.Context, e Event)

// Publisher is the producer side, implemented by *Queue.
type Publisher interface {
	Publish(e Event) bool
}

var _ Publisher = (*Queue)(nil)

type Queue struct {
	mu     sync.Mutex
	items  []Event
	closed bool
	wake   chan struct{}
	logger *zap.Logger
}

func NewQueue(logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		wake:   make(chan struct{}, 1),
		logger: logger,
	}
}

// Publish enqueues e. It returns false once the queue is closed.
func (q *Queue) Publish(e Event) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	q.items = append(q.items, e)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting events. Run delivers what is already queued, then returns.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Run delivers events to h until the queue is closed and drained, or ctx ends.
// Only one Run may be active per queue.
func (q *Queue) Run(ctx context.Context, h Handler) error {
	for {
		q.mu.Lock()
		batch := q.items
		q.items = nil
		closed := q.closed
		q.mu.Unlock()

		for _, e := range batch {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			q.safeCall(ctx, h, e)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.wake:
		}
	}
}

func (q *Queue) safeCall(ctx context.Context, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("event_handler_panic",
				zap.String("kind", e.Kind.String()),
				zap.String("target_id", string(e.Target)),
				zap.Any("panic", r),
			)
		}
	}()
	h(ctx, e)
}
