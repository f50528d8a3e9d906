package queue

import (
	"context"
	"sync"
	"time"

	"cpjudge/internal/judge/model"
	appErr "cpjudge/pkg/errors"
)

// MemoryQueue is the in-process judge queue. It is unbounded; admission
// control happens at the intake.
type MemoryQueue struct {
	mu     sync.Mutex
	items  []model.JudgeRequest
	notify chan struct{}
	closed bool
}

// NewMemoryQueue creates an empty in-process queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{notify: make(chan struct{}, 1)}
}

// Enqueue appends a request and wakes one waiting consumer.
func (q *MemoryQueue) Enqueue(ctx context.Context, req model.JudgeRequest) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return appErr.New(appErr.QueueClosed)
	}
	q.items = append(q.items, req)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue pops the oldest request, waiting up to timeout for one to
// arrive.
func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (model.JudgeRequest, bool, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			req := q.items[0]
			q.items = q.items[1:]
			remaining := len(q.items)
			q.mu.Unlock()
			// Keep the wakeup token alive for other waiters.
			if remaining > 0 {
				select {
				case q.notify <- struct{}{}:
				default:
				}
			}
			return req, true, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return model.JudgeRequest{}, false, nil
		}

		select {
		case <-q.notify:
		case <-deadline.C:
			return model.JudgeRequest{}, false, nil
		case <-ctx.Done():
			return model.JudgeRequest{}, false, ctx.Err()
		}
	}
}

// Len returns the number of queued requests.
func (q *MemoryQueue) Len(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}

// Close stops accepting new requests. Queued items remain consumable so
// shutdown can drain.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}
