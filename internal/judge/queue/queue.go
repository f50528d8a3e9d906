// Package queue provides the judge queue: a FIFO of judge requests shared
// between the intake, the task-info cache and the worker pool. The
// in-memory implementation is the default; a Redis-backed one exists for
// deployments that want the queue visible across sibling workers.
package queue

import (
	"context"
	"time"

	"cpjudge/internal/judge/model"
)

// Queue is a FIFO of judge requests.
type Queue interface {
	Enqueue(ctx context.Context, req model.JudgeRequest) error
	// Dequeue waits up to timeout for an item. ok is false on timeout.
	Dequeue(ctx context.Context, timeout time.Duration) (req model.JudgeRequest, ok bool, err error)
	// Len returns the number of queued items.
	Len(ctx context.Context) (int, error)
	Close() error
}
