// Package memory provides the in-process job queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/hadith-ingest/internal/ingest"
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan ingest.Job
	closeMu sync.RWMutex
	closed  bool
}

var _ ingest.Queue = (*Queue)(nil)

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch: make(chan ingest.Job, capacity),
	}
}

// Enqueue pushes a job into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, job ingest.Job) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ingest.ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- job:
		return nil
	}
}

// Dequeue pops the next job, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (ingest.Job, error) {
	select {
	case <-ctx.Done():
		return ingest.Job{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case job, ok := <-q.ch:
		if !ok {
			return ingest.Job{}, ingest.ErrQueueClosed
		}
		return job, nil
	}
}

// Len reports how many jobs are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel for shutdown. Queued jobs can still be
// dequeued.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}

// Drain closes the queue and returns every job still waiting in it. Call it
// once workers have stopped dequeuing.
func (q *Queue) Drain() []ingest.Job {
	q.Close()
	var jobs []ingest.Job
	for job := range q.ch {
		jobs = append(jobs, job)
	}
	return jobs
}
