// Package dispatcher fans queued ingestion jobs out to a fixed worker pool.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/hadith-ingest/internal/ingest"
	"github.com/JakeFAU/hadith-ingest/internal/worker"
)

// Dispatcher owns the job queue and the workers that drain it.
type Dispatcher struct {
	queue   ingest.Queue
	workers []*worker.Worker
}

var _ ingest.Enqueuer = (*Dispatcher)(nil)

// New creates a Dispatcher.
func New(queue ingest.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{queue: queue, workers: workers}
}

// Size reports the number of workers.
func (d *Dispatcher) Size() int {
	return len(d.workers)
}

// Run starts every worker and blocks until ctx finishes and each worker has
// returned from its current job.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Go(func() { w.Run(ctx) })
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue hands a job to the queue, blocking while it is full.
func (d *Dispatcher) Enqueue(ctx context.Context, job ingest.Job) error {
	if err := d.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("dispatch %s: %w", job.Collection, err)
	}
	return nil
}
