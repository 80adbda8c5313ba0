// Package worker implements the job execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hadith-ingest/internal/ingest"
)

// Executor runs one dequeued job. *ingest.Manager implements it.
type Executor interface {
	Execute(ctx context.Context, job ingest.Job) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, job ingest.Job) error

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, job ingest.Job) error {
	return f(ctx, job)
}

// Worker consumes queued jobs one at a time.
type Worker struct {
	id     int
	queue  ingest.Queue
	exec   Executor
	logger *zap.Logger
}

// New constructs a Worker.
func New(id int, queue ingest.Queue, exec Executor, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:     id,
		queue:  queue,
		exec:   exec,
		logger: logger.With(zap.Int("worker", id)),
	}
}

// Run blocks, consuming jobs until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ingest.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("collection", job.Collection))
		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job ingest.Job) {
	start := time.Now()
	err := w.execute(ctx, job)
	fields := []zap.Field{
		zap.String("collection", job.Collection),
		zap.Duration("duration", time.Since(start)),
		zap.Duration("queued_for", start.Sub(job.RequestedAt)),
	}
	if err != nil {
		w.logger.Error("job failed", append(fields, zap.Error(err))...)
		return
	}
	w.logger.Info("job finished", fields...)
}

// execute keeps a panicking job from taking the worker down.
func (w *Worker) execute(ctx context.Context, job ingest.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return w.exec.Execute(ctx, job)
}
