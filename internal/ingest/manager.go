package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hadith-ingest/internal/corpus"
	"github.com/JakeFAU/hadith-ingest/internal/metrics"
	"github.com/JakeFAU/hadith-ingest/internal/progress"
	"github.com/JakeFAU/hadith-ingest/internal/publisher"
)

const publishTimeout = 10 * time.Second

// CollectionRunner runs one collection job against a tracker.
type CollectionRunner interface {
	Run(ctx context.Context, entry corpus.Entry, mode SourceMode, tr *progress.Tracker) (Summary, error)
}

// ManagerConfig tunes a Manager.
type ManagerConfig struct {
	// JobTimeout bounds a single collection run. Zero means no bound.
	JobTimeout time.Duration
	// Topic receives a Completion per finished run when a publisher is set.
	Topic string
	// Source is used for triggers that name no source. Empty means auto.
	Source SourceMode
}

// ManagerDeps are the Manager's collaborators. Queue and Publisher are
// optional: without a queue, jobs run on their own goroutine.
type ManagerDeps struct {
	Catalog   *corpus.Catalog
	Runner    CollectionRunner
	Registry  *progress.Registry
	IDs       IDGenerator
	Clock     Clock
	Queue     Enqueuer
	Publisher publisher.Publisher
	Logger    *zap.Logger
}

// Manager accepts triggers and runs jobs. At most one job per collection is
// in flight; an "all" job excludes every other job.
type Manager struct {
	cfg  ManagerConfig
	deps ManagerDeps

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

// NewManager validates deps.
func NewManager(cfg ManagerConfig, deps ManagerDeps) (*Manager, error) {
	switch {
	case deps.Catalog == nil:
		return nil, errors.New("catalog is required")
	case deps.Runner == nil:
		return nil, errors.New("runner is required")
	case deps.Registry == nil:
		return nil, errors.New("progress registry is required")
	case deps.IDs == nil:
		return nil, errors.New("id generator is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Manager{cfg: cfg, deps: deps, inflight: map[string]struct{}{}}, nil
}

// Start accepts a trigger for slug or "all" and returns the job ID, which is
// the slug itself. The job runs asynchronously. An empty mode uses the
// configured default.
func (m *Manager) Start(ctx context.Context, slug string, mode SourceMode) (string, error) {
	if err := m.accept(slug); err != nil {
		return "", err
	}
	job := Job{Collection: slug, Source: mode.orDefault(m.cfg.Source), RequestedAt: m.deps.Clock.Now()}
	if m.deps.Queue != nil {
		if err := m.deps.Queue.Enqueue(ctx, job); err != nil {
			m.finish(slug)
			return "", fmt.Errorf("enqueue %s: %w", slug, err)
		}
		m.deps.Logger.Info("job queued", zap.String("collection", slug))
		return slug, nil
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_ = m.Execute(context.WithoutCancel(ctx), job)
	}()
	return slug, nil
}

// Run executes a trigger synchronously.
func (m *Manager) Run(ctx context.Context, slug string, mode SourceMode) error {
	if err := m.accept(slug); err != nil {
		return err
	}
	return m.Execute(ctx, Job{Collection: slug, Source: mode.orDefault(m.cfg.Source), RequestedAt: m.deps.Clock.Now()})
}

// Abandon releases the reservations of accepted jobs that will never run,
// such as those left in the queue at shutdown.
func (m *Manager) Abandon(jobs ...Job) {
	for _, job := range jobs {
		m.deps.Logger.Warn("job dropped before it ran", zap.String("collection", job.Collection))
		metrics.ObserveJob("dropped")
		m.finish(job.Collection)
	}
}

// Wait blocks until goroutine-run jobs return.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// InFlight reports whether slug has a queued or running job.
func (m *Manager) InFlight(slug string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inflight[slug]
	return ok
}

// Execute runs an accepted job and releases its reservation. Workers call it
// for dequeued jobs.
func (m *Manager) Execute(ctx context.Context, job Job) error {
	defer m.finish(job.Collection)

	mode := job.Source.orDefault(m.cfg.Source)
	if job.Collection == corpus.AllCollections {
		return m.runAll(ctx, mode)
	}
	entry, ok := m.deps.Catalog.Lookup(job.Collection)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, job.Collection)
	}
	_, err := m.runOne(ctx, entry, mode)
	return err
}

func (m *Manager) runAll(ctx context.Context, mode SourceMode) error {
	var errs []error
	for _, entry := range m.deps.Catalog.All() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := m.runOne(ctx, entry, mode); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", entry.Slug, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) runOne(ctx context.Context, entry corpus.Entry, mode SourceMode) (Summary, error) {
	runID, err := m.deps.IDs.NewRunID()
	if err != nil {
		metrics.ObserveJob("error")
		return Summary{}, fmt.Errorf("mint run id: %w", err)
	}
	tr := m.deps.Registry.Begin(entry.Slug, runID)

	runCtx := ctx
	if m.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, m.cfg.JobTimeout)
		defer cancel()
	}
	sum, err := m.deps.Runner.Run(runCtx, entry, mode, tr)
	if err != nil {
		metrics.ObserveJob("error")
	} else {
		metrics.ObserveJob("success")
	}
	m.publish(ctx, newCompletion(sum, err))
	return sum, err
}

func (m *Manager) publish(ctx context.Context, c Completion) {
	if m.deps.Publisher == nil || m.cfg.Topic == "" {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	id, err := m.deps.Publisher.Publish(pubCtx, m.cfg.Topic, c)
	if err != nil {
		m.deps.Logger.Warn("failed to publish completion",
			zap.String("collection", c.Collection), zap.String("run_id", c.RunID), zap.Error(err))
		return
	}
	m.deps.Logger.Debug("completion published", zap.String("collection", c.Collection), zap.String("message_id", id))
}

// accept reserves slug and counts the job.
func (m *Manager) accept(slug string) error {
	if slug != corpus.AllCollections {
		if _, ok := m.deps.Catalog.Lookup(slug); !ok {
			metrics.ObserveJob("rejected")
			return fmt.Errorf("%w: %s", ErrUnknownCollection, slug)
		}
	}
	if err := m.reserve(slug); err != nil {
		metrics.ObserveJob("rejected")
		return err
	}
	metrics.ObserveJob("accepted")
	metrics.IncActiveJobs()
	return nil
}

func (m *Manager) reserve(slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inflight[corpus.AllCollections]; ok {
		return fmt.Errorf("%w: %s", ErrJobInFlight, corpus.AllCollections)
	}
	if _, ok := m.inflight[slug]; ok {
		return fmt.Errorf("%w: %s", ErrJobInFlight, slug)
	}
	if slug == corpus.AllCollections && len(m.inflight) > 0 {
		return fmt.Errorf("%w: another collection is running", ErrJobInFlight)
	}
	m.inflight[slug] = struct{}{}
	return nil
}

func (m *Manager) finish(slug string) {
	m.mu.Lock()
	delete(m.inflight, slug)
	m.mu.Unlock()
	metrics.DecActiveJobs()
}

// Completion is published once per finished collection run.
type Completion struct {
	Collection string  `json:"collection"`
	RunID      string  `json:"run_id"`
	Status     string  `json:"status"`
	Error      string  `json:"error,omitempty"`
	Summary    Summary `json:"summary"`
}

func newCompletion(sum Summary, err error) Completion {
	c := Completion{Collection: sum.Collection, RunID: sum.RunID, Status: string(progress.PhaseDone), Summary: sum}
	if err != nil {
		c.Status = string(progress.PhaseError)
		c.Error = err.Error()
	}
	return c
}

// Attributes routes completions by collection and status.
func (c Completion) Attributes() map[string]string {
	return map[string]string{"collection": c.Collection, "status": c.Status}
}
