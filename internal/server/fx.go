// Package server provides the application composition root.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/hadith-ingest/internal/api"
	"github.com/JakeFAU/hadith-ingest/internal/archive"
	"github.com/JakeFAU/hadith-ingest/internal/clock/system"
	"github.com/JakeFAU/hadith-ingest/internal/config"
	"github.com/JakeFAU/hadith-ingest/internal/corpus"
	"github.com/JakeFAU/hadith-ingest/internal/dispatcher"
	"github.com/JakeFAU/hadith-ingest/internal/fetcher"
	collyfetcher "github.com/JakeFAU/hadith-ingest/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/hadith-ingest/internal/fetcher/headless"
	"github.com/JakeFAU/hadith-ingest/internal/hash/sha256"
	"github.com/JakeFAU/hadith-ingest/internal/headless/detector"
	"github.com/JakeFAU/hadith-ingest/internal/id/uuid"
	"github.com/JakeFAU/hadith-ingest/internal/ingest"
	"github.com/JakeFAU/hadith-ingest/internal/logging"
	"github.com/JakeFAU/hadith-ingest/internal/metrics"
	"github.com/JakeFAU/hadith-ingest/internal/policy/ratelimit"
	"github.com/JakeFAU/hadith-ingest/internal/progress"
	progresssinks "github.com/JakeFAU/hadith-ingest/internal/progress/sinks"
	"github.com/JakeFAU/hadith-ingest/internal/publisher"
	memorypublisher "github.com/JakeFAU/hadith-ingest/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/hadith-ingest/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/hadith-ingest/internal/queue/memory"
	"github.com/JakeFAU/hadith-ingest/internal/source"
	"github.com/JakeFAU/hadith-ingest/internal/source/cdn"
	"github.com/JakeFAU/hadith-ingest/internal/source/sunnah"
	gcsstorage "github.com/JakeFAU/hadith-ingest/internal/storage/gcs"
	localstorage "github.com/JakeFAU/hadith-ingest/internal/storage/local"
	memoryStorage "github.com/JakeFAU/hadith-ingest/internal/storage/memory"
	pgstore "github.com/JakeFAU/hadith-ingest/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/hadith-ingest/internal/storage/sqlite"
	"github.com/JakeFAU/hadith-ingest/internal/store"
	"github.com/JakeFAU/hadith-ingest/internal/worker"
)

// App contains the application's dependencies.
type App struct {
	cfg             config.Config
	logger          *zap.Logger
	catalog         *corpus.Catalog
	corpusStore     store.CorpusStore
	runs            store.RunRepository
	registry        *progress.Registry
	progressHub     *progress.Hub
	manager         *ingest.Manager
	status          *ingest.StatusReporter
	apiServer       *api.Server
	dispatch        *dispatcher.Dispatcher
	queue           *queueMemory.Queue
	headless        *headlessfetcher.Fetcher
	pubsubClient    *pubsub.Client
	pubsubPublisher *pubsub.Publisher
	publisher       publisher.Publisher
	storage         *storage.Client
	ready           func(context.Context) error
	closeStore      func()
	closeOnce       sync.Once
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	type SanitizedConfig struct {
		ServerPort int    `json:"server_port"`
		Store      string `json:"store"`
		Archive    string `json:"archive"`
		Workers    int    `json:"workers"`
	}
	safeCfg := SanitizedConfig{
		ServerPort: cfg.Server.Port,
		Store:      cfg.Store.Driver,
		Archive:    cfg.Archive.Backend,
		Workers:    cfg.Ingest.Workers,
	}
	logger.Info("Creating application", zap.Any("config", safeCfg))
	return &App{
		cfg:     cfg,
		logger:  logger,
		catalog: corpus.DefaultCatalog(),
	}, nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Catalog returns the known collections.
func (a *App) Catalog() *corpus.Catalog {
	return a.catalog
}

// Manager returns the job manager.
func (a *App) Manager() *ingest.Manager {
	return a.manager
}

// Registry returns the live progress registry.
func (a *App) Registry() *progress.Registry {
	return a.registry
}

// Status returns the store status reporter.
func (a *App) Status() *ingest.StatusReporter {
	return a.status
}

// Ingest runs slug (or "all") to completion on the calling goroutine. An
// empty mode uses ingest.source.
func (a *App) Ingest(ctx context.Context, slug string, mode ingest.SourceMode) error {
	return a.manager.Run(ctx, slug, mode)
}

// Progress returns the live snapshot of every tracked job.
func (a *App) Progress() map[string]progress.Snapshot {
	return a.registry.Snapshot()
}

// Report returns the stored completeness of every catalog collection.
func (a *App) Report(ctx context.Context) ([]ingest.CollectionStatus, error) {
	return a.status.Report(ctx)
}

// Run serves HTTP and drains the job queue until the context is canceled or
// the process receives SIGINT/SIGTERM.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started", zap.Int("workers", a.dispatch.Size()))
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.queue.Close()
	<-dispatchDone
	a.manager.Abandon(a.queue.Drain()...)
	a.manager.Wait()

	return a.Close(shutdownCtx)
}

// Close gracefully shuts down the application. Later calls are no-ops.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		if a.queue != nil {
			left := a.queue.Drain()
			if a.manager != nil {
				a.manager.Abandon(left...)
			}
		}
		a.closeInfrastructure(ctx)
		a.logger.Info("shutdown complete")
		if err := a.logger.Sync(); err != nil {
			a.logger.Debug("logger sync failed", zap.Error(err))
		}
	})
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.headless != nil {
		a.headless.Close()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("publisher close failed", zap.Error(err))
		}
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.closeStore != nil {
		a.closeStore()
	}
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
		Service:     "hadith-ingest",
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}
	if err := app.build(ctx, prometheus.DefaultRegisterer); err != nil {
		_ = app.Close(ctx)
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context, reg prometheus.Registerer) error {
	a.logger.Info("building application dependencies")
	clock := system.New()

	if err := setupStore(ctx, a); err != nil {
		return err
	}
	archiver, err := setupArchive(ctx, a)
	if err != nil {
		return err
	}
	if err := setupPublisher(ctx, a); err != nil {
		return err
	}
	emitter, err := setupProgress(ctx, a, reg)
	if err != nil {
		return err
	}
	a.registry = progress.NewRegistry(progress.RegistryConfig{
		TTL:         a.cfg.ProgressTTL(),
		MaxWarnings: a.cfg.Progress.MaxWarnings,
		Clock:       clock,
		Emitter:     emitter,
	})

	structured, unstructured, err := setupSources(a, clock)
	if err != nil {
		return err
	}
	runner, err := ingest.NewRunner(ingest.RunnerConfig{
		Writer: ingest.WriterConfig{
			BatchSize:  a.cfg.Ingest.BatchSize,
			BatchDelay: a.cfg.BatchDelay(),
		},
		MaxSections:   a.cfg.Ingest.MaxSections,
		MissThreshold: a.cfg.Ingest.MissThreshold,
	}, a.corpusStore, structured, unstructured, archiver, clock, a.logger.Named("runner"))
	if err != nil {
		return fmt.Errorf("runner init failed: %w", err)
	}

	if err := setupDispatcher(a, runner, clock); err != nil {
		return err
	}
	a.status = ingest.NewStatusReporter(a.catalog, a.corpusStore)

	a.apiServer, err = api.NewServer(api.Deps{
		Jobs:     a.manager,
		Progress: a.registry,
		Status:   a.status,
		Catalog:  a.catalog,
		Runs:     a.runs,
		Ready:    a.ready,
		Logger:   a.logger.Named("api"),
	}, a.cfg)
	if err != nil {
		return fmt.Errorf("api init failed: %w", err)
	}
	return nil
}

func setupStore(ctx context.Context, app *App) error {
	switch app.cfg.Store.Driver {
	case config.DriverPostgres:
		pool, err := pgstore.Connect(ctx, pgstore.Config{
			DSN:             app.cfg.Store.DSN,
			MaxConns:        app.cfg.Store.MaxConns,
			MinConns:        app.cfg.Store.MinConns,
			MaxConnLifetime: app.cfg.Store.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
		app.closeStore = pool.Close
		app.ready = pool.Ping
		if app.cfg.Store.Migrate {
			if err := pgstore.Migrate(ctx, pool); err != nil {
				return fmt.Errorf("postgres migrate failed: %w", err)
			}
		}
		corpusStore, err := pgstore.NewCorpusStore(pool)
		if err != nil {
			return fmt.Errorf("corpus store init failed: %w", err)
		}
		runs, err := pgstore.NewRunStore(pool)
		if err != nil {
			return fmt.Errorf("run store init failed: %w", err)
		}
		app.corpusStore, app.runs = corpusStore, runs
		app.logger.Info("using postgres store")
	case config.DriverSQLite:
		corpusStore, err := sqlitestore.Open(ctx, app.cfg.Store.DSN)
		if err != nil {
			return fmt.Errorf("sqlite init failed: %w", err)
		}
		app.closeStore = func() {
			if err := corpusStore.Close(); err != nil {
				app.logger.Warn("sqlite close failed", zap.Error(err))
			}
		}
		app.corpusStore = corpusStore
		app.runs = memoryStorage.NewRunStore()
		app.logger.Info("using sqlite store", zap.String("path", app.cfg.Store.DSN))
	default:
		app.logger.Warn("using in-memory store; data is lost on exit")
		app.corpusStore = memoryStorage.NewCorpusStore()
		app.runs = memoryStorage.NewRunStore()
	}
	return nil
}

func setupArchive(ctx context.Context, app *App) (ingest.Archiver, error) {
	var (
		blobs archive.BlobStore
		err   error
	)
	switch app.cfg.Archive.Backend {
	case config.ArchiveGCS:
		app.logger.Info("using GCS archive backend")
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobs, err = gcsstorage.New(app.storage, gcsstorage.Config{
			Bucket: app.cfg.Archive.Bucket,
			Prefix: app.cfg.Archive.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Debug("GCS archive backend", zap.String("bucket", app.cfg.Archive.Bucket))
	case config.ArchiveLocal:
		app.logger.Info("using local archive backend")
		blobs, err = localstorage.New(app.cfg.Archive.Local)
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Debug("local archive backend", zap.String("path", app.cfg.Archive.Local.BaseDir))
	case config.ArchiveMemory:
		app.logger.Info("using in-memory archive backend")
		blobs = memoryStorage.NewBlobStore()
	default:
		app.logger.Info("payload archive disabled")
		return nil, nil
	}
	archiver, err := archive.New(blobs, sha256.New(), app.logger.Named("archive"))
	if err != nil {
		return nil, fmt.Errorf("archiver init failed: %w", err)
	}
	return archiver, nil
}

func setupPublisher(ctx context.Context, app *App) error {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Warn("No Pub/Sub topic configured, using in-memory publisher")
		app.publisher = memorypublisher.New()
		return nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubPublisher = app.pubsubClient.Publisher(app.cfg.PubSub.TopicName)
	app.logger.Info(
		"Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	app.publisher = gcppublisher.New(app.pubsubPublisher)
	return nil
}

func setupProgress(ctx context.Context, app *App, reg prometheus.Registerer) (progress.Emitter, error) {
	sinkList := []progress.Sink{
		progresssinks.NewStoreSink(app.runs, app.logger.Named("progress_store")),
	}
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("prometheus sink init failed: %w", err)
	}
	sinkList = append(sinkList, promSink)
	if app.cfg.Progress.LogEnabled {
		sinkList = append(sinkList, progresssinks.NewLogSink(app.logger.Named("progress_log")))
		app.logger.Debug("Added progress log sink")
	}
	hubCfg := progress.HubConfig{
		BufferSize:     app.cfg.Progress.BufferSize,
		MaxBatchEvents: app.cfg.Progress.Batch.MaxEvents,
		MaxBatchWait:   time.Duration(app.cfg.Progress.Batch.MaxWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(app.cfg.Progress.SinkTimeoutMs) * time.Millisecond,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         app.logger.Named("progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return app.progressHub, nil
}

// setupSources builds one HTTP client per adapter over a shared fetcher,
// limiter and retry policy.
func setupSources(app *App, clock *system.Clock) (source.Adapter, source.Adapter, error) {
	probe := collyfetcher.New(collyfetcher.Config{
		UserAgent: app.cfg.Source.UserAgent,
		Timeout:   app.cfg.RequestTimeout(),
	})
	var headless fetcher.Fetcher
	if app.cfg.Headless.Enabled {
		hf, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       app.cfg.Headless.MaxParallel,
			UserAgent:         sunnah.BrowserUserAgent,
			NavigationTimeout: time.Duration(app.cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			app.logger.Warn("headless fetcher init failed", zap.Error(err))
		} else {
			app.headless = hf
			headless = hf
			app.logger.Info("using headless fetcher", zap.Int("max_parallel", app.cfg.Headless.MaxParallel))
		}
	}
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   app.cfg.Source.RPS,
		DefaultBurst: app.cfg.Source.Burst,
	})
	retry := source.NewRetryPolicy(source.RetryConfig{
		MaxAttempts: app.cfg.Source.MaxRetries + 1,
		BaseDelay:   time.Duration(app.cfg.Source.BackoffInitialMs) * time.Millisecond,
		MaxDelay:    time.Duration(app.cfg.Source.BackoffMaxMs) * time.Millisecond,
		Logger:      app.logger.Named("retry"),
	})
	newClient := func(name string, withHeadless bool) *source.HTTPClient {
		c := &source.HTTPClient{
			Fetcher: probe,
			Limiter: limiter,
			Retry:   retry,
			Timeout: app.cfg.RequestTimeout(),
			Logger:  app.logger.Named(name),
			Now:     clock.Now,
		}
		if withHeadless && headless != nil {
			c.Headless = headless
			c.Detector = detector.NewHeuristic(app.cfg.Headless.PromotionThresh)
		}
		return c
	}
	app.logger.Info("sources configured",
		zap.String("cdn", app.cfg.Source.CDNBaseURL),
		zap.String("sunnah", app.cfg.Source.SunnahBaseURL),
		zap.Float64("rps", app.cfg.Source.RPS),
		zap.Int("max_retries", app.cfg.Source.MaxRetries),
	)
	structured := cdn.New(app.cfg.Source.CDNBaseURL, newClient("cdn", false))
	unstructured := sunnah.New(app.cfg.Source.SunnahBaseURL, newClient("sunnah", true))
	return structured, unstructured, nil
}

func setupDispatcher(app *App, runner ingest.CollectionRunner, clock *system.Clock) error {
	app.queue = queueMemory.NewQueue(app.cfg.Ingest.QueueDepth)

	// Workers resolve the manager lazily; it needs the dispatcher to exist first.
	var manager *ingest.Manager
	exec := worker.ExecutorFunc(func(ctx context.Context, job ingest.Job) error {
		return manager.Execute(ctx, job)
	})
	workers := make([]*worker.Worker, 0, app.cfg.Ingest.Workers)
	for i := range app.cfg.Ingest.Workers {
		workers = append(workers, worker.New(i, app.queue, exec, app.logger.Named("worker")))
	}
	app.dispatch = dispatcher.New(app.queue, workers)

	var err error
	manager, err = ingest.NewManager(ingest.ManagerConfig{
		JobTimeout: app.cfg.JobTimeout(),
		Topic:      app.cfg.PubSub.TopicName,
		Source:     ingest.SourceMode(app.cfg.Ingest.Source),
	}, ingest.ManagerDeps{
		Catalog:   app.catalog,
		Runner:    runner,
		Registry:  app.registry,
		IDs:       uuid.New(),
		Clock:     clock,
		Queue:     app.dispatch,
		Publisher: app.publisher,
		Logger:    app.logger.Named("manager"),
	})
	if err != nil {
		return fmt.Errorf("manager init failed: %w", err)
	}
	app.manager = manager
	app.logger.Info("job manager initialized",
		zap.Int("workers", app.cfg.Ingest.Workers),
		zap.Int("queue_depth", app.cfg.Ingest.QueueDepth),
		zap.Duration("job_timeout", app.cfg.JobTimeout()),
		zap.String("source", app.cfg.Ingest.Source),
	)
	return nil
}
