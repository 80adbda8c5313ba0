// Package api exposes the HTTP interface for the ingestion service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/hadith-ingest/internal/config"
	"github.com/JakeFAU/hadith-ingest/internal/corpus"
	"github.com/JakeFAU/hadith-ingest/internal/ingest"
	"github.com/JakeFAU/hadith-ingest/internal/metrics"
	"github.com/JakeFAU/hadith-ingest/internal/store"
)

const (
	requestTimeout = 60 * time.Second
	triggerTimeout = 5 * time.Second
)

// JobStarter accepts ingestion triggers. An empty mode means the
// configured default source.
type JobStarter interface {
	Start(ctx context.Context, slug string, mode ingest.SourceMode) (string, error)
}

// StatusReporter summarizes what the store holds per collection.
type StatusReporter interface {
	Report(ctx context.Context) ([]ingest.CollectionStatus, error)
}

// Deps are the collaborators the handlers read from and write to.
type Deps struct {
	Jobs     JobStarter
	Progress ProgressSource
	Status   StatusReporter
	Catalog  *corpus.Catalog
	// Runs is optional; the run history routes answer 503 without it.
	Runs store.RunRepository
	// Ready is optional; readyz answers 503 while it returns an error.
	Ready  func(ctx context.Context) error
	Logger *zap.Logger
}

// Server wires HTTP handlers to the job manager and stores.
type Server struct {
	router   chi.Router
	deps     Deps
	progress *ProgressHandler
	runs     *RunHandler
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config) (*Server, error) {
	if deps.Jobs == nil {
		return nil, errors.New("job starter is required")
	}
	if deps.Progress == nil {
		return nil, errors.New("progress source is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		deps: deps,
		progress: NewProgressHandler(deps.Progress, StreamConfig{
			Interval:    cfg.StreamInterval(),
			MaxDuration: cfg.StreamMaxDuration(),
		}, logger.Named("progress")),
		runs:   NewRunHandler(deps.Runs, logger.Named("runs")),
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Get("/progress/stream", s.progress.Stream)
		r.Get("/progress/ws", s.progress.WebSocket)

		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(requestTimeout))
			r.Post("/ingest/{slug}", s.startIngest)
			r.Get("/collections", s.listCollections)
			r.Get("/status", s.status)
			r.Get("/progress", s.progress.List)
			r.Get("/progress/{slug}", s.progress.Get)
			r.Get("/runs", s.runs.ListRuns)
			r.Get("/runs/{run_id}", s.runs.GetRun)
		})
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// startIngest handles POST /v1/ingest/{slug}?source=auto|cdn|sunnah. The job
// ID is the slug.
func (s *Server) startIngest(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	mode, err := ingest.ParseSourceMode(r.URL.Query().Get("source"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), triggerTimeout)
	defer cancel()

	jobID, err := s.deps.Jobs.Start(ctx, slug, mode)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrUnknownCollection):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, ingest.ErrJobInFlight):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusServiceUnavailable, "job queue is full")
		default:
			s.logger.Error("start job failed", zap.String("collection", slug), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to start job")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) listCollections(w http.ResponseWriter, _ *http.Request) {
	entries := s.deps.Catalog.All()
	out := make([]collectionDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, collectionDTO{
			Slug:        e.Slug,
			NameEnglish: e.NameEnglish,
			NameArabic:  e.NameArabic,
			Compiler:    e.Compiler,
			Lifespan:    e.Lifespan,
			Featured:    e.Featured,
			Expected:    e.Expected,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": out})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	if s.deps.Status == nil {
		writeError(w, http.StatusServiceUnavailable, "status reporter unavailable")
		return
	}
	report, err := s.deps.Status.Report(r.Context())
	if err != nil {
		s.logger.Error("status report failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to build status report")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": report})
}

type collectionDTO struct {
	Slug        string `json:"slug"`
	NameEnglish string `json:"name_english"`
	NameArabic  string `json:"name_arabic"`
	Compiler    string `json:"compiler"`
	Lifespan    string `json:"lifespan"`
	Featured    bool   `json:"featured"`
	Expected    int    `json:"expected"`
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", requestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
