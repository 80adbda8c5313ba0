package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/JakeFAU/hadith-ingest/internal/progress"
)

const (
	defaultStreamInterval = time.Second
	defaultStreamClose    = 2 * time.Second
	defaultStreamMax      = time.Hour
	wsWriteTimeout        = 10 * time.Second
)

// ProgressSource is the read side of the live progress registry.
type ProgressSource interface {
	Get(collection string) (progress.Snapshot, bool)
	Snapshot() map[string]progress.Snapshot
	AllTerminal() bool
}

// StreamConfig tunes the progress push loop.
type StreamConfig struct {
	// Interval between pushes of the full progress map.
	Interval time.Duration
	// CloseAfter is how long the stream lingers once every tracked job is
	// terminal.
	CloseAfter time.Duration
	// MaxDuration caps one connection.
	MaxDuration time.Duration
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.Interval <= 0 {
		c.Interval = defaultStreamInterval
	}
	if c.CloseAfter <= 0 {
		c.CloseAfter = defaultStreamClose
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = defaultStreamMax
	}
	return c
}

// ProgressHandler exposes live job progress for polling and streaming.
type ProgressHandler struct {
	source   ProgressSource
	cfg      StreamConfig
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewProgressHandler wires the registry and logger.
func NewProgressHandler(source ProgressSource, cfg StreamConfig, logger *zap.Logger) *ProgressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHandler{
		source: source,
		cfg:    cfg.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		logger: logger,
	}
}

// List handles GET /v1/progress and returns {"jobs": {slug: snapshot}}.
func (h *ProgressHandler) List(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": h.source.Snapshot()})
}

// Get handles GET /v1/progress/{slug}. It returns 404 when no job for the
// collection is tracked, including one whose TTL has lapsed.
func (h *ProgressHandler) Get(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	snap, ok := h.source.Get(slug)
	if !ok {
		writeError(w, http.StatusNotFound, "no progress for collection")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Stream handles GET /v1/progress/stream as server-sent events. Each event is
// the full progress map.
func (h *ProgressHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	err := h.push(r.Context(), func(snaps map[string]progress.Snapshot) error {
		payload, err := json.Marshal(snaps)
		if err != nil {
			return fmt.Errorf("encode progress: %w", err)
		}
		if _, err := fmt.Fprintf(w, "event: progress\ndata: %s\n\n", payload); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		h.logger.Debug("progress stream ended", zap.Error(err))
	}
}

// WebSocket handles GET /v1/progress/ws. Each text message is the full
// progress map; client messages are ignored.
func (h *ProgressHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err = h.push(ctx, func(snaps map[string]progress.Snapshot) error {
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
		if err := conn.WriteJSON(snaps); err != nil {
			return fmt.Errorf("write message: %w", err)
		}
		return nil
	})
	if err != nil {
		h.logger.Debug("progress websocket ended", zap.Error(err))
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "all jobs finished")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// push sends the full map every Interval until the client leaves, the
// connection cap is reached, or every tracked job has been terminal for
// CloseAfter. It returns the send error, if any.
func (h *ProgressHandler) push(ctx context.Context, send func(map[string]progress.Snapshot) error) error {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.MaxDuration)
	defer cancel()
	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	var idleSince time.Time
	for {
		if err := send(h.source.Snapshot()); err != nil {
			return err
		}
		if h.source.AllTerminal() {
			if idleSince.IsZero() {
				idleSince = time.Now()
			} else if time.Since(idleSince) >= h.cfg.CloseAfter {
				return nil
			}
		} else {
			idleSince = time.Time{}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
