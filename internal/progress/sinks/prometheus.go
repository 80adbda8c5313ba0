package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/hadith-ingest/internal/progress"
)

// PrometheusSink exports run-level ingestion metrics. Record counts per
// action are exported by internal/metrics at write time; this sink covers run
// lifecycle, phases and sections.
type PrometheusSink struct {
	runsStarted     *prometheus.CounterVec
	runsCompleted   *prometheus.CounterVec
	runsRunning     prometheus.Gauge
	runDuration     *prometheus.HistogramVec
	phaseEntered    *prometheus.CounterVec
	sectionsDone    *prometheus.CounterVec
	sectionBytes    *prometheus.CounterVec
	sectionDuration *prometheus.HistogramVec
	warnings        *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hadith_ingest_runs_started_total",
			Help: "Ingestion runs started, by collection.",
		}, []string{"collection"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hadith_ingest_runs_completed_total",
			Help: "Ingestion runs finished, by collection and result.",
		}, []string{"collection", "result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hadith_ingest_runs_running",
			Help: "Ingestion runs currently in progress.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hadith_ingest_run_duration_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 2400, 3600},
		}, []string{"result"}),
		phaseEntered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hadith_ingest_phase_transitions_total",
			Help: "Phase transitions, by phase.",
		}, []string{"phase"}),
		sectionsDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hadith_ingest_sections_total",
			Help: "Sections reconciled, by collection.",
		}, []string{"collection"}),
		sectionBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hadith_ingest_section_bytes_total",
			Help: "Payload bytes of reconciled sections, by collection.",
		}, []string{"collection"}),
		sectionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hadith_ingest_section_duration_seconds",
			Help:    "Time to reconcile and write one section.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"collection"}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hadith_ingest_warnings_total",
			Help: "Non-fatal warnings, by collection.",
		}, []string{"collection"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runDuration,
		s.phaseEntered,
		s.sectionsDone,
		s.sectionBytes,
		s.sectionDuration,
		s.warnings,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.WithLabelValues(evt.Collection).Inc()
		s.phaseEntered.WithLabelValues(string(evt.Phase)).Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StagePhase:
		s.phaseEntered.WithLabelValues(string(evt.Phase)).Inc()
	case progress.StageSectionDone:
		s.sectionsDone.WithLabelValues(evt.Collection).Inc()
		if evt.Bytes > 0 {
			s.sectionBytes.WithLabelValues(evt.Collection).Add(float64(evt.Bytes))
		}
		if evt.Dur > 0 {
			s.sectionDuration.WithLabelValues(evt.Collection).Observe(evt.Dur.Seconds())
		}
	case progress.StageWarning:
		s.warnings.WithLabelValues(evt.Collection).Inc()
	case progress.StageRunDone, progress.StageRunError:
		result := "success"
		if evt.Stage == progress.StageRunError {
			result = "error"
		}
		s.phaseEntered.WithLabelValues(string(evt.Phase)).Inc()
		s.runsCompleted.WithLabelValues(evt.Collection, result).Inc()
		if evt.Dur > 0 {
			s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
		}
		if s.tracker.complete(evt.RunID) {
			s.runsRunning.Dec()
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[uuid.UUID]struct{})}
}

func (t *runTracker) start(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
