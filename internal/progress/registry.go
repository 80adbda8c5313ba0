package progress

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTTL is how long a finished job stays visible.
	DefaultTTL = time.Hour
	// DefaultMaxWarnings caps the warning messages kept per job. The warning
	// counter keeps counting past the cap.
	DefaultMaxWarnings = 500
)

// Clock supplies the registry's notion of now.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

// Snapshot is a point-in-time copy of one job's progress. Mutating it has no
// effect on the registry.
type Snapshot struct {
	Collection      string     `json:"collection"`
	RunID           string     `json:"run_id"`
	Phase           Phase      `json:"phase"`
	Message         string     `json:"message"`
	SectionsTotal   int        `json:"sections_total"`
	SectionsDone    int        `json:"sections_done"`
	BooksTotal      int        `json:"books_total"`
	BooksProcessed  int        `json:"books_processed"`
	HadithsTotal    int        `json:"hadiths_total"`
	HadithsInserted int        `json:"hadiths_inserted"`
	HadithsUpdated  int        `json:"hadiths_updated"`
	WarningCount    int        `json:"warning_count"`
	Errors          []string   `json:"errors"`
	Error           string     `json:"error,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// Terminal reports whether the job has finished.
func (s Snapshot) Terminal() bool {
	return s.Phase.Terminal()
}

func (s Snapshot) counters() Counters {
	return Counters{
		Sections: s.SectionsDone,
		Books:    s.BooksProcessed,
		Total:    s.HadithsTotal,
		Inserted: s.HadithsInserted,
		Updated:  s.HadithsUpdated,
		Warnings: s.WarningCount,
	}
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Errors = append([]string{}, s.Errors...)
	if s.FinishedAt != nil {
		at := *s.FinishedAt
		out.FinishedAt = &at
	}
	return out
}

// RegistryConfig wires a Registry.
type RegistryConfig struct {
	TTL         time.Duration
	MaxWarnings int
	Clock       Clock
	// Emitter receives an Event for every milestone. Nil disables emission.
	Emitter Emitter
}

// Registry holds the live progress of every job, keyed by collection slug. A
// new job for a slug replaces the previous entry; finished entries are
// evicted once TTL has passed since they finished.
type Registry struct {
	mu          sync.RWMutex
	jobs        map[string]*entry
	ttl         time.Duration
	maxWarnings int
	clock       Clock
	emitter     Emitter
}

type entry struct {
	runID uuid.UUID
	snap  Snapshot
}

// NewRegistry builds an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxWarnings <= 0 {
		cfg.MaxWarnings = DefaultMaxWarnings
	}
	if cfg.Clock == nil {
		cfg.Clock = wallClock{}
	}
	return &Registry{
		jobs:        make(map[string]*entry),
		ttl:         cfg.TTL,
		maxWarnings: cfg.MaxWarnings,
		clock:       cfg.Clock,
		emitter:     cfg.Emitter,
	}
}

// Begin registers a fresh job for collection in the fetching phase,
// overwriting whatever was tracked for it before.
func (r *Registry) Begin(collection string, runID uuid.UUID) *Tracker {
	now := r.clock.Now()
	e := &entry{
		runID: runID,
		snap: Snapshot{
			Collection: collection,
			RunID:      runID.String(),
			Phase:      PhaseFetching,
			Message:    fmt.Sprintf("Starting %s...", collection),
			Errors:     []string{},
			StartedAt:  now,
			UpdatedAt:  now,
		},
	}
	r.mu.Lock()
	r.jobs[collection] = e
	r.mu.Unlock()

	t := &Tracker{registry: r, entry: e}
	t.emit(Event{Stage: StageRunStart, Phase: PhaseFetching, TS: now})
	return t
}

// Get returns a copy of the job's progress, or false when the collection has
// no live entry.
func (r *Registry) Get(collection string) (Snapshot, bool) {
	r.evictExpired()
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.jobs[collection]
	if !ok {
		return Snapshot{}, false
	}
	return e.snap.clone(), true
}

// Snapshot copies every live entry.
func (r *Registry) Snapshot() map[string]Snapshot {
	r.evictExpired()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Snapshot, len(r.jobs))
	for slug, e := range r.jobs {
		out[slug] = e.snap.clone()
	}
	return out
}

// List returns live entries ordered by collection slug.
func (r *Registry) List() []Snapshot {
	all := r.Snapshot()
	out := make([]Snapshot, 0, len(all))
	for _, s := range all {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Collection < out[j].Collection })
	return out
}

// AllTerminal reports whether at least one job is tracked and every tracked
// job has finished.
func (r *Registry) AllTerminal() bool {
	snaps := r.Snapshot()
	if len(snaps) == 0 {
		return false
	}
	for _, s := range snaps {
		if !s.Terminal() {
			return false
		}
	}
	return true
}

// Running reports whether collection has a job that has not finished.
func (r *Registry) Running(collection string) bool {
	s, ok := r.Get(collection)
	return ok && !s.Terminal()
}

func (r *Registry) evictExpired() {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for slug, e := range r.jobs {
		if e.snap.FinishedAt != nil && now.Sub(*e.snap.FinishedAt) >= r.ttl {
			delete(r.jobs, slug)
		}
	}
}

// Tracker is a job's handle on its registry entry. Once the registry entry is
// replaced by a newer job, updates through an old Tracker no longer show up in
// the registry.
type Tracker struct {
	registry *Registry
	entry    *entry
}

// ErrFinished is returned when updating a job that already reached done or
// error.
var ErrFinished = errors.New("job already finished")

// RunID returns the run identifier assigned at Begin.
func (t *Tracker) RunID() uuid.UUID {
	return t.entry.runID
}

// Snapshot copies the tracker's current state.
func (t *Tracker) Snapshot() Snapshot {
	t.registry.mu.RLock()
	defer t.registry.mu.RUnlock()
	return t.entry.snap.clone()
}

// Advance moves the job to the next phase.
func (t *Tracker) Advance(to Phase, message string) error {
	if to == PhaseDone || to == PhaseError {
		return fmt.Errorf("use Done or Fail to finish a job: %w", &TransitionError{From: t.Snapshot().Phase, To: to})
	}
	return t.transition(to, message, "")
}

// Message replaces the human-readable status line.
func (t *Tracker) Message(message string) {
	t.update(func(s *Snapshot) { s.Message = message })
}

// SetSections records how many sections the job will process.
func (t *Tracker) SetSections(n int) {
	t.update(func(s *Snapshot) { s.SectionsTotal = n })
}

// SetBooks records how many books the job will process.
func (t *Tracker) SetBooks(n int) {
	t.update(func(s *Snapshot) { s.BooksTotal = n })
}

// BookProcessed counts one book as done.
func (t *Tracker) BookProcessed() {
	t.update(func(s *Snapshot) { s.BooksProcessed++ })
}

// AddCandidates counts records seen from the source.
func (t *Tracker) AddCandidates(n int) {
	t.update(func(s *Snapshot) { s.HadithsTotal += n })
}

// AddInserted counts created records.
func (t *Tracker) AddInserted(n int) {
	t.update(func(s *Snapshot) { s.HadithsInserted += n })
}

// AddUpdated counts updated records.
func (t *Tracker) AddUpdated(n int) {
	t.update(func(s *Snapshot) { s.HadithsUpdated += n })
}

// SectionDone counts a processed section and emits a SECTION_DONE event.
func (t *Tracker) SectionDone(section int, bytes int64, dur time.Duration) {
	snap, ok := t.update(func(s *Snapshot) { s.SectionsDone++ })
	if !ok {
		return
	}
	t.emit(Event{
		Stage:    StageSectionDone,
		Phase:    snap.Phase,
		Section:  section,
		Counters: snap.counters(),
		Bytes:    bytes,
		Dur:      dur,
		TS:       snap.UpdatedAt,
	})
}

// Warn records a non-fatal problem. The job's phase does not change.
func (t *Tracker) Warn(message string) {
	limit := t.registry.maxWarnings
	snap, ok := t.update(func(s *Snapshot) {
		s.WarningCount++
		if len(s.Errors) < limit {
			s.Errors = append(s.Errors, message)
		}
	})
	if !ok {
		return
	}
	t.emit(Event{Stage: StageWarning, Phase: snap.Phase, Counters: snap.counters(), Note: message, TS: snap.UpdatedAt})
}

// Warnf formats and records a warning.
func (t *Tracker) Warnf(format string, args ...any) {
	t.Warn(fmt.Sprintf(format, args...))
}

// Done finishes the job successfully. Only a job in the totals phase can
// finish.
func (t *Tracker) Done(message string) error {
	return t.transition(PhaseDone, message, "")
}

// Fail finishes the job with an error from any non-terminal phase.
func (t *Tracker) Fail(err error) error {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return t.transition(PhaseError, "Failed: "+msg, msg)
}

func (t *Tracker) transition(to Phase, message, failure string) error {
	r := t.registry
	now := r.clock.Now()

	r.mu.Lock()
	from := t.entry.snap.Phase
	if from.Terminal() {
		r.mu.Unlock()
		return ErrFinished
	}
	if !CanTransition(from, to) {
		r.mu.Unlock()
		return &TransitionError{From: from, To: to}
	}
	s := &t.entry.snap
	s.Phase = to
	if message != "" {
		s.Message = message
	}
	if failure != "" {
		s.Error = failure
	}
	s.UpdatedAt = now
	if to.Terminal() {
		at := now
		s.FinishedAt = &at
	}
	snap := s.clone()
	r.mu.Unlock()

	evt := Event{Stage: StagePhase, Phase: to, Counters: snap.counters(), TS: now, Note: message}
	switch to {
	case PhaseDone:
		evt.Stage = StageRunDone
		evt.Dur = now.Sub(snap.StartedAt)
	case PhaseError:
		evt.Stage = StageRunError
		evt.Dur = now.Sub(snap.StartedAt)
		evt.Note = failure
	}
	t.emit(evt)
	return nil
}

// update applies fn unless the job has finished, returning the new state.
func (t *Tracker) update(fn func(*Snapshot)) (Snapshot, bool) {
	r := t.registry
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.entry.snap.Phase.Terminal() {
		return Snapshot{}, false
	}
	fn(&t.entry.snap)
	t.entry.snap.UpdatedAt = now
	return t.entry.snap.clone(), true
}

func (t *Tracker) emit(evt Event) {
	if t.registry.emitter == nil {
		return
	}
	evt.RunID = t.entry.runID
	evt.Collection = t.entry.snap.Collection
	t.registry.emitter.Emit(evt)
}
