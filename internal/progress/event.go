package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the kind of milestone an Event records.
type Stage string

// Supported progress stages.
const (
	StageRunStart    Stage = "RUN_START"
	StagePhase       Stage = "PHASE"
	StageSectionDone Stage = "SECTION_DONE"
	StageWarning     Stage = "WARNING"
	StageRunDone     Stage = "RUN_DONE"
	StageRunError    Stage = "RUN_ERROR"
)

// Counters is the running tally carried on every event, so sinks can persist
// the latest snapshot without replaying history.
type Counters struct {
	Sections int `json:"sections"`
	Books    int `json:"books"`
	Total    int `json:"total"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Warnings int `json:"warnings"`
}

// Event captures one step of an ingestion run.
type Event struct {
	// RunID identifies a single execution of a job. Jobs are keyed by
	// collection; runs are not.
	RunID      uuid.UUID
	Collection string
	TS         time.Time
	Stage      Stage
	// Phase is the phase the job is in once the event is applied.
	Phase    Phase
	Section  int
	Counters Counters
	// Bytes is the payload size for SECTION_DONE events.
	Bytes int64
	// Dur is the section latency, or the run's wall time on terminal events.
	Dur  time.Duration
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.Collection == "" {
		return errors.New("collection is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StagePhase, StageWarning:
	case StageSectionDone:
		if e.Section <= 0 {
			return errors.New("section done requires a section number")
		}
	case StageRunDone:
		if e.Phase != PhaseDone {
			return fmt.Errorf("run done carries phase %q", e.Phase)
		}
	case StageRunError:
		if e.Phase != PhaseError {
			return fmt.Errorf("run error carries phase %q", e.Phase)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Terminal reports whether the event ends a run.
func (e Event) Terminal() bool {
	return e.Stage == StageRunDone || e.Stage == StageRunError
}
