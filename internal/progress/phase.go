package progress

import "fmt"

// Phase is a job's position in the ingestion state machine.
type Phase string

// Phases in the order a successful job visits them. PhaseError is reachable
// from any non-terminal phase.
const (
	PhaseFetching Phase = "fetching"
	PhaseBooks    Phase = "books"
	PhaseHadiths  Phase = "hadiths"
	PhaseBackfill Phase = "backfill"
	PhaseTotals   Phase = "totals"
	PhaseDone     Phase = "done"
	PhaseError    Phase = "error"
)

var phaseOrder = map[Phase]int{
	PhaseFetching: 0,
	PhaseBooks:    1,
	PhaseHadiths:  2,
	PhaseBackfill: 3,
	PhaseTotals:   4,
	PhaseDone:     5,
}

// Terminal reports whether no further transitions are allowed.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseError
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	_, ok := phaseOrder[p]
	return ok || p == PhaseError
}

// CanTransition reports whether a job in phase from may move to phase to.
// Phases only move forward, and may not skip any step on the way to done.
func CanTransition(from, to Phase) bool {
	if from.Terminal() || !to.Valid() {
		return false
	}
	if to == PhaseError {
		return true
	}
	return phaseOrder[to] == phaseOrder[from]+1
}

// TransitionError reports a rejected phase change.
type TransitionError struct {
	From Phase
	To   Phase
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid phase transition %s -> %s", e.From, e.To)
}
