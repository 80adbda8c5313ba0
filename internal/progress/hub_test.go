package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHubFlushesFullBatch(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(HubConfig{BufferSize: 8, MaxBatchEvents: 2, MaxBatchWait: time.Minute}, sink)
	defer func() { require.NoError(t, hub.Close(context.Background())) }()

	hub.Emit(sampleEvent(StageRunStart))
	hub.Emit(sampleEvent(StagePhase))
	require.Eventually(t, func() bool {
		b := sink.Batches()
		return len(b) == 1 && len(b[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHubFlushesOnTimer(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(HubConfig{BufferSize: 4, MaxBatchEvents: 10, MaxBatchWait: 20 * time.Millisecond}, sink)
	defer func() { require.NoError(t, hub.Close(context.Background())) }()

	hub.Emit(sampleEvent(StageRunStart))
	require.Eventually(t, func() bool { return len(sink.Batches()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestHubDropsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(HubConfig{MaxBatchWait: time.Minute}, sink)

	hub.Emit(Event{Stage: StageRunStart})
	bad := sampleEvent(StageRunDone)
	bad.Phase = PhaseHadiths
	hub.Emit(bad)
	hub.Emit(sampleEvent(StageRunStart))

	require.NoError(t, hub.Close(context.Background()))
	batches := sink.Batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	require.True(t, sink.closed)
}

func TestHubEmitNeverBlocks(t *testing.T) {
	t.Parallel()

	// An unbuffered channel nobody reads from.
	hub := &Hub{events: make(chan Event), logger: zap.NewNop()}
	start := time.Now()
	hub.Emit(sampleEvent(StageRunStart))
	hub.Emit(sampleEvent(StageRunStart))
	require.Less(t, time.Since(start), 50*time.Millisecond)
	require.Equal(t, int64(2), hub.Dropped())
}

func TestHubSinkErrorDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	good := &recordingSink{}
	hub := NewHub(HubConfig{MaxBatchWait: time.Minute}, failingSink{}, good)
	hub.Emit(sampleEvent(StageRunStart))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, good.Batches(), 1)

	var nilHub *Hub
	nilHub.Emit(sampleEvent(StageRunStart))
	require.NoError(t, nilHub.Close(context.Background()))
}

func TestHubEmitAfterCloseIsIgnored(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(HubConfig{}, sink)
	require.NoError(t, hub.Close(context.Background()))
	hub.Emit(sampleEvent(StageRunStart))
	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.Batches())
}

type recordingSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func (s *recordingSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *recordingSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]Event(nil), s.batches...)
}

func (s *recordingSink) Events() []Event {
	var out []Event
	for _, b := range s.Batches() {
		out = append(out, b...)
	}
	return out
}

type failingSink struct{}

func (failingSink) Consume(context.Context, []Event) error { return errors.New("sink down") }
func (failingSink) Close(context.Context) error            { return nil }

func sampleEvent(stage Stage) Event {
	evt := Event{
		RunID:      uuid.New(),
		Collection: "alpha",
		TS:         time.Now(),
		Stage:      stage,
		Phase:      PhaseFetching,
	}
	switch stage {
	case StageRunDone:
		evt.Phase = PhaseDone
	case StageRunError:
		evt.Phase = PhaseError
	case StageSectionDone:
		evt.Section = 1
	}
	return evt
}
