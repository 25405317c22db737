package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 2,
		FlushInterval:  time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageAnalysisStart))
	hub.Emit(sampleEvent(StageProgress))
	require.Eventually(t, func() bool {
		batches := sink.Batches()
		return len(batches) == 1 && len(batches[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHubFlushOnInterval(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 10,
		FlushInterval:  20 * time.Millisecond,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageAnalysisStart))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHubEmitNeverBlocks(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		cfg:    Config{Logger: zap.NewNop()},
		events: make(chan Event),
	}
	start := time.Now()
	hub.Emit(sampleEvent(StageAnalysisStart))
	hub.Emit(sampleEvent(StageAnalysisStart))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{MaxBatchEvents: 1}, sink)
	hub.Emit(Event{Stage: StageAnalysisStart})
	hub.Emit(Event{AnalysisID: "a", TS: time.Now(), Stage: StageReviewPage})
	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.Batches())
	require.True(t, sink.Closed())
}

func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 100,
		FlushInterval:  time.Minute,
	}, sink)

	hub.Emit(sampleEvent(StageAnalysisDone))

	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.Len(t, sink.Batches()[0], 1)

	// Emitting after close is a no-op and closing again is safe.
	hub.Emit(sampleEvent(StageAnalysisDone))
	require.NoError(t, hub.Close(context.Background()))
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	valid := sampleEvent(StageReviewPage)
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Event)
		want   string
	}{
		{"missing id", func(e *Event) { e.AnalysisID = "" }, "analysis id"},
		{"missing ts", func(e *Event) { e.TS = time.Time{} }, "timestamp"},
		{"unknown stage", func(e *Event) { e.Stage = "NOPE" }, "unknown stage"},
		{"page without platform", func(e *Event) { e.Platform = "" }, "platform"},
		{"progress overflow", func(e *Event) { e.Progress = 101 }, "out of range"},
		{"negative duration", func(e *Event) { e.Dur = -time.Second }, "duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			evt := valid
			tt.mutate(&evt)
			require.ErrorContains(t, evt.Validate(), tt.want)
		})
	}

	require.True(t, sampleEvent(StageAnalysisError).Terminal())
	require.False(t, sampleEvent(StageProgress).Terminal())
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func newStubSink() *stubSink {
	return &stubSink{}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}

func (s *stubSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func sampleEvent(stage Stage) Event {
	return Event{
		AnalysisID: "analysis_test",
		TS:         time.Now(),
		Stage:      stage,
		Platform:   "coupang",
		Progress:   42,
	}
}
