package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/review-analyzer/internal/progress"
)

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	batch := []progress.Event{
		{AnalysisID: "a", TS: now, Stage: progress.StageAnalysisStart, Platform: "coupang"},
		{AnalysisID: "a", TS: now, Stage: progress.StageAnalysisStart, Platform: "coupang"},
		{AnalysisID: "b", TS: now, Stage: progress.StageAnalysisStart, Platform: "amazon"},
		{AnalysisID: "a", TS: now, Stage: progress.StageReviewPage, Platform: "coupang", Reviews: 10},
		{AnalysisID: "a", TS: now, Stage: progress.StageAnalysisDone, Platform: "coupang", Reviews: 12, Dur: 40 * time.Second},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.InDelta(t, 2.0, testutil.ToFloat64(sink.started.WithLabelValues("coupang")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.completed.WithLabelValues("success")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.running), 1e-9, "b is still running")
	require.InDelta(t, 12.0, testutil.ToFloat64(sink.reviews.WithLabelValues("coupang")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.runtime, "analyzer_analysis_runtime_seconds"))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{AnalysisID: "b", TS: now, Stage: progress.StageAnalysisError, Dur: time.Second},
		{AnalysisID: "b", TS: now, Stage: progress.StageAnalysisError},
	}))
	require.InDelta(t, 0.0, testutil.ToFloat64(sink.running), 1e-9)
	require.InDelta(t, 2.0, testutil.ToFloat64(sink.completed.WithLabelValues("error")), 1e-9)
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.ErrorContains(t, err, "register progress collector")
}

func TestLogSinkConsumesAllStages(t *testing.T) {
	t.Parallel()

	sink := NewLogSink(nil)
	now := time.Now()
	var batch []progress.Event
	for _, stage := range []progress.Stage{
		progress.StageAnalysisStart,
		progress.StageProgress,
		progress.StageReviewPage,
		progress.StageAnalysisDone,
		progress.StageAnalysisError,
	} {
		batch = append(batch, progress.Event{AnalysisID: "a", TS: now, Stage: stage, Platform: "coupang"})
	}
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.NoError(t, sink.Close(context.Background()))
}
