package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/review-analyzer/internal/progress"
)

// LogSink writes each progress event as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event. Terminal errors log at warn level, page events at debug.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("analysis_id", evt.AnalysisID),
			zap.String("stage", string(evt.Stage)),
			zap.String("platform", evt.Platform),
			zap.String("status", evt.Status),
			zap.Int("progress", evt.Progress),
			zap.Int("reviews", evt.Reviews),
			zap.Duration("dur", evt.Dur),
			zap.String("note", evt.Note),
		}
		switch evt.Stage {
		case progress.StageAnalysisError:
			s.logger.Warn("progress event", fields...)
		case progress.StageReviewPage, progress.StageProgress:
			s.logger.Debug("progress event", fields...)
		default:
			s.logger.Info("progress event", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
