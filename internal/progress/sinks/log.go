package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/hadith-ingest/internal/progress"
)

// LogSink writes one structured log line per event. Section and phase events
// log at debug; run boundaries and warnings log at info and above.
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

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID.String()),
			zap.String("collection", evt.Collection),
			zap.String("stage", string(evt.Stage)),
			zap.String("phase", string(evt.Phase)),
			zap.Int("inserted", evt.Counters.Inserted),
			zap.Int("updated", evt.Counters.Updated),
			zap.Int("warnings", evt.Counters.Warnings),
		}
		if evt.Section > 0 {
			fields = append(fields, zap.Int("section", evt.Section), zap.Int64("bytes", evt.Bytes))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if ce := s.logger.Check(levelFor(evt.Stage), "progress event"); ce != nil {
			ce.Write(fields...)
		}
	}
	return nil
}

func levelFor(stage progress.Stage) zapcore.Level {
	switch stage {
	case progress.StageRunError:
		return zapcore.ErrorLevel
	case progress.StageWarning:
		return zapcore.WarnLevel
	case progress.StageRunStart, progress.StageRunDone:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
