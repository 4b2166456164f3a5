// Package sinks contains hub observers: structured logging and Prometheus
// export of the broadcast stream.
package sinks

import (
	"go.uber.org/zap"

	"github.com/acreleads/realtime-lead-engine/internal/broadcast"
)

// LogSink emits a structured log line for every published event. It is useful
// during development or audits since the event stream itself is not persisted.
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

// Observe logs the event using structured fields.
func (s *LogSink) Observe(evt broadcast.Event) {
	fields := []zap.Field{
		zap.String("type", string(evt.Type)),
		zap.String("job_id", evt.JobID),
		zap.Time("ts", evt.TS),
	}
	switch evt.Type {
	case broadcast.TypeStatusUpdate:
		fields = append(fields,
			zap.Int("processed_count", evt.ProcessedCount),
			zap.String("message", evt.Message),
		)
	case broadcast.TypeNewProperty:
		if evt.Property != nil {
			fields = append(fields, zap.String("owner", evt.Property.OwnerName))
		}
	case broadcast.TypeJobComplete:
		fields = append(fields, zap.Int("total_properties", evt.TotalProperties))
	}
	s.logger.Info("broadcast event", fields...)
}
