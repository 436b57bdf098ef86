package telemetry

import (
	"context"
	"log/slog"
)

// SlogSink writes measurements as structured log lines.
type SlogSink struct {
	logger *slog.Logger
	level  slog.Level
}

// NewSlogSink creates a sink that logs at the given level
func NewSlogSink(logger *slog.Logger, level slog.Level) *SlogSink {
	return &SlogSink{logger: logger, level: level}
}

func (s *SlogSink) Record(name string, value float64, tags map[string]string) {
	attrs := make([]any, 0, 4+2*len(tags))
	attrs = append(attrs, "metric", name, "value", value)
	for k, v := range tags {
		attrs = append(attrs, "tag."+k, v)
	}
	s.logger.Log(context.Background(), s.level, "telemetry", attrs...)
}

var _ Sink = (*SlogSink)(nil)
