package telemetry

import (
	"log/slog"
)

// Metric names emitted by the pipeline.
const (
	MetricStageConfidence   = "stage_confidence"
	MetricStageFailure      = "stage_failure"
	MetricDecision          = "decision"
	MetricRiskScore         = "risk_score"
	MetricRiskPattern       = "risk_pattern"
	MetricReviewQuality     = "review_quality"
	MetricIssuance          = "credential_issuance"
	MetricPipelineDuration  = "pipeline_duration_seconds"
	MetricIssuanceRetryLoop = "issuance_retry_batch"
)

// counters are event counts: every Record adds its value. Everything else
// is a distribution.
var counters = map[string]bool{
	MetricStageFailure:  true,
	MetricDecision:      true,
	MetricRiskPattern:   true,
	MetricReviewQuality: true,
	MetricIssuance:      true,
}

// IsCounter reports whether name is recorded as a monotonic count.
func IsCounter(name string) bool {
	return counters[name]
}

// Sink receives named measurements. Record is fire-and-forget: it returns
// nothing, and implementations must not block the caller for long.
type Sink interface {
	Record(name string, value float64, tags map[string]string)
}

// Noop discards every measurement.
type Noop struct{}

func (Noop) Record(string, float64, map[string]string) {}

// Multi fans a measurement out to several sinks. A panic in one sink is
// recovered and logged, the remaining sinks still receive the measurement.
type Multi struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewMulti creates a fan-out sink
func NewMulti(logger *slog.Logger, sinks ...Sink) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{sinks: sinks, logger: logger.With("component", "telemetry")}
}

func (m *Multi) Record(name string, value float64, tags map[string]string) {
	for _, s := range m.sinks {
		m.recordOne(s, name, value, tags)
	}
}

func (m *Multi) recordOne(s Sink, name string, value float64, tags map[string]string) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("telemetry sink panicked", "metric", name, "panic", r)
		}
	}()
	s.Record(name, value, tags)
}

var (
	_ Sink = Noop{}
	_ Sink = (*Multi)(nil)
)
