package domain

import "time"

// StageName identifies one analyzer of the pipeline.
type StageName string

const (
	StageDocument StageName = "document"
	StageFace     StageName = "face"
	StageLiveness StageName = "liveness"
)

// Well-known findings keys.
const (
	FindingError     = "error"
	FindingSkipped   = "skipped"
	FindingReasoning = "reasoning"
)

// StageResult is the immutable output of one analyzer.
type StageResult struct {
	Stage       StageName      `json:"stage"`
	Confidence  float64        `json:"confidence"`
	Passed      bool           `json:"passed"`
	Findings    map[string]any `json:"findings"`
	FailedGates []ReasonCode   `json:"failed_gates,omitempty"`
	EvaluatedAt time.Time      `json:"evaluated_at"`
}

// Errored reports whether the analyzer failed to produce a usable result
// (call error, timeout or malformed output).
func (r StageResult) Errored() bool {
	if r.Findings == nil {
		return false
	}
	v, ok := r.Findings[FindingError]
	if !ok {
		return false
	}
	s, isString := v.(string)
	return !isString || s != ""
}

// Skipped reports whether the stage never ran because of a short-circuit.
func (r StageResult) Skipped() bool {
	if r.Findings == nil {
		return false
	}
	v, _ := r.Findings[FindingSkipped].(bool)
	return v
}

// FailedResult builds the result of an analyzer that could not complete.
func FailedResult(stage StageName, code ReasonCode, cause error, at time.Time) StageResult {
	msg := "analysis failed"
	if cause != nil {
		msg = cause.Error()
	}
	return StageResult{
		Stage:      stage,
		Confidence: 0,
		Passed:     false,
		Findings: map[string]any{
			FindingError: msg,
		},
		FailedGates: []ReasonCode{code},
		EvaluatedAt: at.UTC(),
	}
}

// SkippedResult builds the placeholder result recorded for a stage that was
// not executed.
func SkippedResult(stage StageName, reason string, at time.Time) StageResult {
	return StageResult{
		Stage:      stage,
		Confidence: 0,
		Passed:     false,
		Findings: map[string]any{
			FindingSkipped:   true,
			FindingReasoning: reason,
		},
		FailedGates: []ReasonCode{ReasonStagesSkipped},
		EvaluatedAt: at.UTC(),
	}
}
