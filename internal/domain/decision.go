package domain

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the only thing a subject ever sees.
type Outcome string

const (
	OutcomeApproved    Outcome = "approved"
	OutcomeRejected    Outcome = "rejected"
	OutcomeNeedsReview Outcome = "needs_review"
)

// Status returns the request status the outcome maps to.
func (o Outcome) Status() Status {
	return Status(o)
}

// ReasonCode is a machine-readable explanation of a failed gate.
type ReasonCode string

const (
	ReasonDocumentInvalid         ReasonCode = "DOCUMENT_INVALID"
	ReasonDocumentLowConfidence   ReasonCode = "DOCUMENT_LOW_CONFIDENCE"
	ReasonDocumentAnalysisFailed  ReasonCode = "DOCUMENT_ANALYSIS_FAILED"
	ReasonFaceMismatch            ReasonCode = "FACE_MISMATCH"
	ReasonFaceLowConfidence       ReasonCode = "FACE_LOW_CONFIDENCE"
	ReasonFaceAnalysisFailed      ReasonCode = "FACE_ANALYSIS_FAILED"
	ReasonLivenessLowConfidence   ReasonCode = "LIVENESS_LOW_CONFIDENCE"
	ReasonLivenessSpoofSuspected  ReasonCode = "LIVENESS_SPOOF_SUSPECTED"
	ReasonLivenessFaceNotDetected ReasonCode = "LIVENESS_FACE_NOT_DETECTED"
	ReasonLivenessNoMotion        ReasonCode = "LIVENESS_NO_MOTION"
	ReasonLivenessAnalysisFailed  ReasonCode = "LIVENESS_ANALYSIS_FAILED"
	ReasonStagesSkipped           ReasonCode = "STAGES_SKIPPED"
	ReasonRiskCriticalPattern     ReasonCode = "RISK_CRITICAL_PATTERN"
	ReasonRiskScoreExceeded       ReasonCode = "RISK_SCORE_EXCEEDED"
	ReasonSelfAttested            ReasonCode = "SELF_ATTESTED"
)

// VerificationDecision is the aggregated verdict over a request.
type VerificationDecision struct {
	RequestID      uuid.UUID      `json:"request_id"`
	SubjectID      string         `json:"subject_id"`
	Tier           Tier           `json:"tier"`
	Outcome        Outcome        `json:"outcome"`
	StageResults   []StageResult  `json:"stage_results"`
	RiskAssessment RiskAssessment `json:"risk_assessment"`
	DecidedAt      time.Time      `json:"decided_at"`
	ReasonCodes    []ReasonCode   `json:"reason_codes"`
}

// Stage returns the result of the named stage, if present.
func (d *VerificationDecision) Stage(name StageName) (StageResult, bool) {
	for _, r := range d.StageResults {
		if r.Stage == name {
			return r, true
		}
	}
	return StageResult{}, false
}

// EligibleForCredential reports whether the decision may be issued a credential.
func (d *VerificationDecision) EligibleForCredential() bool {
	return d.Outcome == OutcomeApproved && d.Tier == TierFullKYC
}
