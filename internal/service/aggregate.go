package service

import (
	"github.com/saturnino-fabrica-de-software/veritas/internal/domain"
)

// fullKYCStages is the fixed order in which a full_kyc request is analyzed.
var fullKYCStages = []domain.StageName{
	domain.StageDocument,
	domain.StageFace,
	domain.StageLiveness,
}

// Aggregate folds the stage results and the risk assessment into an outcome
// and the reason codes of every failing gate.
//
// A stage that ran and failed a gate is a hard failure and rejects. An
// errored stage, a critical pattern or a risk score at or above
// criticalScore (when positive) withholds approval and sends the request to
// review. Approval needs all three stages present and passed.
func Aggregate(results []domain.StageResult, assessment domain.RiskAssessment, criticalScore int) (domain.Outcome, []domain.ReasonCode) {
	reasons := newReasonSet()

	var hardFailure, analyzerFailure bool
	for _, r := range results {
		reasons.add(r.FailedGates...)

		switch {
		case r.Passed:
		case r.Errored():
			analyzerFailure = true
		default:
			hardFailure = true
		}
	}

	riskBlocked := false
	if assessment.HasCritical() {
		reasons.add(domain.ReasonRiskCriticalPattern)
		riskBlocked = true
	}
	if criticalScore > 0 && assessment.RiskScore >= criticalScore {
		reasons.add(domain.ReasonRiskScoreExceeded)
		riskBlocked = true
	}

	switch {
	case hardFailure:
		return domain.OutcomeRejected, reasons.list()
	case analyzerFailure, riskBlocked:
		return domain.OutcomeNeedsReview, reasons.list()
	case !allStagesPassed(results):
		// missing stage: never approve on partial evidence
		return domain.OutcomeNeedsReview, reasons.list()
	default:
		return domain.OutcomeApproved, reasons.list()
	}
}

func allStagesPassed(results []domain.StageResult) bool {
	for _, name := range fullKYCStages {
		found := false
		for _, r := range results {
			if r.Stage == name {
				if !r.Passed {
					return false
				}
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// reasonSet keeps reason codes unique and in first-seen order.
type reasonSet struct {
	seen  map[domain.ReasonCode]struct{}
	order []domain.ReasonCode
}

func newReasonSet() *reasonSet {
	return &reasonSet{seen: make(map[domain.ReasonCode]struct{})}
}

func (s *reasonSet) add(codes ...domain.ReasonCode) {
	for _, c := range codes {
		if _, ok := s.seen[c]; ok {
			continue
		}
		s.seen[c] = struct{}{}
		s.order = append(s.order, c)
	}
}

func (s *reasonSet) list() []domain.ReasonCode {
	out := make([]domain.ReasonCode, len(s.order))
	copy(out, s.order)
	return out
}
