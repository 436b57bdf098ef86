package risk

import "github.com/saturnino-fabrica-de-software/veritas/internal/domain"

// ClassifyReview compares the human verdict with the AI outcome.
// An AI approval rejected by a human is a false positive; an AI rejection
// approved by a human is a false negative. needs_review resolutions are
// adjudications, not disagreements.
func ClassifyReview(aiOutcome domain.Outcome, humanApprove bool) domain.ReviewQuality {
	switch {
	case aiOutcome == domain.OutcomeApproved && !humanApprove:
		return domain.ReviewFalsePositive
	case aiOutcome == domain.OutcomeRejected && humanApprove:
		return domain.ReviewFalseNegative
	case aiOutcome == domain.OutcomeNeedsReview:
		return domain.ReviewAdjudicated
	default:
		return domain.ReviewAgreement
	}
}
