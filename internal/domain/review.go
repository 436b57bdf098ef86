package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReviewInput is the human decision over a needs_review request.
type ReviewInput struct {
	RequestID    uuid.UUID `json:"request_id"`
	HumanApprove bool      `json:"human_approve"`
	ReviewerID   string    `json:"reviewer_id"`
	Note         string    `json:"note,omitempty"`
}

// ReviewQuality classifies how the human verdict relates to the AI verdict.
type ReviewQuality string

const (
	ReviewAgreement     ReviewQuality = "agreement"
	ReviewFalsePositive ReviewQuality = "false_positive"
	ReviewFalseNegative ReviewQuality = "false_negative"
	ReviewAdjudicated   ReviewQuality = "adjudicated"
)

// ReviewRecord is stored next to the AI decision, never replacing it.
type ReviewRecord struct {
	ID           uuid.UUID     `json:"id"`
	RequestID    uuid.UUID     `json:"request_id"`
	AIOutcome    Outcome       `json:"ai_outcome"`
	HumanApprove bool          `json:"human_approve"`
	FinalOutcome Outcome       `json:"final_outcome"`
	ReviewerID   string        `json:"reviewer_id"`
	Note         string        `json:"note,omitempty"`
	Quality      ReviewQuality `json:"quality"`
	ReviewedAt   time.Time     `json:"reviewed_at"`
}
