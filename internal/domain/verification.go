package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Tier is the strictness level requested by the subject.
type Tier string

const (
	// TierBasic é auto-declarado: nenhum estágio de IA roda.
	TierBasic Tier = "basic"
	// TierFullKYC exige documento, selfie e prova de vida.
	TierFullKYC Tier = "full_kyc"
)

// IsValid reports whether t is a known tier.
func (t Tier) IsValid() bool {
	return t == TierBasic || t == TierFullKYC
}

// Status is the lifecycle state of a VerificationRequest.
type Status string

const (
	StatusPending     Status = "pending"
	StatusAnalyzing   Status = "analyzing"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusNeedsReview Status = "needs_review"
)

// IsTerminal reports whether no further transition is possible.
// needs_review is semi-terminal and only leaves through a human review.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// allowedFrom lists, for every target status, the statuses it may be entered from.
var allowedFrom = map[Status][]Status{
	StatusAnalyzing:   {StatusPending},
	StatusApproved:    {StatusPending, StatusAnalyzing, StatusNeedsReview},
	StatusRejected:    {StatusAnalyzing, StatusNeedsReview},
	StatusNeedsReview: {StatusAnalyzing},
}

// AllowedFrom returns the statuses from which to may be entered.
func AllowedFrom(to Status) []Status {
	from := allowedFrom[to]
	out := make([]Status, len(from))
	copy(out, from)
	return out
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to Status) bool {
	for _, s := range allowedFrom[to] {
		if s == from {
			return true
		}
	}
	return false
}

// VerificationRequest representa uma submissão sob avaliação
type VerificationRequest struct {
	ID                   uuid.UUID `json:"id"`
	SubjectID            string    `json:"subject_id"`
	Tier                 Tier      `json:"tier"`
	StartedAt            time.Time `json:"started_at"`
	SubmittedAt          time.Time `json:"submitted_at"`
	DocumentImageRef     string    `json:"document_image_ref,omitempty"`
	SelfieImageRef       string    `json:"selfie_image_ref,omitempty"`
	LivenessFrameRefs    []string  `json:"liveness_frame_refs,omitempty"`
	LivenessSequenceRef  string    `json:"liveness_sequence_ref,omitempty"`
	ExpectedSteps        []string  `json:"expected_steps,omitempty"`
	PreviousAttemptCount int       `json:"previous_attempt_count"`
	Status               Status    `json:"status"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// HasLivenessCapture reports whether at least one liveness frame was supplied.
func (r *VerificationRequest) HasLivenessCapture() bool {
	if strings.TrimSpace(r.LivenessSequenceRef) != "" {
		return true
	}
	for _, ref := range r.LivenessFrameRefs {
		if strings.TrimSpace(ref) != "" {
			return true
		}
	}
	return false
}

// Validate checks the media required by the tier. It runs before any stage,
// and a failure is returned wrapped in ErrValidationFailed.
func (r *VerificationRequest) Validate() error {
	var problems []error

	if strings.TrimSpace(r.SubjectID) == "" {
		problems = append(problems, errors.New("subject_id is required"))
	}
	if !r.Tier.IsValid() {
		problems = append(problems, errors.New("tier must be basic or full_kyc"))
	}
	if r.PreviousAttemptCount < 0 {
		problems = append(problems, errors.New("previous_attempt_count cannot be negative"))
	}

	if r.Tier == TierFullKYC {
		if r.StartedAt.IsZero() {
			problems = append(problems, errors.New("full_kyc requires started_at"))
		}
		if strings.TrimSpace(r.DocumentImageRef) == "" {
			problems = append(problems, errors.New("full_kyc requires a document image"))
		}
		if strings.TrimSpace(r.SelfieImageRef) == "" {
			problems = append(problems, errors.New("full_kyc requires a selfie image"))
		}
		if !r.HasLivenessCapture() {
			problems = append(problems, errors.New("full_kyc requires at least one liveness frame"))
		}
		for i, ref := range r.LivenessFrameRefs {
			if strings.TrimSpace(ref) == "" {
				problems = append(problems, fmt.Errorf("liveness_frame_refs[%d] is blank", i))
			}
		}
	}

	if len(problems) > 0 {
		return ErrValidationFailed.WithError(errors.Join(problems...))
	}
	return nil
}
