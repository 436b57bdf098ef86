package handler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/veritas/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/veritas/internal/domain"
	"github.com/saturnino-fabrica-de-software/veritas/internal/service"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// VerificationService interface for the orchestrator
type VerificationService interface {
	Submit(ctx context.Context, req *domain.VerificationRequest) (*domain.VerificationDecision, error)
	Get(ctx context.Context, id uuid.UUID) (*service.VerificationView, error)
	ResolveReview(ctx context.Context, in domain.ReviewInput) (*service.VerificationView, error)
}

// VerificationHandler handles verification requests and human reviews
type VerificationHandler struct {
	service VerificationService
	logger  *slog.Logger
}

// NewVerificationHandler creates a new VerificationHandler instance
func NewVerificationHandler(service VerificationService, logger *slog.Logger) *VerificationHandler {
	return &VerificationHandler{
		service: service,
		logger:  logger,
	}
}

// SubmitVerificationRequest is the body of POST /v1/verifications
type SubmitVerificationRequest struct {
	SubjectID            string     `json:"subject_id" validate:"required,max=256"`
	Tier                 string     `json:"tier" validate:"required,oneof=basic full_kyc"`
	StartedAt            *time.Time `json:"started_at" validate:"required_if=Tier full_kyc"`
	DocumentImageRef     string     `json:"document_image_ref" validate:"max=1024"`
	SelfieImageRef       string     `json:"selfie_image_ref" validate:"max=1024"`
	LivenessFrameRefs    []string   `json:"liveness_frame_refs" validate:"max=600,dive,required,max=1024"`
	LivenessSequenceRef  string     `json:"liveness_sequence_ref" validate:"max=1024"`
	ExpectedSteps        []string   `json:"expected_steps" validate:"max=10,dive,required,max=64"`
	PreviousAttemptCount int        `json:"previous_attempt_count" validate:"gte=0"`
}

// DecisionResponse is what a subject sees of a decision
type DecisionResponse struct {
	RequestID   string   `json:"request_id"`
	Outcome     string   `json:"outcome"`
	ReasonCodes []string `json:"reason_codes"`
	DecidedAt   string   `json:"decided_at"`
}

// StageSummary is the operator view of one stage
type StageSummary struct {
	Stage       string   `json:"stage"`
	Passed      bool     `json:"passed"`
	Confidence  float64  `json:"confidence"`
	Errored     bool     `json:"errored"`
	Skipped     bool     `json:"skipped"`
	FailedGates []string `json:"failed_gates,omitempty"`
}

// ReviewSummary is one human review of a request
type ReviewSummary struct {
	ReviewerID   string `json:"reviewer_id"`
	HumanApprove bool   `json:"human_approve"`
	FinalOutcome string `json:"final_outcome"`
	Quality      string `json:"quality"`
	Note         string `json:"note,omitempty"`
	ReviewedAt   string `json:"reviewed_at"`
}

// VerificationResponse is the response of GET /v1/verifications/:id
type VerificationResponse struct {
	RequestID   string          `json:"request_id"`
	SubjectID   string          `json:"subject_id"`
	Tier        string          `json:"tier"`
	Status      string          `json:"status"`
	AIOutcome   string          `json:"ai_outcome,omitempty"`
	ReasonCodes []string        `json:"reason_codes"`
	RiskScore   int             `json:"risk_score"`
	Patterns    []string        `json:"risk_patterns"`
	Stages      []StageSummary  `json:"stages"`
	DecidedAt   string          `json:"decided_at,omitempty"`
	Reviews     []ReviewSummary `json:"reviews"`
}

// ReviewRequest is the body of POST /v1/verifications/:id/review
type ReviewRequest struct {
	HumanApprove *bool  `json:"human_approve" validate:"required"`
	Note         string `json:"note" validate:"max=2000"`
}

// Submit POST /v1/verifications - submit a request and run the pipeline
func (h *VerificationHandler) Submit(c *fiber.Ctx) error {
	var body SubmitVerificationRequest
	if err := c.BodyParser(&body); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}
	if err := validate.Struct(body); err != nil {
		return domain.ErrValidationFailed.WithError(err)
	}

	req := &domain.VerificationRequest{
		SubjectID:            body.SubjectID,
		Tier:                 domain.Tier(body.Tier),
		SubmittedAt:          time.Now().UTC(),
		DocumentImageRef:     body.DocumentImageRef,
		SelfieImageRef:       body.SelfieImageRef,
		LivenessFrameRefs:    body.LivenessFrameRefs,
		LivenessSequenceRef:  body.LivenessSequenceRef,
		ExpectedSteps:        body.ExpectedSteps,
		PreviousAttemptCount: body.PreviousAttemptCount,
	}
	if body.StartedAt != nil {
		req.StartedAt = body.StartedAt.UTC()
	}

	decision, err := h.service.Submit(c.UserContext(), req)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(toDecisionResponse(decision))
}

// Get GET /v1/verifications/:id - request status with decision and reviews
func (h *VerificationHandler) Get(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}

	view, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return err
	}

	return c.JSON(toVerificationResponse(view))
}

// Review POST /v1/verifications/:id/review - human verdict (reviewer JWT)
func (h *VerificationHandler) Review(c *fiber.Ctx) error {
	reviewerID, err := middleware.GetReviewerID(c)
	if err != nil {
		return err
	}

	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}

	var body ReviewRequest
	if err := c.BodyParser(&body); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}
	if err := validate.Struct(body); err != nil {
		return domain.ErrValidationFailed.WithError(err)
	}

	view, err := h.service.ResolveReview(c.UserContext(), domain.ReviewInput{
		RequestID:    id,
		HumanApprove: *body.HumanApprove,
		ReviewerID:   reviewerID,
		Note:         body.Note,
	})
	if err != nil {
		return err
	}

	return c.JSON(toVerificationResponse(view))
}

func parseUUIDParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, domain.ErrBadRequest.WithError(errors.New(name + " must be a UUID"))
	}
	return id, nil
}

func toDecisionResponse(d *domain.VerificationDecision) DecisionResponse {
	return DecisionResponse{
		RequestID:   d.RequestID.String(),
		Outcome:     string(d.Outcome),
		ReasonCodes: reasonStrings(d.ReasonCodes),
		DecidedAt:   d.DecidedAt.Format(time.RFC3339),
	}
}

func toVerificationResponse(v *service.VerificationView) VerificationResponse {
	resp := VerificationResponse{
		RequestID:   v.Request.ID.String(),
		SubjectID:   v.Request.SubjectID,
		Tier:        string(v.Request.Tier),
		Status:      string(v.Request.Status),
		ReasonCodes: []string{},
		Patterns:    []string{},
		Stages:      []StageSummary{},
		Reviews:     make([]ReviewSummary, 0, len(v.Reviews)),
	}

	if d := v.Decision; d != nil {
		resp.AIOutcome = string(d.Outcome)
		resp.ReasonCodes = reasonStrings(d.ReasonCodes)
		resp.RiskScore = d.RiskAssessment.RiskScore
		resp.DecidedAt = d.DecidedAt.Format(time.RFC3339)
		for _, p := range d.RiskAssessment.Patterns {
			resp.Patterns = append(resp.Patterns, string(p.Type))
		}
		for _, s := range d.StageResults {
			resp.Stages = append(resp.Stages, StageSummary{
				Stage:       string(s.Stage),
				Passed:      s.Passed,
				Confidence:  s.Confidence,
				Errored:     s.Errored(),
				Skipped:     s.Skipped(),
				FailedGates: reasonStrings(s.FailedGates),
			})
		}
	}

	for _, r := range v.Reviews {
		resp.Reviews = append(resp.Reviews, ReviewSummary{
			ReviewerID:   r.ReviewerID,
			HumanApprove: r.HumanApprove,
			FinalOutcome: string(r.FinalOutcome),
			Quality:      string(r.Quality),
			Note:         r.Note,
			ReviewedAt:   r.ReviewedAt.Format(time.RFC3339),
		})
	}

	return resp
}

func reasonStrings(codes []domain.ReasonCode) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = string(c)
	}
	return out
}
