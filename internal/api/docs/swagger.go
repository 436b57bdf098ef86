package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// SubmitVerificationBody is the body of a verification submission
type SubmitVerificationBody struct {
	SubjectID            string   `json:"subject_id" example:"did:example:123"`
	Tier                 string   `json:"tier" example:"full_kyc"`
	StartedAt            string   `json:"started_at" example:"2026-01-01T12:00:00Z"`
	DocumentImageRef     string   `json:"document_image_ref" example:"media/doc-1.jpg"`
	SelfieImageRef       string   `json:"selfie_image_ref" example:"media/selfie-1.jpg"`
	LivenessFrameRefs    []string `json:"liveness_frame_refs" example:"media/frame-0.jpg"`
	LivenessSequenceRef  string   `json:"liveness_sequence_ref" example:""`
	ExpectedSteps        []string `json:"expected_steps" example:"blink"`
	PreviousAttemptCount int      `json:"previous_attempt_count" example:"0"`
}

// DecisionBody is the outcome returned to the subject
type DecisionBody struct {
	RequestID   string   `json:"request_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Outcome     string   `json:"outcome" example:"approved"`
	ReasonCodes []string `json:"reason_codes" example:"FACE_LOW_CONFIDENCE"`
	DecidedAt   string   `json:"decided_at" example:"2026-01-01T12:00:31Z"`
}

// StageBody summarizes one analyzer stage
type StageBody struct {
	Stage       string   `json:"stage" example:"liveness"`
	Passed      bool     `json:"passed" example:"true"`
	Confidence  float64  `json:"confidence" example:"87.5"`
	Errored     bool     `json:"errored" example:"false"`
	Skipped     bool     `json:"skipped" example:"false"`
	FailedGates []string `json:"failed_gates,omitempty" example:"LIVENESS_NO_MOTION"`
}

// ReviewBody is one recorded human review
type ReviewBody struct {
	ReviewerID   string `json:"reviewer_id" example:"ana"`
	HumanApprove bool   `json:"human_approve" example:"true"`
	FinalOutcome string `json:"final_outcome" example:"approved"`
	Quality      string `json:"quality" example:"adjudicated"`
	Note         string `json:"note,omitempty" example:"document checked by hand"`
	ReviewedAt   string `json:"reviewed_at" example:"2026-01-01T13:00:00Z"`
}

// VerificationBody is the operator view of a request
type VerificationBody struct {
	RequestID   string       `json:"request_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	SubjectID   string       `json:"subject_id" example:"did:example:123"`
	Tier        string       `json:"tier" example:"full_kyc"`
	Status      string       `json:"status" example:"needs_review"`
	AIOutcome   string       `json:"ai_outcome" example:"needs_review"`
	ReasonCodes []string     `json:"reason_codes" example:"FACE_ANALYSIS_FAILED"`
	RiskScore   int          `json:"risk_score" example:"3"`
	Patterns    []string     `json:"risk_patterns" example:"automated_submission"`
	Stages      []StageBody  `json:"stages"`
	DecidedAt   string       `json:"decided_at" example:"2026-01-01T12:00:31Z"`
	Reviews     []ReviewBody `json:"reviews"`
}

// ReviewInputBody is the human verdict over a request
type ReviewInputBody struct {
	HumanApprove bool   `json:"human_approve" example:"true"`
	Note         string `json:"note" example:"document checked by hand"`
}

// CredentialBody is the public view of a credential
type CredentialBody struct {
	RequestID         string `json:"request_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	SubjectID         string `json:"subject_id" example:"did:example:123"`
	Tier              string `json:"tier" example:"full_kyc"`
	Status            string `json:"status" example:"issued"`
	Revoked           bool   `json:"revoked" example:"false"`
	IssuerID          string `json:"issuer_id" example:"veritas"`
	CredentialHash    string `json:"credential_hash" example:"9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"`
	ExternalReceiptID string `json:"external_receipt_id" example:"rcpt_01H"`
	LastKYCAt         string `json:"last_kyc_at" example:"2026-01-01T12:00:31Z"`
	LastLivenessAt    string `json:"last_liveness_at" example:"2026-01-01T12:00:29Z"`
	IssuedAt          string `json:"issued_at" example:"2026-01-01T12:00:32Z"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string `json:"code" example:"VALIDATION_FAILED"`
	Message string `json:"message" example:"Request validation failed"`
}

var (
	errInternal     = response.New(ErrorResponse{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}, "500", "Internal Server Error")
	errUnauthorized = response.New(ErrorResponse{Code: "UNAUTHORIZED", Message: "Invalid or missing reviewer token"}, "401", "Unauthorized")
	errBadID        = response.New(ErrorResponse{Code: "BAD_REQUEST", Message: "id must be a UUID"}, "400", "Bad Request")
)

// NewSwagger builds the OpenAPI document served at /swagger
func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "Veritas Identity Verification API",
		Version:     "v1.0.0",
		Description: "Document, face and liveness verification with fraud scoring and credential issuance",
		Host:        "localhost:3000",
		Path:        "/v1",
	})

	endpoints := []*endpoint.EndPoint{
		endpoint.New(
			endpoint.POST,
			"/verifications",
			endpoint.WithTags("Verifications"),
			endpoint.WithSummary("Submit a verification request"),
			endpoint.WithDescription("Runs document, face and liveness analysis for full_kyc, or self-attests a basic request. Returns approved, rejected or needs_review."),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithBody(SubmitVerificationBody{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(DecisionBody{}, "201", "Request decided"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "BAD_REQUEST", Message: "Invalid request"}, "400", "Bad Request"),
				response.New(ErrorResponse{Code: "VALIDATION_FAILED", Message: "Request validation failed"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "RATE_LIMIT_EXCEEDED", Message: "Too many submissions, try again later"}, "429", "Too Many Requests"),
				errInternal,
			}),
		),

		endpoint.New(
			endpoint.GET,
			"/verifications/{id}",
			endpoint.WithTags("Verifications"),
			endpoint.WithSummary("Get a verification request"),
			endpoint.WithDescription("Returns the status, the AI decision and every human review of a request"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Request UUID")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(VerificationBody{}, "200", "Request found"),
			}),
			endpoint.WithErrors([]response.Response{
				errBadID,
				response.New(ErrorResponse{Code: "VERIFICATION_NOT_FOUND", Message: "Verification request not found"}, "404", "Not Found"),
				errInternal,
			}),
		),

		endpoint.New(
			endpoint.POST,
			"/verifications/{id}/review",
			endpoint.WithTags("Reviews"),
			endpoint.WithSummary("Record a human review"),
			endpoint.WithDescription("Resolves a needs_review request. On an already decided request the review is stored for quality tracking and the status does not change."),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Request UUID")),
			),
			endpoint.WithBody(ReviewInputBody{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(VerificationBody{}, "200", "Review recorded"),
			}),
			endpoint.WithErrors([]response.Response{
				errBadID,
				errUnauthorized,
				response.New(ErrorResponse{Code: "VERIFICATION_NOT_FOUND", Message: "Verification request not found"}, "404", "Not Found"),
				response.New(ErrorResponse{Code: "INVALID_STATUS_TRANSITION", Message: "Status transition not allowed"}, "409", "Conflict"),
				errInternal,
			}),
			endpoint.WithSecurity([]map[string][]string{{"ReviewerJWT": {}}}),
		),

		endpoint.New(
			endpoint.GET,
			"/reviews/feed",
			endpoint.WithTags("Reviews"),
			endpoint.WithSummary("Live review feed (WebSocket)"),
			endpoint.WithDescription("Upgrades to a WebSocket that streams decision and review events. Reviewers receive needs_review decisions and resolved reviews; supervisors receive every pipeline event. Browsers may pass the token as ?access_token=."),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				response.New(ErrorResponse{Code: "UPGRADE_REQUIRED", Message: "Upgrade Required"}, "426", "Upgrade Required"),
			}),
			endpoint.WithSecurity([]map[string][]string{{"ReviewerJWT": {}}}),
		),

		endpoint.New(
			endpoint.GET,
			"/subjects/{subject_id}/credential",
			endpoint.WithTags("Credentials"),
			endpoint.WithSummary("Get the latest credential of a subject"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("subject_id", parameter.Path, parameter.WithDescription("Wallet or subject identifier")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(CredentialBody{}, "200", "Credential found"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "CREDENTIAL_NOT_FOUND", Message: "Credential not found"}, "404", "Not Found"),
				errInternal,
			}),
		),

		endpoint.New(
			endpoint.POST,
			"/credentials/{request_id}/revoke",
			endpoint.WithTags("Credentials"),
			endpoint.WithSummary("Revoke a credential"),
			endpoint.WithDescription("Marks the credential of a request as revoked. Requires a supervisor token."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("request_id", parameter.Path, parameter.WithDescription("Request UUID")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(CredentialBody{}, "200", "Credential revoked"),
			}),
			endpoint.WithErrors([]response.Response{
				errBadID,
				errUnauthorized,
				response.New(ErrorResponse{Code: "FORBIDDEN", Message: "Access denied"}, "403", "Forbidden"),
				response.New(ErrorResponse{Code: "CREDENTIAL_NOT_FOUND", Message: "Credential not found"}, "404", "Not Found"),
				errInternal,
			}),
			endpoint.WithSecurity([]map[string][]string{{"ReviewerJWT": {}}}),
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
