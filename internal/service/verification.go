package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/veritas/internal/analyzer"
	"github.com/saturnino-fabrica-de-software/veritas/internal/audit"
	"github.com/saturnino-fabrica-de-software/veritas/internal/domain"
	"github.com/saturnino-fabrica-de-software/veritas/internal/media"
	"github.com/saturnino-fabrica-de-software/veritas/internal/repository"
	"github.com/saturnino-fabrica-de-software/veritas/internal/risk"
	"github.com/saturnino-fabrica-de-software/veritas/internal/telemetry"
)

type DocumentAnalyzer interface {
	AnalyzeDocument(ctx context.Context, image []byte) domain.StageResult
}

type FaceMatcher interface {
	CompareFaces(ctx context.Context, documentImage, selfieImage []byte) domain.StageResult
}

type LivenessEvaluator interface {
	EvaluateLiveness(ctx context.Context, frames analyzer.FrameSource, expectedSteps []string) domain.StageResult
}

type RiskAssessor interface {
	Assess(in risk.Input) domain.RiskAssessment
}

type CredentialIssuer interface {
	IssueCredential(ctx context.Context, decision *domain.VerificationDecision) (*domain.Credential, error)
}

// Dependencies groups the collaborators of the VerificationService.
// Sink, Audit and Logger may be nil.
type Dependencies struct {
	Requests  repository.VerificationRepositoryInterface
	Decisions repository.DecisionRepositoryInterface
	Reviews   repository.ReviewRepositoryInterface
	Media     media.Store
	Document  DocumentAnalyzer
	Face      FaceMatcher
	Liveness  LivenessEvaluator
	Scorer    RiskAssessor
	Issuer    CredentialIssuer
	Sink      telemetry.Sink
	Audit     audit.Logger
	Logger    *slog.Logger
}

// VerificationView is what callers see of a request: the stored request, the
// AI decision (nil while analyzing) and every human review.
type VerificationView struct {
	Request  *domain.VerificationRequest  `json:"request"`
	Decision *domain.VerificationDecision `json:"decision,omitempty"`
	Reviews  []domain.ReviewRecord        `json:"reviews"`
}

// Outcome is the status the subject sees, or empty while undecided.
func (v *VerificationView) Outcome() domain.Outcome {
	switch v.Request.Status {
	case domain.StatusApproved, domain.StatusRejected, domain.StatusNeedsReview:
		return domain.Outcome(v.Request.Status)
	default:
		return ""
	}
}

// VerificationService drives a request through the state machine
// pending -> analyzing -> approved | rejected | needs_review.
type VerificationService struct {
	requests      repository.VerificationRepositoryInterface
	decisions     repository.DecisionRepositoryInterface
	reviews       repository.ReviewRepositoryInterface
	media         media.Store
	document      DocumentAnalyzer
	face          FaceMatcher
	liveness      LivenessEvaluator
	scorer        RiskAssessor
	issuer        CredentialIssuer
	sink          telemetry.Sink
	audit         audit.Logger
	logger        *slog.Logger
	criticalScore int
	now           func() time.Time
}

func NewVerificationService(deps Dependencies) *VerificationService {
	if deps.Sink == nil {
		deps.Sink = telemetry.Noop{}
	}
	if deps.Audit == nil {
		deps.Audit = &audit.NoOpLogger{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Scorer == nil {
		deps.Scorer = risk.NewScorer(risk.DefaultThresholds())
	}
	return &VerificationService{
		requests:  deps.Requests,
		decisions: deps.Decisions,
		reviews:   deps.Reviews,
		media:     deps.Media,
		document:  deps.Document,
		face:      deps.Face,
		liveness:  deps.Liveness,
		scorer:    deps.Scorer,
		issuer:    deps.Issuer,
		sink:      deps.Sink,
		audit:     deps.Audit,
		logger:    deps.Logger.With("component", "orchestrator"),
		now:       time.Now,
	}
}

// WithCriticalRiskScore withholds approval when the risk score reaches score.
// Zero disables the check; critical patterns always withhold approval.
func (s *VerificationService) WithCriticalRiskScore(score int) *VerificationService {
	s.criticalScore = score
	return s
}

// Submit validates, persists and evaluates a request. Validation failures
// are returned before anything is stored. Analyzer and issuance failures
// never surface as errors: they shape the outcome or are retried later.
func (s *VerificationService) Submit(ctx context.Context, req *domain.VerificationRequest) (*domain.VerificationDecision, error) {
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = s.now().UTC()
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req.Status = domain.StatusPending

	if req.Tier == domain.TierBasic {
		return s.selfAttest(ctx, req)
	}

	// stored history wins over a client-declared count
	count, err := s.requests.CountBySubject(ctx, req.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("subject %s: count attempts: %w", req.SubjectID, err)
	}
	if count > req.PreviousAttemptCount {
		req.PreviousAttemptCount = count
	}

	if err := s.requests.SaveRequest(ctx, req); err != nil {
		return nil, err
	}
	s.logAudit(ctx, audit.Event{
		RequestID: req.ID,
		SubjectID: req.SubjectID,
		EventType: audit.EventRequestSubmitted,
		Success:   true,
		Metadata:  map[string]string{"tier": string(req.Tier)},
	})

	if err := s.requests.TransitionStatus(ctx, req.ID, domain.StatusAnalyzing); err != nil {
		return nil, fmt.Errorf("request %s: start analysis: %w", req.ID, err)
	}
	req.Status = domain.StatusAnalyzing

	started := s.now()
	results := s.runStages(ctx, req)

	assessment := s.scorer.Assess(risk.Input{
		PreviousAttemptCount: req.PreviousAttemptCount,
		StartedAt:            req.StartedAt,
		SubmittedAt:          req.SubmittedAt,
		StageResults:         results,
	})
	outcome, reasons := Aggregate(results, assessment, s.criticalScore)

	decision := &domain.VerificationDecision{
		RequestID:      req.ID,
		SubjectID:      req.SubjectID,
		Tier:           req.Tier,
		Outcome:        outcome,
		StageResults:   results,
		RiskAssessment: assessment,
		DecidedAt:      s.now().UTC(),
		ReasonCodes:    reasons,
	}

	if err := s.commit(ctx, decision); err != nil {
		return nil, err
	}
	req.Status = outcome.Status()

	s.recordDecision(decision, s.now().Sub(started))
	s.logger.InfoContext(ctx, "verification decided",
		"request_id", req.ID,
		"outcome", outcome,
		"risk_score", assessment.RiskScore,
		"reason_codes", reasons,
	)

	if decision.EligibleForCredential() {
		s.issue(ctx, decision)
	}

	return decision, nil
}

// selfAttest takes a basic request straight from pending to approved.
// No stage runs and no credential is issued.
func (s *VerificationService) selfAttest(ctx context.Context, req *domain.VerificationRequest) (*domain.VerificationDecision, error) {
	if err := s.requests.SaveRequest(ctx, req); err != nil {
		return nil, err
	}
	s.logAudit(ctx, audit.Event{
		RequestID: req.ID,
		SubjectID: req.SubjectID,
		EventType: audit.EventRequestSubmitted,
		Success:   true,
		Metadata:  map[string]string{"tier": string(req.Tier)},
	})

	decision := &domain.VerificationDecision{
		RequestID:      req.ID,
		SubjectID:      req.SubjectID,
		Tier:           req.Tier,
		Outcome:        domain.OutcomeApproved,
		StageResults:   []domain.StageResult{},
		RiskAssessment: domain.NewRiskAssessment(nil),
		DecidedAt:      s.now().UTC(),
		ReasonCodes:    []domain.ReasonCode{domain.ReasonSelfAttested},
	}

	if err := s.commit(ctx, decision); err != nil {
		return nil, err
	}
	req.Status = domain.StatusApproved

	s.recordDecision(decision, 0)
	return decision, nil
}

// commit stores the decision and moves the request to its outcome status.
func (s *VerificationService) commit(ctx context.Context, decision *domain.VerificationDecision) error {
	created, err := s.decisions.SaveDecision(ctx, decision)
	if err != nil {
		return fmt.Errorf("request %s: save decision: %w", decision.RequestID, err)
	}
	if !created {
		return domain.ErrAlreadyDecided
	}

	if err := s.requests.TransitionStatus(ctx, decision.RequestID, decision.Outcome.Status()); err != nil {
		return fmt.Errorf("request %s: record outcome: %w", decision.RequestID, err)
	}

	metadata := map[string]string{"tier": string(decision.Tier)}
	if len(decision.ReasonCodes) > 0 {
		codes := make([]string, len(decision.ReasonCodes))
		for i, c := range decision.ReasonCodes {
			codes[i] = string(c)
		}
		metadata["reason_codes"] = strings.Join(codes, ",")
	}
	s.logAudit(ctx, audit.Event{
		RequestID: decision.RequestID,
		SubjectID: decision.SubjectID,
		EventType: audit.EventDecisionMade,
		Outcome:   string(decision.Outcome),
		Success:   true,
		Metadata:  metadata,
	})
	return nil
}

// runStages runs document, face and liveness in that order. An explicitly
// invalid document skips the other two.
func (s *VerificationService) runStages(ctx context.Context, req *domain.VerificationRequest) []domain.StageResult {
	results := make([]domain.StageResult, 0, len(fullKYCStages))

	docImage, docErr := s.media.GetImage(ctx, req.DocumentImageRef)
	var docResult domain.StageResult
	if docErr != nil {
		docResult = s.mediaFailure(ctx, domain.StageDocument, domain.ReasonDocumentAnalysisFailed, docErr)
	} else {
		docResult = s.document.AnalyzeDocument(ctx, docImage)
	}
	results = append(results, docResult)
	s.recordStage(docResult)

	if analyzer.ExplicitlyInvalid(docResult) {
		at := s.now()
		for _, name := range fullKYCStages[1:] {
			skipped := domain.SkippedResult(name, "document declared invalid", at)
			results = append(results, skipped)
		}
		s.logger.InfoContext(ctx, "document invalid, skipping remaining stages", "request_id", req.ID)
		return results
	}

	var faceResult domain.StageResult
	switch selfie, err := s.media.GetImage(ctx, req.SelfieImageRef); {
	case docErr != nil:
		faceResult = s.mediaFailure(ctx, domain.StageFace, domain.ReasonFaceAnalysisFailed, fmt.Errorf("document image unavailable: %w", docErr))
	case err != nil:
		faceResult = s.mediaFailure(ctx, domain.StageFace, domain.ReasonFaceAnalysisFailed, err)
	default:
		faceResult = s.face.CompareFaces(ctx, docImage, selfie)
	}
	results = append(results, faceResult)
	s.recordStage(faceResult)

	var livenessResult domain.StageResult
	frames, err := s.frameSource(ctx, req)
	if err != nil {
		livenessResult = s.mediaFailure(ctx, domain.StageLiveness, domain.ReasonLivenessAnalysisFailed, err)
		livenessResult.Findings[domain.FindingReasoning] = analyzer.TechnicalErrorReasoning
	} else {
		livenessResult = s.liveness.EvaluateLiveness(ctx, frames, req.ExpectedSteps)
	}
	results = append(results, livenessResult)
	s.recordStage(livenessResult)

	return results
}

func (s *VerificationService) frameSource(ctx context.Context, req *domain.VerificationRequest) (analyzer.FrameSource, error) {
	if ref := strings.TrimSpace(req.LivenessSequenceRef); ref != "" {
		return media.LoadSequence(ctx, s.media, ref)
	}
	return media.NewRefSource(s.media, req.LivenessFrameRefs), nil
}

func (s *VerificationService) mediaFailure(ctx context.Context, stage domain.StageName, code domain.ReasonCode, err error) domain.StageResult {
	s.logger.WarnContext(ctx, "media unavailable", "stage", stage, "error", err)
	return domain.FailedResult(stage, code, err, s.now())
}

// ResolveReview applies a human verdict. On a needs_review request it moves
// the status to approved or rejected. On an already decided request it only
// stores the review for quality tracking.
func (s *VerificationService) ResolveReview(ctx context.Context, in domain.ReviewInput) (*VerificationView, error) {
	if strings.TrimSpace(in.ReviewerID) == "" {
		return nil, domain.ErrValidationFailed.WithError(errors.New("reviewer_id is required"))
	}

	req, err := s.requests.GetByID(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}

	decision, err := s.decisions.GetByRequestID(ctx, in.RequestID)
	if errors.Is(err, domain.ErrDecisionNotFound) {
		return nil, domain.ErrInvalidTransition.WithError(fmt.Errorf("request %s is still %s", req.ID, req.Status))
	}
	if err != nil {
		return nil, err
	}

	final := domain.OutcomeRejected
	if in.HumanApprove {
		final = domain.OutcomeApproved
	}

	applied := false
	if req.Status == domain.StatusNeedsReview {
		err := s.requests.TransitionStatus(ctx, req.ID, final.Status())
		switch {
		case err == nil:
			applied = true
		case errors.Is(err, domain.ErrAlreadyDecided):
			// another reviewer got there first: fall back to an audit review
			current, getErr := s.requests.GetByID(ctx, req.ID)
			if getErr != nil {
				return nil, getErr
			}
			req = current
		default:
			return nil, fmt.Errorf("request %s: apply review: %w", req.ID, err)
		}
	} else if !req.Status.IsTerminal() {
		return nil, domain.ErrInvalidTransition.WithError(fmt.Errorf("request %s is %s", req.ID, req.Status))
	}
	if !applied {
		final = domain.Outcome(req.Status)
	}

	record := &domain.ReviewRecord{
		ID:           uuid.New(),
		RequestID:    req.ID,
		AIOutcome:    decision.Outcome,
		HumanApprove: in.HumanApprove,
		FinalOutcome: final,
		ReviewerID:   in.ReviewerID,
		Note:         in.Note,
		Quality:      risk.ClassifyReview(decision.Outcome, in.HumanApprove),
		ReviewedAt:   s.now().UTC(),
	}
	if err := s.reviews.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("request %s: save review: %w", req.ID, err)
	}

	s.sink.Record(telemetry.MetricReviewQuality, 1, map[string]string{
		"quality":    string(record.Quality),
		"ai_outcome": string(record.AIOutcome),
		"applied":    fmt.Sprintf("%t", applied),
	})
	s.logAudit(ctx, audit.Event{
		RequestID: req.ID,
		SubjectID: req.SubjectID,
		EventType: audit.EventReviewResolved,
		Outcome:   string(final),
		Actor:     in.ReviewerID,
		Success:   true,
		Metadata: map[string]string{
			"ai_outcome": string(decision.Outcome),
			"quality":    string(record.Quality),
			"applied":    fmt.Sprintf("%t", applied),
		},
	})
	s.logger.InfoContext(ctx, "review recorded",
		"request_id", req.ID,
		"reviewer_id", in.ReviewerID,
		"final_outcome", final,
		"quality", record.Quality,
		"applied", applied,
	)

	if applied && final == domain.OutcomeApproved && req.Tier == domain.TierFullKYC {
		approved := *decision
		approved.Outcome = domain.OutcomeApproved
		approved.DecidedAt = record.ReviewedAt
		s.issue(ctx, &approved)
	}

	return s.Get(ctx, req.ID)
}

// Get returns the request with its decision and reviews.
func (s *VerificationService) Get(ctx context.Context, id uuid.UUID) (*VerificationView, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &VerificationView{Request: req, Reviews: []domain.ReviewRecord{}}

	decision, err := s.decisions.GetByRequestID(ctx, id)
	switch {
	case err == nil:
		view.Decision = decision
	case !errors.Is(err, domain.ErrDecisionNotFound):
		return nil, err
	}

	reviews, err := s.reviews.ListByRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if reviews != nil {
		view.Reviews = reviews
	}

	return view, nil
}

// issue hands an approved decision to the gate. Failures stay pending
// inside the gate and are retried by the worker.
func (s *VerificationService) issue(ctx context.Context, decision *domain.VerificationDecision) {
	if s.issuer == nil {
		return
	}
	if _, err := s.issuer.IssueCredential(ctx, decision); err != nil {
		s.logger.WarnContext(ctx, "credential issuance deferred",
			"request_id", decision.RequestID,
			"error", err,
		)
	}
}

func (s *VerificationService) recordStage(r domain.StageResult) {
	tags := map[string]string{"stage": string(r.Stage)}
	s.sink.Record(telemetry.MetricStageConfidence, r.Confidence, tags)

	switch {
	case r.Errored():
		s.sink.Record(telemetry.MetricStageFailure, 1, map[string]string{"stage": string(r.Stage), "kind": "error"})
	case r.Skipped():
		s.sink.Record(telemetry.MetricStageFailure, 1, map[string]string{"stage": string(r.Stage), "kind": "skipped"})
	case !r.Passed:
		s.sink.Record(telemetry.MetricStageFailure, 1, map[string]string{"stage": string(r.Stage), "kind": "gate"})
	}
}

func (s *VerificationService) recordDecision(d *domain.VerificationDecision, elapsed time.Duration) {
	s.sink.Record(telemetry.MetricDecision, 1, map[string]string{
		"outcome": string(d.Outcome),
		"tier":    string(d.Tier),
	})
	if d.Tier != domain.TierFullKYC {
		return
	}
	s.sink.Record(telemetry.MetricRiskScore, float64(d.RiskAssessment.RiskScore), nil)
	for _, p := range d.RiskAssessment.Patterns {
		s.sink.Record(telemetry.MetricRiskPattern, 1, map[string]string{
			"type":     string(p.Type),
			"severity": string(p.Severity),
		})
	}
	s.sink.Record(telemetry.MetricPipelineDuration, elapsed.Seconds(), map[string]string{"outcome": string(d.Outcome)})
}

func (s *VerificationService) logAudit(ctx context.Context, event audit.Event) {
	if err := s.audit.Log(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit log failed", "event_type", event.EventType, "error", err)
	}
}
