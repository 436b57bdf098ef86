package analyzer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/saturnino-fabrica-de-software/veritas/internal/domain"
	"github.com/saturnino-fabrica-de-software/veritas/internal/inference"
)

// Photo quality grades reported by the face comparison.
const (
	PhotoQualityGood = "good"
	PhotoQualityFair = "fair"
	PhotoQualityPoor = "poor"
)

// FaceMatcher compares a selfie against the document portrait.
type FaceMatcher struct {
	base
}

// NewFaceMatcher creates a new FaceMatcher
func NewFaceMatcher(client inference.Client, cfg Config, logger *slog.Logger) *FaceMatcher {
	return &FaceMatcher{base: newBase(client, cfg, logger, "face_matcher")}
}

// CompareFaces follows the same recoverable-failure contract as AnalyzeDocument.
// Poor photo quality is recorded in the findings but does not fail the stage.
func (m *FaceMatcher) CompareFaces(ctx context.Context, documentImage, selfieImage []byte) domain.StageResult {
	raw, err := m.call(ctx, func(ctx context.Context) (json.RawMessage, error) {
		return m.client.RunFaceComparison(ctx, documentImage, selfieImage)
	})
	if err != nil {
		m.logger.WarnContext(ctx, "face comparison failed", "error", err)
		return domain.FailedResult(domain.StageFace, domain.ReasonFaceAnalysisFailed, err, m.now())
	}

	var p inference.FacePayload
	if err := decodeStrict(raw, &p); err != nil {
		m.logger.WarnContext(ctx, "face payload rejected", "error", err)
		return domain.FailedResult(domain.StageFace, domain.ReasonFaceAnalysisFailed, err, m.now())
	}

	confidence := *p.Confidence
	isMatch := *p.IsMatch

	var gates []domain.ReasonCode
	if !isMatch {
		gates = append(gates, domain.ReasonFaceMismatch)
	}
	if confidence < m.config.Thresholds.FaceMinConfidence {
		gates = append(gates, domain.ReasonFaceLowConfidence)
	}

	return domain.StageResult{
		Stage:      domain.StageFace,
		Confidence: confidence,
		Passed:     len(gates) == 0,
		Findings: map[string]any{
			"is_match":              isMatch,
			domain.FindingReasoning: p.Reasoning,
			"photo_quality":         p.PhotoQuality,
		},
		FailedGates: gates,
		EvaluatedAt: m.now().UTC(),
	}
}
