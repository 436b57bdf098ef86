package analyzer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/saturnino-fabrica-de-software/veritas/internal/domain"
	"github.com/saturnino-fabrica-de-software/veritas/internal/inference"
)

// DocumentAnalyzer extracts claims from an identity document image.
type DocumentAnalyzer struct {
	base
}

// NewDocumentAnalyzer creates a new DocumentAnalyzer
func NewDocumentAnalyzer(client inference.Client, cfg Config, logger *slog.Logger) *DocumentAnalyzer {
	return &DocumentAnalyzer{base: newBase(client, cfg, logger, "document_analyzer")}
}

// AnalyzeDocument never returns an error: any failure of the inference call
// or of the payload becomes a failing StageResult with findings.error set.
func (a *DocumentAnalyzer) AnalyzeDocument(ctx context.Context, image []byte) domain.StageResult {
	raw, err := a.call(ctx, func(ctx context.Context) (json.RawMessage, error) {
		return a.client.RunDocumentAnalysis(ctx, image)
	})
	if err != nil {
		a.logger.WarnContext(ctx, "document analysis failed", "error", err)
		return domain.FailedResult(domain.StageDocument, domain.ReasonDocumentAnalysisFailed, err, a.now())
	}

	var p inference.DocumentPayload
	if err := decodeStrict(raw, &p); err != nil {
		a.logger.WarnContext(ctx, "document payload rejected", "error", err)
		return domain.FailedResult(domain.StageDocument, domain.ReasonDocumentAnalysisFailed, err, a.now())
	}

	confidence := *p.Confidence
	isValid := *p.IsValid

	var gates []domain.ReasonCode
	if !isValid {
		gates = append(gates, domain.ReasonDocumentInvalid)
	}
	if confidence < a.config.Thresholds.DocumentMinConfidence {
		gates = append(gates, domain.ReasonDocumentLowConfidence)
	}

	return domain.StageResult{
		Stage:      domain.StageDocument,
		Confidence: confidence,
		Passed:     len(gates) == 0,
		Findings: map[string]any{
			"name":            optionalString(p.Name),
			"date_of_birth":   optionalString(p.DateOfBirth),
			"document_type":   optionalString(p.DocumentType),
			"document_number": optionalString(p.DocumentNumber),
			"expiry_date":     optionalString(p.ExpiryDate),
			"is_valid":        isValid,
		},
		FailedGates: gates,
		EvaluatedAt: a.now().UTC(),
	}
}

// ExplicitlyInvalid reports whether a document result carries a parsed
// is_valid=false verdict, as opposed to low confidence or an analyzer error.
func ExplicitlyInvalid(r domain.StageResult) bool {
	if r.Stage != domain.StageDocument || r.Errored() {
		return false
	}
	v, ok := r.Findings["is_valid"].(bool)
	return ok && !v
}
