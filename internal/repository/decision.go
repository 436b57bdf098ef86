package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saturnino-fabrica-de-software/veritas/internal/domain"
)

type DecisionRepository struct {
	pool PgxPool
}

func NewDecisionRepository(pool PgxPool) *DecisionRepository {
	return &DecisionRepository{pool: pool}
}

// SaveDecision stores the AI decision of a request. A decision is written
// once; saving again for the same request is a no-op and reports false.
func (r *DecisionRepository) SaveDecision(ctx context.Context, d *domain.VerificationDecision) (bool, error) {
	query := `
		INSERT INTO verification_decisions (
			request_id, subject_id, tier, outcome, stage_results, risk_assessment, reason_codes, decided_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (request_id) DO NOTHING
	`

	stages, err := json.Marshal(d.StageResults)
	if err != nil {
		return false, fmt.Errorf("marshal stage results: %w", err)
	}
	risk, err := json.Marshal(d.RiskAssessment)
	if err != nil {
		return false, fmt.Errorf("marshal risk assessment: %w", err)
	}

	result, err := r.pool.Exec(ctx, query,
		d.RequestID,
		d.SubjectID,
		string(d.Tier),
		string(d.Outcome),
		stages,
		risk,
		reasonStrings(d.ReasonCodes),
		d.DecidedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("save decision: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

func (r *DecisionRepository) GetByRequestID(ctx context.Context, requestID uuid.UUID) (*domain.VerificationDecision, error) {
	query := `
		SELECT request_id, subject_id, tier, outcome, stage_results, risk_assessment, reason_codes, decided_at
		FROM verification_decisions
		WHERE request_id = $1
	`

	var (
		d       domain.VerificationDecision
		tier    string
		outcome string
		stages  []byte
		risk    []byte
		reasons []string
	)
	err := r.pool.QueryRow(ctx, query, requestID).Scan(
		&d.RequestID,
		&d.SubjectID,
		&tier,
		&outcome,
		&stages,
		&risk,
		&reasons,
		&d.DecidedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrDecisionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get decision: %w", err)
	}

	if err := json.Unmarshal(stages, &d.StageResults); err != nil {
		return nil, fmt.Errorf("unmarshal stage results: %w", err)
	}
	if err := json.Unmarshal(risk, &d.RiskAssessment); err != nil {
		return nil, fmt.Errorf("unmarshal risk assessment: %w", err)
	}

	d.Tier = domain.Tier(tier)
	d.Outcome = domain.Outcome(outcome)
	d.ReasonCodes = reasonCodes(reasons)
	return &d, nil
}
