package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/veritas/internal/domain"
)

type ReviewRepository struct {
	pool PgxPool
}

func NewReviewRepository(pool PgxPool) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

func (r *ReviewRepository) Create(ctx context.Context, rec *domain.ReviewRecord) error {
	query := `
		INSERT INTO verification_reviews (
			id, request_id, ai_outcome, human_approve, final_outcome, reviewer_id, note, quality, reviewed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	_, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.RequestID,
		string(rec.AIOutcome),
		rec.HumanApprove,
		string(rec.FinalOutcome),
		rec.ReviewerID,
		rec.Note,
		string(rec.Quality),
		rec.ReviewedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("create review: %w", err)
	}

	return nil
}

// ListByRequest returns the reviews of a request, newest first.
func (r *ReviewRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]domain.ReviewRecord, error) {
	query := `
		SELECT id, request_id, ai_outcome, human_approve, final_outcome, reviewer_id, note, quality, reviewed_at
		FROM verification_reviews
		WHERE request_id = $1
		ORDER BY reviewed_at DESC
	`

	rows, err := r.pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []domain.ReviewRecord
	for rows.Next() {
		var (
			rec     domain.ReviewRecord
			ai      string
			final   string
			quality string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.RequestID,
			&ai,
			&rec.HumanApprove,
			&final,
			&rec.ReviewerID,
			&rec.Note,
			&quality,
			&rec.ReviewedAt,
		); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		rec.AIOutcome = domain.Outcome(ai)
		rec.FinalOutcome = domain.Outcome(final)
		rec.Quality = domain.ReviewQuality(quality)
		reviews = append(reviews, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}

	return reviews, nil
}
