package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saturnino-fabrica-de-software/veritas/internal/domain"
)

type VerificationRepository struct {
	pool PgxPool
}

func NewVerificationRepository(pool PgxPool) *VerificationRepository {
	return &VerificationRepository{pool: pool}
}

func (r *VerificationRepository) SaveRequest(ctx context.Context, v *domain.VerificationRequest) error {
	query := `
		INSERT INTO verification_requests (
			id, subject_id, tier, status, started_at, submitted_at,
			document_image_ref, selfie_image_ref, liveness_frame_refs, liveness_sequence_ref,
			expected_steps, previous_attempt_count, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.Status == "" {
		v.Status = domain.StatusPending
	}

	err := r.pool.QueryRow(ctx, query,
		v.ID,
		v.SubjectID,
		string(v.Tier),
		string(v.Status),
		nullTime(v.StartedAt),
		v.SubmittedAt.UTC(),
		v.DocumentImageRef,
		v.SelfieImageRef,
		emptyIfNil(v.LivenessFrameRefs),
		v.LivenessSequenceRef,
		emptyIfNil(v.ExpectedSteps),
		v.PreviousAttemptCount,
	).Scan(&v.CreatedAt, &v.UpdatedAt)

	if isUniqueViolation(err) {
		return domain.ErrBadRequest.WithError(fmt.Errorf("verification %s already exists", v.ID))
	}
	if err != nil {
		return fmt.Errorf("save verification request: %w", err)
	}

	return nil
}

func (r *VerificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.VerificationRequest, error) {
	query := `
		SELECT id, subject_id, tier, status, started_at, submitted_at,
		       document_image_ref, selfie_image_ref, liveness_frame_refs, liveness_sequence_ref,
		       expected_steps, previous_attempt_count, created_at, updated_at
		FROM verification_requests
		WHERE id = $1
	`

	var (
		v         domain.VerificationRequest
		tier      string
		status    string
		startedAt *time.Time
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&v.ID,
		&v.SubjectID,
		&tier,
		&status,
		&startedAt,
		&v.SubmittedAt,
		&v.DocumentImageRef,
		&v.SelfieImageRef,
		&v.LivenessFrameRefs,
		&v.LivenessSequenceRef,
		&v.ExpectedSteps,
		&v.PreviousAttemptCount,
		&v.CreatedAt,
		&v.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get verification request: %w", err)
	}

	v.Tier = domain.Tier(tier)
	v.Status = domain.Status(status)
	v.StartedAt = fromNullTime(startedAt)
	return &v, nil
}

// TransitionStatus moves a request to the given status in a single
// conditional update. When no row changes, the current status tells whether
// the request is missing, already decided, or on an edge the state machine
// does not have.
func (r *VerificationRepository) TransitionStatus(ctx context.Context, id uuid.UUID, to domain.Status) error {
	query := `
		UPDATE verification_requests
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = ANY($3)
	`

	result, err := r.pool.Exec(ctx, query, string(to), id, statusStrings(domain.AllowedFrom(to)))
	if err != nil {
		return fmt.Errorf("transition verification status: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	var current string
	err = r.pool.QueryRow(ctx, `SELECT status FROM verification_requests WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrRequestNotFound
	}
	if err != nil {
		return fmt.Errorf("read verification status: %w", err)
	}

	from := domain.Status(current)
	if from.IsTerminal() {
		return domain.ErrAlreadyDecided.WithError(fmt.Errorf("verification is %s", from))
	}
	return domain.ErrInvalidTransition.WithError(fmt.Errorf("%s -> %s", from, to))
}

// CountBySubject returns how many requests the subject has submitted.
func (r *VerificationRepository) CountBySubject(ctx context.Context, subjectID string) (int, error) {
	query := `SELECT COUNT(*) FROM verification_requests WHERE subject_id = $1`

	var count int
	if err := r.pool.QueryRow(ctx, query, subjectID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count verification requests: %w", err)
	}

	return count, nil
}
