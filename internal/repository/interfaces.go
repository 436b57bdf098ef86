package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/veritas/internal/domain"
)

// VerificationRepositoryInterface defines operations for verification request data access
type VerificationRepositoryInterface interface {
	SaveRequest(ctx context.Context, v *domain.VerificationRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.VerificationRequest, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, to domain.Status) error
	CountBySubject(ctx context.Context, subjectID string) (int, error)
}

// DecisionRepositoryInterface defines operations for decision data access
type DecisionRepositoryInterface interface {
	SaveDecision(ctx context.Context, d *domain.VerificationDecision) (bool, error)
	GetByRequestID(ctx context.Context, requestID uuid.UUID) (*domain.VerificationDecision, error)
}

// ReviewRepositoryInterface defines operations for human review data access
type ReviewRepositoryInterface interface {
	Create(ctx context.Context, rec *domain.ReviewRecord) error
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]domain.ReviewRecord, error)
}

// CredentialRepositoryInterface defines operations for credential data access
type CredentialRepositoryInterface interface {
	Create(ctx context.Context, c *domain.Credential) (bool, error)
	GetByRequestID(ctx context.Context, requestID uuid.UUID) (*domain.Credential, error)
	GetLatestBySubject(ctx context.Context, subjectID string) (*domain.Credential, error)
	MarkIssued(ctx context.Context, requestID uuid.UUID, receiptID string, issuedAt time.Time) error
	MarkRetry(ctx context.Context, requestID uuid.UUID, lastError string, nextRetryAt time.Time) error
	ClaimDueForRetry(ctx context.Context, limit, maxAttempts int, lease time.Duration) ([]domain.Credential, error)
	Revoke(ctx context.Context, requestID uuid.UUID) error
}

var (
	_ VerificationRepositoryInterface = (*VerificationRepository)(nil)
	_ DecisionRepositoryInterface     = (*DecisionRepository)(nil)
	_ ReviewRepositoryInterface       = (*ReviewRepository)(nil)
	_ CredentialRepositoryInterface   = (*CredentialRepository)(nil)
)
