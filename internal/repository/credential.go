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

const credentialColumns = `
	request_id, subject_id, tier, issued_at, last_kyc_at, last_liveness_at, issuer_id,
	credential_hash, revoked, status, COALESCE(external_receipt_id, ''), attempts,
	COALESCE(last_error, ''), next_retry_at, created_at, updated_at
`

type CredentialRepository struct {
	pool PgxPool
}

func NewCredentialRepository(pool PgxPool) *CredentialRepository {
	return &CredentialRepository{pool: pool}
}

// Create inserts a pending credential. The request id is the idempotency
// key: when a credential already exists nothing is written and created is
// false.
func (r *CredentialRepository) Create(ctx context.Context, c *domain.Credential) (bool, error) {
	query := `
		INSERT INTO credentials (
			request_id, subject_id, tier, last_kyc_at, last_liveness_at, issuer_id,
			credential_hash, revoked, status, attempts, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8, 0, NOW(), NOW())
		ON CONFLICT (request_id) DO NOTHING
		RETURNING created_at, updated_at
	`

	if c.Status == "" {
		c.Status = domain.IssuancePending
	}

	err := r.pool.QueryRow(ctx, query,
		c.RequestID,
		c.SubjectID,
		string(c.Tier),
		c.LastKYCAt.UTC(),
		c.LastLivenessAt.UTC(),
		c.IssuerID,
		c.CredentialHash,
		string(c.Status),
	).Scan(&c.CreatedAt, &c.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create credential: %w", err)
	}

	return true, nil
}

func (r *CredentialRepository) GetByRequestID(ctx context.Context, requestID uuid.UUID) (*domain.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE request_id = $1`

	c, err := scanCredential(r.pool.QueryRow(ctx, query, requestID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}

	return c, nil
}

// GetLatestBySubject returns the most recent credential of a subject.
func (r *CredentialRepository) GetLatestBySubject(ctx context.Context, subjectID string) (*domain.Credential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM credentials
		WHERE subject_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	c, err := scanCredential(r.pool.QueryRow(ctx, query, subjectID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential by subject: %w", err)
	}

	return c, nil
}

// MarkIssued records the issuer receipt. Only a pending credential moves.
func (r *CredentialRepository) MarkIssued(ctx context.Context, requestID uuid.UUID, receiptID string, issuedAt time.Time) error {
	query := `
		UPDATE credentials
		SET status = 'issued',
		    external_receipt_id = $1,
		    issued_at = $2,
		    attempts = attempts + 1,
		    last_error = NULL,
		    next_retry_at = NULL,
		    updated_at = NOW()
		WHERE request_id = $3 AND status = 'pending_issuance'
	`

	result, err := r.pool.Exec(ctx, query, receiptID, issuedAt.UTC(), requestID)
	if err != nil {
		return fmt.Errorf("mark credential issued: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrCredentialNotFound
	}

	return nil
}

// MarkRetry records a failed issuance attempt and when to try again.
func (r *CredentialRepository) MarkRetry(ctx context.Context, requestID uuid.UUID, lastError string, nextRetryAt time.Time) error {
	query := `
		UPDATE credentials
		SET attempts = attempts + 1,
		    last_error = $1,
		    next_retry_at = $2,
		    updated_at = NOW()
		WHERE request_id = $3 AND status = 'pending_issuance'
	`

	result, err := r.pool.Exec(ctx, query, lastError, nextRetryAt.UTC(), requestID)
	if err != nil {
		return fmt.Errorf("schedule credential retry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrCredentialNotFound
	}

	return nil
}

// ClaimDueForRetry leases up to limit pending credentials whose retry time
// has come. The lease pushes next_retry_at forward so a concurrent worker
// skips the same rows.
func (r *CredentialRepository) ClaimDueForRetry(ctx context.Context, limit, maxAttempts int, lease time.Duration) ([]domain.Credential, error) {
	query := `
		UPDATE credentials
		SET next_retry_at = NOW() + make_interval(secs => $3),
		    updated_at = NOW()
		WHERE request_id IN (
			SELECT request_id
			FROM credentials
			WHERE status = 'pending_issuance'
			  AND revoked = false
			  AND attempts < $2
			  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $1
		)
		RETURNING ` + credentialColumns

	rows, err := r.pool.Query(ctx, query, limit, maxAttempts, lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("claim credentials for retry: %w", err)
	}
	defer rows.Close()

	var creds []domain.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	return creds, nil
}

// Revoke flags a credential as revoked. Revoking twice is not an error.
func (r *CredentialRepository) Revoke(ctx context.Context, requestID uuid.UUID) error {
	query := `
		UPDATE credentials
		SET revoked = true, updated_at = NOW()
		WHERE request_id = $1
	`

	result, err := r.pool.Exec(ctx, query, requestID)
	if err != nil {
		return fmt.Errorf("revoke credential: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrCredentialNotFound
	}

	return nil
}

func scanCredential(row pgx.Row) (*domain.Credential, error) {
	var (
		c      domain.Credential
		tier   string
		status string
	)
	err := row.Scan(
		&c.RequestID,
		&c.SubjectID,
		&tier,
		&c.IssuedAt,
		&c.LastKYCAt,
		&c.LastLivenessAt,
		&c.IssuerID,
		&c.CredentialHash,
		&c.Revoked,
		&status,
		&c.ExternalReceiptID,
		&c.Attempts,
		&c.LastError,
		&c.NextRetryAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Tier = domain.Tier(tier)
	c.Status = domain.IssuanceStatus(status)
	return &c, nil
}
