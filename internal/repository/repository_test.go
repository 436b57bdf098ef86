package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/veritas/internal/domain"
)

// VerificationRepository Tests

func TestVerificationRepository_SaveRequest(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	req := &domain.VerificationRequest{
		SubjectID:         "0xabc",
		Tier:              domain.TierFullKYC,
		SubmittedAt:       now,
		DocumentImageRef:  "doc",
		SelfieImageRef:    "selfie",
		LivenessFrameRefs: []string{"f0", "f1"},
	}

	mock.ExpectQuery(`INSERT INTO verification_requests`).
		WithArgs(pgxmock.AnyArg(), "0xabc", "full_kyc", "pending", (*time.Time)(nil), pgxmock.AnyArg(),
			"doc", "selfie", []string{"f0", "f1"}, "", []string{}, 0).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	repo := NewVerificationRepository(mock)
	err = repo.SaveRequest(context.Background(), req)

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, req.ID)
	assert.Equal(t, domain.StatusPending, req.Status)
	assert.Equal(t, now, req.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerificationRepository_GetByID(t *testing.T) {
	id := uuid.New()
	now := time.Now()
	started := now.Add(-time.Minute)

	tests := []struct {
		name      string
		mockSetup func(mock pgxmock.PgxPoolIface)
		wantErr   error
	}{
		{
			name: "successful retrieval",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows([]string{
					"id", "subject_id", "tier", "status", "started_at", "submitted_at",
					"document_image_ref", "selfie_image_ref", "liveness_frame_refs", "liveness_sequence_ref",
					"expected_steps", "previous_attempt_count", "created_at", "updated_at",
				}).AddRow(
					id, "0xabc", "full_kyc", "analyzing", &started, now,
					"doc", "selfie", []string{"f0"}, "", []string{"blink"}, 2, now, now,
				)
				mock.ExpectQuery(`SELECT (.+) FROM verification_requests WHERE id = \$1`).
					WithArgs(id).
					WillReturnRows(rows)
			},
		},
		{
			name: "request not found",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT (.+) FROM verification_requests WHERE id = \$1`).
					WithArgs(id).
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: domain.ErrRequestNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.mockSetup(mock)

			repo := NewVerificationRepository(mock)
			got, err := repo.GetByID(context.Background(), id)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, domain.TierFullKYC, got.Tier)
				assert.Equal(t, domain.StatusAnalyzing, got.Status)
				assert.Equal(t, started, got.StartedAt)
				assert.Equal(t, []string{"blink"}, got.ExpectedSteps)
				assert.Equal(t, 2, got.PreviousAttemptCount)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestVerificationRepository_TransitionStatus(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name      string
		to        domain.Status
		mockSetup func(mock pgxmock.PgxPoolIface)
		wantErr   error
	}{
		{
			name: "allowed transition",
			to:   domain.StatusAnalyzing,
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`UPDATE verification_requests SET status = \$1`).
					WithArgs("analyzing", id, []string{"pending"}).
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			},
		},
		{
			name: "terminal write over terminal status",
			to:   domain.StatusRejected,
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`UPDATE verification_requests SET status = \$1`).
					WithArgs("rejected", id, []string{"analyzing", "needs_review"}).
					WillReturnResult(pgxmock.NewResult("UPDATE", 0))
				mock.ExpectQuery(`SELECT status FROM verification_requests`).
					WithArgs(id).
					WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("approved"))
			},
			wantErr: domain.ErrAlreadyDecided,
		},
		{
			name: "edge not in the state machine",
			to:   domain.StatusNeedsReview,
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`UPDATE verification_requests SET status = \$1`).
					WithArgs("needs_review", id, []string{"analyzing"}).
					WillReturnResult(pgxmock.NewResult("UPDATE", 0))
				mock.ExpectQuery(`SELECT status FROM verification_requests`).
					WithArgs(id).
					WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("pending"))
			},
			wantErr: domain.ErrInvalidTransition,
		},
		{
			name: "missing request",
			to:   domain.StatusAnalyzing,
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`UPDATE verification_requests SET status = \$1`).
					WithArgs("analyzing", id, []string{"pending"}).
					WillReturnResult(pgxmock.NewResult("UPDATE", 0))
				mock.ExpectQuery(`SELECT status FROM verification_requests`).
					WithArgs(id).
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: domain.ErrRequestNotFound,
		},
		{
			name: "database error",
			to:   domain.StatusAnalyzing,
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`UPDATE verification_requests SET status = \$1`).
					WithArgs("analyzing", id, []string{"pending"}).
					WillReturnError(errors.New("connection reset"))
			},
			wantErr: errors.New("transition verification status"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.mockSetup(mock)

			repo := NewVerificationRepository(mock)
			err = repo.TransitionStatus(context.Background(), id, tt.to)

			switch {
			case tt.wantErr == nil:
				require.NoError(t, err)
			case errors.As(tt.wantErr, new(*domain.AppError)):
				assert.ErrorIs(t, err, tt.wantErr)
			default:
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr.Error())
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestVerificationRepository_CountBySubject(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM verification_requests WHERE subject_id = \$1`).
		WithArgs("0xabc").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(4))

	repo := NewVerificationRepository(mock)
	count, err := repo.CountBySubject(context.Background(), "0xabc")

	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// DecisionRepository Tests

func TestDecisionRepository_SaveDecision(t *testing.T) {
	decision := &domain.VerificationDecision{
		RequestID: uuid.New(),
		SubjectID: "0xabc",
		Tier:      domain.TierFullKYC,
		Outcome:   domain.OutcomeRejected,
		StageResults: []domain.StageResult{
			{Stage: domain.StageDocument, Confidence: 40, FailedGates: []domain.ReasonCode{domain.ReasonDocumentLowConfidence}},
		},
		RiskAssessment: domain.NewRiskAssessment(nil),
		DecidedAt:      time.Now(),
		ReasonCodes:    []domain.ReasonCode{domain.ReasonDocumentLowConfidence},
	}

	tests := []struct {
		name         string
		rowsAffected int64
		wantCreated  bool
	}{
		{name: "first write", rowsAffected: 1, wantCreated: true},
		{name: "already stored", rowsAffected: 0, wantCreated: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectExec(`INSERT INTO verification_decisions (.+) ON CONFLICT \(request_id\) DO NOTHING`).
				WithArgs(decision.RequestID, "0xabc", "full_kyc", "rejected",
					pgxmock.AnyArg(), pgxmock.AnyArg(), []string{"DOCUMENT_LOW_CONFIDENCE"}, pgxmock.AnyArg()).
				WillReturnResult(pgxmock.NewResult("INSERT", tt.rowsAffected))

			repo := NewDecisionRepository(mock)
			created, err := repo.SaveDecision(context.Background(), decision)

			require.NoError(t, err)
			assert.Equal(t, tt.wantCreated, created)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDecisionRepository_GetByRequestID(t *testing.T) {
	id := uuid.New()
	now := time.Now()

	stages, err := json.Marshal([]domain.StageResult{
		{Stage: domain.StageDocument, Confidence: 90, Passed: true},
		{Stage: domain.StageFace, Confidence: 85, Passed: true},
	})
	require.NoError(t, err)
	risk, err := json.Marshal(domain.NewRiskAssessment([]domain.Pattern{
		{Type: domain.PatternBruteForce, Severity: domain.SeverityHigh},
	}))
	require.NoError(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT (.+) FROM verification_decisions WHERE request_id = \$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{
			"request_id", "subject_id", "tier", "outcome", "stage_results", "risk_assessment", "reason_codes", "decided_at",
		}).AddRow(id, "0xabc", "full_kyc", "approved", stages, risk, []string{}, now))

	repo := NewDecisionRepository(mock)
	got, err := repo.GetByRequestID(context.Background(), id)

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApproved, got.Outcome)
	require.Len(t, got.StageResults, 2)
	assert.Equal(t, domain.StageFace, got.StageResults[1].Stage)
	assert.Equal(t, 7, got.RiskAssessment.RiskScore)
	assert.True(t, got.RiskAssessment.Detected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecisionRepository_GetByRequestID_NotFound(t *testing.T) {
	id := uuid.New()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT (.+) FROM verification_decisions`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	repo := NewDecisionRepository(mock)
	_, err = repo.GetByRequestID(context.Background(), id)

	assert.ErrorIs(t, err, domain.ErrDecisionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ReviewRepository Tests

func TestReviewRepository_CreateAndList(t *testing.T) {
	requestID := uuid.New()
	now := time.Now()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rec := &domain.ReviewRecord{
		RequestID:    requestID,
		AIOutcome:    domain.OutcomeApproved,
		HumanApprove: false,
		FinalOutcome: domain.OutcomeApproved,
		ReviewerID:   "reviewer-1",
		Quality:      domain.ReviewFalsePositive,
		ReviewedAt:   now,
	}

	mock.ExpectExec(`INSERT INTO verification_reviews`).
		WithArgs(pgxmock.AnyArg(), requestID, "approved", false, "approved", "reviewer-1", "", "false_positive", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	reviewID := uuid.New()
	mock.ExpectQuery(`SELECT (.+) FROM verification_reviews WHERE request_id = \$1 ORDER BY reviewed_at DESC`).
		WithArgs(requestID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "request_id", "ai_outcome", "human_approve", "final_outcome", "reviewer_id", "note", "quality", "reviewed_at",
		}).AddRow(reviewID, requestID, "approved", false, "approved", "reviewer-1", "", "false_positive", now))

	repo := NewReviewRepository(mock)
	require.NoError(t, repo.Create(context.Background(), rec))
	assert.NotEqual(t, uuid.Nil, rec.ID)

	reviews, err := repo.ListByRequest(context.Background(), requestID)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, domain.ReviewFalsePositive, reviews[0].Quality)
	assert.Equal(t, reviewID, reviews[0].ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// CredentialRepository Tests

var credentialRowColumns = []string{
	"request_id", "subject_id", "tier", "issued_at", "last_kyc_at", "last_liveness_at", "issuer_id",
	"credential_hash", "revoked", "status", "external_receipt_id", "attempts",
	"last_error", "next_retry_at", "created_at", "updated_at",
}

func TestCredentialRepository_Create(t *testing.T) {
	now := time.Now()
	cred := &domain.Credential{
		RequestID:      uuid.New(),
		SubjectID:      "0xabc",
		Tier:           domain.TierFullKYC,
		LastKYCAt:      now,
		LastLivenessAt: now,
		IssuerID:       "veritas",
		CredentialHash: "abc123",
	}

	tests := []struct {
		name        string
		mockSetup   func(mock pgxmock.PgxPoolIface)
		wantCreated bool
		wantErr     bool
	}{
		{
			name: "new credential",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO credentials (.+) ON CONFLICT \(request_id\) DO NOTHING`).
					WithArgs(cred.RequestID, "0xabc", "full_kyc", pgxmock.AnyArg(), pgxmock.AnyArg(), "veritas", "abc123", "pending_issuance").
					WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
			},
			wantCreated: true,
		},
		{
			name: "credential already exists",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO credentials`).
					WithArgs(cred.RequestID, "0xabc", "full_kyc", pgxmock.AnyArg(), pgxmock.AnyArg(), "veritas", "abc123", "pending_issuance").
					WillReturnError(pgx.ErrNoRows)
			},
			wantCreated: false,
		},
		{
			name: "database error",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO credentials`).
					WithArgs(cred.RequestID, "0xabc", "full_kyc", pgxmock.AnyArg(), pgxmock.AnyArg(), "veritas", "abc123", "pending_issuance").
					WillReturnError(errors.New("disk full"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.mockSetup(mock)

			c := *cred
			repo := NewCredentialRepository(mock)
			created, err := repo.Create(context.Background(), &c)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "create credential")
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantCreated, created)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCredentialRepository_GetLatestBySubject(t *testing.T) {
	id := uuid.New()
	now := time.Now()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT (.+) FROM credentials WHERE subject_id = \$1 ORDER BY created_at DESC LIMIT 1`).
		WithArgs("0xabc").
		WillReturnRows(pgxmock.NewRows(credentialRowColumns).AddRow(
			id, "0xabc", "full_kyc", &now, now, now, "veritas",
			"abc123", false, "issued", "receipt-1", 1,
			"", (*time.Time)(nil), now, now,
		))

	repo := NewCredentialRepository(mock)
	got, err := repo.GetLatestBySubject(context.Background(), "0xabc")

	require.NoError(t, err)
	assert.Equal(t, id, got.RequestID)
	assert.True(t, got.IsIssued())
	assert.Equal(t, "receipt-1", got.ExternalReceiptID)
	require.NotNil(t, got.IssuedAt)
	assert.Nil(t, got.NextRetryAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepository_GetByRequestID_NotFound(t *testing.T) {
	id := uuid.New()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT (.+) FROM credentials WHERE request_id = \$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	repo := NewCredentialRepository(mock)
	_, err = repo.GetByRequestID(context.Background(), id)

	assert.ErrorIs(t, err, domain.ErrCredentialNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepository_MarkIssuedAndRetry(t *testing.T) {
	id := uuid.New()
	now := time.Now()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE credentials SET attempts = attempts \+ 1, last_error = \$1`).
		WithArgs("issuer down", pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE credentials SET status = 'issued'`).
		WithArgs("receipt-9", pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE credentials SET status = 'issued'`).
		WithArgs("receipt-9", pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewCredentialRepository(mock)
	require.NoError(t, repo.MarkRetry(context.Background(), id, "issuer down", now.Add(time.Minute)))
	require.NoError(t, repo.MarkIssued(context.Background(), id, "receipt-9", now))
	assert.ErrorIs(t, repo.MarkIssued(context.Background(), id, "receipt-9", now), domain.ErrCredentialNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepository_ClaimDueForRetry(t *testing.T) {
	now := time.Now()
	retryAt := now.Add(-time.Second)
	first, second := uuid.New(), uuid.New()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`UPDATE credentials SET next_retry_at = NOW\(\) \+ make_interval(.+)FOR UPDATE SKIP LOCKED`).
		WithArgs(10, 8, float64(60)).
		WillReturnRows(pgxmock.NewRows(credentialRowColumns).
			AddRow(first, "s1", "full_kyc", (*time.Time)(nil), now, now, "veritas",
				"h1", false, "pending_issuance", "", 1, "timeout", &retryAt, now, now).
			AddRow(second, "s2", "full_kyc", (*time.Time)(nil), now, now, "veritas",
				"h2", false, "pending_issuance", "", 0, "", (*time.Time)(nil), now, now))

	repo := NewCredentialRepository(mock)
	creds, err := repo.ClaimDueForRetry(context.Background(), 10, 8, time.Minute)

	require.NoError(t, err)
	require.Len(t, creds, 2)
	assert.Equal(t, first, creds[0].RequestID)
	assert.Equal(t, "timeout", creds[0].LastError)
	assert.Equal(t, domain.IssuancePending, creds[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepository_Revoke(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name         string
		rowsAffected int64
		wantErr      error
	}{
		{name: "revokes existing credential", rowsAffected: 1},
		{name: "unknown credential", rowsAffected: 0, wantErr: domain.ErrCredentialNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectExec(`UPDATE credentials SET revoked = true`).
				WithArgs(id).
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.rowsAffected))

			repo := NewCredentialRepository(mock)
			err = repo.Revoke(context.Background(), id)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
