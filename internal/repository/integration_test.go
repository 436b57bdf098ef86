//go:build integration

package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/saturnino-fabrica-de-software/veritas/internal/database"
	"github.com/saturnino-fabrica-de-software/veritas/internal/domain"
)

func setupIntegrationTest(t *testing.T) (*pgxpool.Pool, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "veritas_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connStr := fmt.Sprintf("postgres://test:test@%s:%s/veritas_test?sslmode=disable", host, port.Port())

	sqlDB, err := database.OpenSQL(ctx, connStr)
	require.NoError(t, err)
	migrator, err := database.NewMigrator(sqlDB, "veritas_test")
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	_ = migrator.Close()

	db, err := database.NewPool(ctx, database.DefaultPoolConfig(connStr))
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}

	return db, cleanup
}

func TestVerificationLifecycle_Integration(t *testing.T) {
	db, cleanup := setupIntegrationTest(t)
	defer cleanup()

	ctx := context.Background()
	requests := NewVerificationRepository(db)
	decisions := NewDecisionRepository(db)
	credentials := NewCredentialRepository(db)

	req := &domain.VerificationRequest{
		SubjectID:         "0xintegration",
		Tier:              domain.TierFullKYC,
		StartedAt:         time.Now().Add(-time.Minute),
		SubmittedAt:       time.Now(),
		DocumentImageRef:  "doc",
		SelfieImageRef:    "selfie",
		LivenessFrameRefs: []string{"f0", "f1", "f2"},
	}
	require.NoError(t, requests.SaveRequest(ctx, req))

	t.Run("status follows the state machine", func(t *testing.T) {
		require.NoError(t, requests.TransitionStatus(ctx, req.ID, domain.StatusAnalyzing))
		require.NoError(t, requests.TransitionStatus(ctx, req.ID, domain.StatusApproved))

		err := requests.TransitionStatus(ctx, req.ID, domain.StatusRejected)
		assert.ErrorIs(t, err, domain.ErrAlreadyDecided)

		got, err := requests.GetByID(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusApproved, got.Status)
		assert.Equal(t, []string{"f0", "f1", "f2"}, got.LivenessFrameRefs)
	})

	t.Run("decision is written once", func(t *testing.T) {
		d := &domain.VerificationDecision{
			RequestID:      req.ID,
			SubjectID:      req.SubjectID,
			Tier:           req.Tier,
			Outcome:        domain.OutcomeApproved,
			RiskAssessment: domain.NewRiskAssessment(nil),
			DecidedAt:      time.Now(),
			ReasonCodes:    []domain.ReasonCode{},
		}
		created, err := decisions.SaveDecision(ctx, d)
		require.NoError(t, err)
		assert.True(t, created)

		created, err = decisions.SaveDecision(ctx, d)
		require.NoError(t, err)
		assert.False(t, created)
	})

	t.Run("concurrent credential creation yields one row", func(t *testing.T) {
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := credentials.Create(ctx, &domain.Credential{
					RequestID:      req.ID,
					SubjectID:      req.SubjectID,
					Tier:           req.Tier,
					LastKYCAt:      time.Now(),
					LastLivenessAt: time.Now(),
					IssuerID:       "veritas",
					CredentialHash: fmt.Sprintf("%064d", 0),
				})
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					created++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, created)
	})

	t.Run("retry claim leases due credentials", func(t *testing.T) {
		claimed, err := credentials.ClaimDueForRetry(ctx, 10, 8, time.Minute)
		require.NoError(t, err)
		require.Len(t, claimed, 1)

		// leased rows are not due anymore
		claimed, err = credentials.ClaimDueForRetry(ctx, 10, 8, time.Minute)
		require.NoError(t, err)
		assert.Empty(t, claimed)

		require.NoError(t, credentials.MarkIssued(ctx, req.ID, "receipt-1", time.Now()))
		got, err := credentials.GetLatestBySubject(ctx, req.SubjectID)
		require.NoError(t, err)
		assert.True(t, got.IsIssued())
		assert.Equal(t, 1, got.Attempts)
	})

	t.Run("unknown request", func(t *testing.T) {
		err := requests.TransitionStatus(ctx, uuid.New(), domain.StatusAnalyzing)
		assert.ErrorIs(t, err, domain.ErrRequestNotFound)
	})
}
