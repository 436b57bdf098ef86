package issuance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/veritas/internal/domain"
	"github.com/saturnino-fabrica-de-software/veritas/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memoryRepo is an in-memory CredentialRepositoryInterface.
type memoryRepo struct {
	mu    sync.Mutex
	creds map[uuid.UUID]domain.Credential
	now   func() time.Time
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{creds: make(map[uuid.UUID]domain.Credential), now: time.Now}
}

func (m *memoryRepo) Create(_ context.Context, c *domain.Credential) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.creds[c.RequestID]; ok {
		return false, nil
	}
	c.CreatedAt = m.now()
	c.UpdatedAt = c.CreatedAt
	m.creds[c.RequestID] = *c
	return true, nil
}

func (m *memoryRepo) GetByRequestID(_ context.Context, id uuid.UUID) (*domain.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[id]
	if !ok {
		return nil, domain.ErrCredentialNotFound
	}
	return &c, nil
}

func (m *memoryRepo) GetLatestBySubject(_ context.Context, subjectID string) (*domain.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *domain.Credential
	for _, c := range m.creds {
		if c.SubjectID != subjectID {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			cc := c
			latest = &cc
		}
	}
	if latest == nil {
		return nil, domain.ErrCredentialNotFound
	}
	return latest, nil
}

func (m *memoryRepo) MarkIssued(_ context.Context, id uuid.UUID, receipt string, issuedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[id]
	if !ok || c.Status != domain.IssuancePending {
		return domain.ErrCredentialNotFound
	}
	c.Status = domain.IssuanceIssued
	c.ExternalReceiptID = receipt
	c.IssuedAt = &issuedAt
	c.Attempts++
	c.LastError = ""
	c.NextRetryAt = nil
	m.creds[id] = c
	return nil
}

func (m *memoryRepo) MarkRetry(_ context.Context, id uuid.UUID, lastError string, next time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[id]
	if !ok || c.Status != domain.IssuancePending {
		return domain.ErrCredentialNotFound
	}
	c.Attempts++
	c.LastError = lastError
	c.NextRetryAt = &next
	m.creds[id] = c
	return nil
}

func (m *memoryRepo) ClaimDueForRetry(_ context.Context, limit, maxAttempts int, lease time.Duration) ([]domain.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var out []domain.Credential
	for id, c := range m.creds {
		if len(out) >= limit {
			break
		}
		if c.Status != domain.IssuancePending || c.Revoked || c.Attempts >= maxAttempts {
			continue
		}
		if c.NextRetryAt != nil && c.NextRetryAt.After(now) {
			continue
		}
		leased := now.Add(lease)
		c.NextRetryAt = &leased
		m.creds[id] = c
		out = append(out, c)
	}
	return out, nil
}

func (m *memoryRepo) Revoke(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[id]
	if !ok {
		return domain.ErrCredentialNotFound
	}
	c.Revoked = true
	m.creds[id] = c
	return nil
}

var _ repository.CredentialRepositoryInterface = (*memoryRepo)(nil)

// slowIssuer widens the window in which concurrent callers overlap.
type slowIssuer struct {
	*MockIssuer
	delay time.Duration
}

func (s slowIssuer) Issue(ctx context.Context, req IssueRequest) (string, error) {
	time.Sleep(s.delay)
	return s.MockIssuer.Issue(ctx, req)
}

func approvedDecision() *domain.VerificationDecision {
	decided := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.VerificationDecision{
		RequestID: uuid.New(),
		SubjectID: "0xsubject",
		Tier:      domain.TierFullKYC,
		Outcome:   domain.OutcomeApproved,
		StageResults: []domain.StageResult{
			{Stage: domain.StageDocument, Confidence: 91, Passed: true, EvaluatedAt: decided.Add(-3 * time.Second)},
			{Stage: domain.StageFace, Confidence: 88, Passed: true, EvaluatedAt: decided.Add(-2 * time.Second)},
			{Stage: domain.StageLiveness, Confidence: 84, Passed: true, EvaluatedAt: decided.Add(-time.Second)},
		},
		RiskAssessment: domain.NewRiskAssessment(nil),
		DecidedAt:      decided,
	}
}

func newTestGate(repo repository.CredentialRepositoryInterface, issuer Issuer, locker Locker) *Gate {
	return NewGate(repo, issuer, locker, nil, nil, testLogger(), Config{})
}

func TestGate_IssueCredential_NotEligible(t *testing.T) {
	gate := newTestGate(newMemoryRepo(), NewMockIssuer(0), nil)

	rejected := approvedDecision()
	rejected.Outcome = domain.OutcomeRejected
	basic := approvedDecision()
	basic.Tier = domain.TierBasic
	review := approvedDecision()
	review.Outcome = domain.OutcomeNeedsReview

	for _, d := range []*domain.VerificationDecision{rejected, basic, review, nil} {
		_, err := gate.IssueCredential(context.Background(), d)
		assert.ErrorIs(t, err, domain.ErrNotEligible)
	}
}

func TestGate_IssueCredential_Idempotent(t *testing.T) {
	repo := newMemoryRepo()
	issuer := NewMockIssuer(0)
	gate := newTestGate(repo, issuer, nil)
	decision := approvedDecision()

	first, err := gate.IssueCredential(context.Background(), decision)
	require.NoError(t, err)
	assert.True(t, first.IsIssued())
	assert.Equal(t, 1, first.Attempts)
	assert.Equal(t, decision.StageResults[2].EvaluatedAt, first.LastLivenessAt)
	assert.Equal(t, decision.DecidedAt, first.LastKYCAt)
	assert.Equal(t,
		domain.ComputeCredentialHash(decision.SubjectID, decision.Tier, decision.DecidedAt, decision.StageResults),
		first.CredentialHash)

	second, err := gate.IssueCredential(context.Background(), decision)
	require.NoError(t, err)
	assert.Equal(t, first.ExternalReceiptID, second.ExternalReceiptID)
	assert.Equal(t, first.CredentialHash, second.CredentialHash)
	assert.Equal(t, 1, issuer.Calls(), "issued credential must not reach the issuer again")
}

func TestGate_IssueCredential_ConcurrentCallsIssueOnce(t *testing.T) {
	repo := newMemoryRepo()
	issuer := NewMockIssuer(0)
	locker := NewLocalLocker()
	// two gates sharing storage and lock behave like two replicas
	gates := []*Gate{
		newTestGate(repo, slowIssuer{issuer, 20 * time.Millisecond}, locker),
		newTestGate(repo, slowIssuer{issuer, 20 * time.Millisecond}, locker),
	}
	decision := approvedDecision()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(g *Gate) {
			defer wg.Done()
			_, err := g.IssueCredential(context.Background(), decision)
			assert.NoError(t, err)
		}(gates[i%2])
	}
	wg.Wait()

	assert.Equal(t, 1, issuer.Calls())
	assert.Equal(t, 1, issuer.Records())

	stored, err := repo.GetByRequestID(context.Background(), decision.RequestID)
	require.NoError(t, err)
	assert.True(t, stored.IsIssued())
	assert.Equal(t, 1, stored.Attempts)
}

func TestGate_IssueCredential_FailureSchedulesRetry(t *testing.T) {
	repo := newMemoryRepo()
	issuer := NewMockIssuer(1)
	gate := newTestGate(repo, issuer, nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gate.now = func() time.Time { return now }
	decision := approvedDecision()

	cred, err := gate.IssueCredential(context.Background(), decision)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrIssuanceFailed)
	assert.ErrorIs(t, err, ErrMockIssuerDown)
	require.NotNil(t, cred)
	assert.Equal(t, domain.IssuancePending, cred.Status)
	assert.Equal(t, 1, cred.Attempts)
	require.NotNil(t, cred.NextRetryAt)
	assert.Equal(t, now.Add(2*time.Second), *cred.NextRetryAt)

	stored, err := repo.GetByRequestID(context.Background(), decision.RequestID)
	require.NoError(t, err)
	assert.Equal(t, ErrMockIssuerDown.Error(), stored.LastError)
}

func TestGate_RevokedCredentialIsNotDelivered(t *testing.T) {
	repo := newMemoryRepo()
	issuer := NewMockIssuer(1)
	gate := newTestGate(repo, issuer, nil)
	decision := approvedDecision()

	_, err := gate.IssueCredential(context.Background(), decision)
	require.Error(t, err)

	revoked, err := gate.RevokeCredential(context.Background(), decision.RequestID, "reviewer-1")
	require.NoError(t, err)
	assert.True(t, revoked.Revoked)

	cred, err := gate.Retry(context.Background(), *revoked)
	require.NoError(t, err)
	assert.False(t, cred.IsIssued())
	assert.Equal(t, 1, issuer.Calls())
}

func TestGate_RevokeUnknown(t *testing.T) {
	gate := newTestGate(newMemoryRepo(), NewMockIssuer(0), nil)

	_, err := gate.RevokeCredential(context.Background(), uuid.New(), "reviewer-1")
	assert.ErrorIs(t, err, domain.ErrCredentialNotFound)
}

func TestGate_Backoff(t *testing.T) {
	gate := newTestGate(newMemoryRepo(), NewMockIssuer(0), nil)

	assert.Equal(t, 2*time.Second, gate.backoff(1))
	assert.Equal(t, 4*time.Second, gate.backoff(2))
	assert.Equal(t, 16*time.Second, gate.backoff(4))
	assert.Equal(t, 10*time.Minute, gate.backoff(15))
	assert.Equal(t, 10*time.Minute, gate.backoff(64))
}

type failingLocker struct{}

func (failingLocker) TryLock(context.Context, string, time.Duration) (func(), bool, error) {
	return nil, false, errors.New("redis unreachable")
}

func TestGate_LockErrorSchedulesRetry(t *testing.T) {
	repo := newMemoryRepo()
	issuer := NewMockIssuer(0)
	gate := newTestGate(repo, issuer, failingLocker{})

	cred, err := gate.IssueCredential(context.Background(), approvedDecision())
	assert.ErrorIs(t, err, domain.ErrIssuanceFailed)
	require.NotNil(t, cred)
	assert.Equal(t, 0, issuer.Calls())
	assert.Contains(t, cred.LastError, "redis unreachable")
}

func TestLocalLocker(t *testing.T) {
	l := NewLocalLocker()

	unlock, ok, err := l.TryLock(context.Background(), "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(context.Background(), "k", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, _ = l.TryLock(context.Background(), "other", time.Second)
	assert.True(t, ok)

	unlock()
	unlock()

	_, ok, _ = l.TryLock(context.Background(), "k", time.Second)
	assert.True(t, ok)
}
