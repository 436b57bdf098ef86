package issuance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/veritas/internal/domain"
)

func TestWorker_ProcessBatch_RetriesDueCredentials(t *testing.T) {
	repo := newMemoryRepo()
	issuer := NewMockIssuer(1)
	gate := newTestGate(repo, issuer, nil)
	decision := approvedDecision()

	_, err := gate.IssueCredential(context.Background(), decision)
	require.ErrorIs(t, err, domain.ErrIssuanceFailed)

	worker := NewWorker(repo, gate, nil, testLogger(), WorkerConfig{MaxAttempts: 3})

	// not due yet
	issued, err := worker.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, issued)

	repo.now = func() time.Time { return time.Now().Add(time.Hour) }

	issued, err = worker.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, issued)

	stored, err := repo.GetByRequestID(context.Background(), decision.RequestID)
	require.NoError(t, err)
	assert.True(t, stored.IsIssued())
	assert.Equal(t, 2, stored.Attempts)
	assert.Equal(t, 2, issuer.Calls())
}

func TestWorker_ProcessBatch_StopsAtMaxAttempts(t *testing.T) {
	repo := newMemoryRepo()
	issuer := NewMockIssuer(100)
	gate := newTestGate(repo, issuer, nil)
	repo.now = func() time.Time { return time.Now().Add(24 * time.Hour) }

	_, err := gate.IssueCredential(context.Background(), approvedDecision())
	require.Error(t, err)

	worker := NewWorker(repo, gate, nil, testLogger(), WorkerConfig{MaxAttempts: 2})

	_, err = worker.ProcessBatch(context.Background())
	require.NoError(t, err)
	_, err = worker.ProcessBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, issuer.Calls())
}

func TestWorker_RunStops(t *testing.T) {
	worker := NewWorker(newMemoryRepo(), newTestGate(newMemoryRepo(), NewMockIssuer(0), nil), nil, testLogger(),
		WorkerConfig{Interval: 5 * time.Millisecond})

	done := make(chan struct{})
	go func() {
		worker.Run(context.Background())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	worker.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorker_StopIsIdempotent(t *testing.T) {
	worker := NewWorker(newMemoryRepo(), newTestGate(newMemoryRepo(), NewMockIssuer(0), nil), nil, testLogger(), WorkerConfig{})

	assert.NotPanics(t, func() {
		worker.Stop()
		worker.Stop()
	})
}
