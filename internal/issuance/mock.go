package issuance

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var ErrMockIssuerDown = errors.New("mock issuer unavailable")

// MockIssuer is an in-memory issuer that honors the idempotency key.
type MockIssuer struct {
	mu       sync.Mutex
	receipts map[uuid.UUID]string
	calls    int
	failures int
}

// NewMockIssuer creates an issuer that fails the first `failures` calls.
func NewMockIssuer(failures int) *MockIssuer {
	return &MockIssuer{
		receipts: make(map[uuid.UUID]string),
		failures: failures,
	}
}

func (m *MockIssuer) Issue(_ context.Context, req IssueRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.failures > 0 {
		m.failures--
		return "", ErrMockIssuerDown
	}

	if receipt, ok := m.receipts[req.RequestID]; ok {
		return receipt, nil
	}
	receipt := fmt.Sprintf("mock-%s", req.RequestID)
	m.receipts[req.RequestID] = receipt
	return receipt, nil
}

// Calls returns how many times Issue was invoked.
func (m *MockIssuer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Records returns how many distinct credentials were created.
func (m *MockIssuer) Records() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.receipts)
}

var _ Issuer = (*MockIssuer)(nil)
