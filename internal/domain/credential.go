package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IssuanceStatus tracks the hand-off to the external issuer.
type IssuanceStatus string

const (
	IssuancePending IssuanceStatus = "pending_issuance"
	IssuanceIssued  IssuanceStatus = "issued"
)

// Credential is the durable proof of an approved full_kyc verification.
// RequestID is the idempotency key: there is exactly one per approved decision.
type Credential struct {
	RequestID         uuid.UUID      `json:"request_id"`
	SubjectID         string         `json:"subject_id"`
	Tier              Tier           `json:"tier"`
	IssuedAt          *time.Time     `json:"issued_at,omitempty"`
	LastKYCAt         time.Time      `json:"last_kyc_at"`
	LastLivenessAt    time.Time      `json:"last_liveness_at"`
	IssuerID          string         `json:"issuer_id"`
	CredentialHash    string         `json:"credential_hash"`
	Revoked           bool           `json:"revoked"`
	Status            IssuanceStatus `json:"status"`
	ExternalReceiptID string         `json:"external_receipt_id,omitempty"`
	Attempts          int            `json:"attempts"`
	LastError         string         `json:"last_error,omitempty"`
	NextRetryAt       *time.Time     `json:"next_retry_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// IsIssued reports whether the issuer already acknowledged the credential.
func (c *Credential) IsIssued() bool {
	return c.Status == IssuanceIssued
}

// ComputeCredentialHash returns the hex sha256 over the subject, tier,
// decision time and a digest of the stage results. Same input, same hash.
func ComputeCredentialHash(subjectID string, tier Tier, decidedAt time.Time, stages []StageResult) string {
	h := sha256.New()
	fmt.Fprintf(h, "subject=%s\n", subjectID)
	fmt.Fprintf(h, "tier=%s\n", tier)
	fmt.Fprintf(h, "decided_at=%s\n", decidedAt.UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(h, "stages=%s\n", stageDigest(stages))
	return hex.EncodeToString(h.Sum(nil))
}

func stageDigest(stages []StageResult) string {
	parts := make([]string, 0, len(stages))
	for _, s := range stages {
		parts = append(parts, fmt.Sprintf("%s:%t:%.4f", s.Stage, s.Passed, s.Confidence))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
