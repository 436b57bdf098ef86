package issuance

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/veritas/internal/domain"
)

// IssueRequest is what the external issuer receives. RequestID doubles as
// the idempotency key, so replaying a request never creates a second record.
type IssueRequest struct {
	RequestID      uuid.UUID   `json:"request_id"`
	SubjectID      string      `json:"subject_id"`
	Tier           domain.Tier `json:"tier"`
	IssuerID       string      `json:"issuer_id"`
	LastKYCAt      time.Time   `json:"last_kyc_at"`
	LastLivenessAt time.Time   `json:"last_liveness_at"`
	CredentialHash string      `json:"credential_hash"`
}

// Issuer is the external issuance collaborator. It returns the receipt id of
// the record it created (or already had) for the request.
type Issuer interface {
	Issue(ctx context.Context, req IssueRequest) (string, error)
}

func newIssueRequest(c *domain.Credential) IssueRequest {
	return IssueRequest{
		RequestID:      c.RequestID,
		SubjectID:      c.SubjectID,
		Tier:           c.Tier,
		IssuerID:       c.IssuerID,
		LastKYCAt:      c.LastKYCAt.UTC(),
		LastLivenessAt: c.LastLivenessAt.UTC(),
		CredentialHash: c.CredentialHash,
	}
}
