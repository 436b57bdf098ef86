package handler

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/veritas/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/veritas/internal/domain"
)

// CredentialService interface for the issuance gate
type CredentialService interface {
	GetCredential(ctx context.Context, subjectID string) (*domain.Credential, error)
	RevokeCredential(ctx context.Context, requestID uuid.UUID, actor string) (*domain.Credential, error)
}

// CredentialHandler exposes issued credentials
type CredentialHandler struct {
	service CredentialService
	logger  *slog.Logger
}

// NewCredentialHandler creates a new CredentialHandler instance
func NewCredentialHandler(service CredentialService, logger *slog.Logger) *CredentialHandler {
	return &CredentialHandler{
		service: service,
		logger:  logger,
	}
}

// CredentialResponse is the public view of a credential
type CredentialResponse struct {
	RequestID         string `json:"request_id"`
	SubjectID         string `json:"subject_id"`
	Tier              string `json:"tier"`
	Status            string `json:"status"`
	Revoked           bool   `json:"revoked"`
	IssuerID          string `json:"issuer_id"`
	CredentialHash    string `json:"credential_hash"`
	ExternalReceiptID string `json:"external_receipt_id,omitempty"`
	LastKYCAt         string `json:"last_kyc_at"`
	LastLivenessAt    string `json:"last_liveness_at"`
	IssuedAt          string `json:"issued_at,omitempty"`
}

// GetBySubject GET /v1/subjects/:subject_id/credential - latest credential
func (h *CredentialHandler) GetBySubject(c *fiber.Ctx) error {
	subjectID := strings.TrimSpace(c.Params("subject_id"))
	if subjectID == "" {
		return domain.ErrBadRequest.WithError(errors.New("subject_id is required"))
	}

	cred, err := h.service.GetCredential(c.UserContext(), subjectID)
	if err != nil {
		return err
	}

	return c.JSON(toCredentialResponse(cred))
}

// Revoke POST /v1/credentials/:request_id/revoke - revoke (supervisor JWT)
func (h *CredentialHandler) Revoke(c *fiber.Ctx) error {
	actor, err := middleware.GetReviewerID(c)
	if err != nil {
		return err
	}

	requestID, err := parseUUIDParam(c, "request_id")
	if err != nil {
		return err
	}

	cred, err := h.service.RevokeCredential(c.UserContext(), requestID, actor)
	if err != nil {
		return err
	}

	h.logger.Info("credential revoked via api", "request_id", requestID, "actor", actor)

	return c.JSON(toCredentialResponse(cred))
}

func toCredentialResponse(c *domain.Credential) CredentialResponse {
	resp := CredentialResponse{
		RequestID:         c.RequestID.String(),
		SubjectID:         c.SubjectID,
		Tier:              string(c.Tier),
		Status:            string(c.Status),
		Revoked:           c.Revoked,
		IssuerID:          c.IssuerID,
		CredentialHash:    c.CredentialHash,
		ExternalReceiptID: c.ExternalReceiptID,
		LastKYCAt:         c.LastKYCAt.Format(time.RFC3339),
		LastLivenessAt:    c.LastLivenessAt.Format(time.RFC3339),
	}
	if c.IssuedAt != nil {
		resp.IssuedAt = c.IssuedAt.Format(time.RFC3339)
	}
	return resp
}
