package issuance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/saturnino-fabrica-de-software/veritas/internal/audit"
	"github.com/saturnino-fabrica-de-software/veritas/internal/domain"
	"github.com/saturnino-fabrica-de-software/veritas/internal/repository"
	"github.com/saturnino-fabrica-de-software/veritas/internal/telemetry"
)

// Config holds the gate settings.
type Config struct {
	IssuerID    string
	LockTTL     time.Duration
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		IssuerID:    "veritas",
		LockTTL:     30 * time.Second,
		BaseBackoff: 2 * time.Second,
		MaxBackoff:  10 * time.Minute,
	}
}

// Gate turns approved full_kyc decisions into exactly one credential each.
// Concurrent calls for the same request collapse in-process (singleflight),
// across replicas (Locker) and in storage (insert on conflict do nothing).
type Gate struct {
	repo    repository.CredentialRepositoryInterface
	issuer  Issuer
	locker  Locker
	sink    telemetry.Sink
	audit   audit.Logger
	logger  *slog.Logger
	config  Config
	flights singleflight.Group
	now     func() time.Time
}

// NewGate creates a new Gate
func NewGate(
	repo repository.CredentialRepositoryInterface,
	issuer Issuer,
	locker Locker,
	sink telemetry.Sink,
	auditLogger audit.Logger,
	logger *slog.Logger,
	cfg Config,
) *Gate {
	def := DefaultConfig()
	if cfg.IssuerID == "" {
		cfg.IssuerID = def.IssuerID
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	if sink == nil {
		sink = telemetry.Noop{}
	}
	if auditLogger == nil {
		auditLogger = &audit.NoOpLogger{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		repo:   repo,
		issuer: issuer,
		locker: locker,
		sink:   sink,
		audit:  auditLogger,
		logger: logger.With("component", "issuance"),
		config: cfg,
		now:    time.Now,
	}
}

// IssueCredential issues the credential of an approved full_kyc decision.
// An already issued credential is returned unchanged without calling the
// issuer. When the issuer fails, the pending credential is returned together
// with an ErrIssuanceFailed error and the retry worker takes over.
func (g *Gate) IssueCredential(ctx context.Context, decision *domain.VerificationDecision) (*domain.Credential, error) {
	if decision == nil || !decision.EligibleForCredential() {
		return nil, domain.ErrNotEligible
	}

	return g.once(decision.RequestID, func() (*domain.Credential, error) {
		cred, err := g.ensure(ctx, decision)
		if err != nil {
			return nil, err
		}
		return g.deliver(ctx, cred)
	})
}

// Retry re-attempts delivery of a pending credential.
func (g *Gate) Retry(ctx context.Context, cred domain.Credential) (*domain.Credential, error) {
	return g.once(cred.RequestID, func() (*domain.Credential, error) {
		return g.deliver(ctx, &cred)
	})
}

// GetCredential returns the latest credential of a subject.
func (g *Gate) GetCredential(ctx context.Context, subjectID string) (*domain.Credential, error) {
	return g.repo.GetLatestBySubject(ctx, subjectID)
}

// RevokeCredential marks the credential of a request as revoked.
func (g *Gate) RevokeCredential(ctx context.Context, requestID uuid.UUID, actor string) (*domain.Credential, error) {
	if err := g.repo.Revoke(ctx, requestID); err != nil {
		return nil, err
	}

	cred, err := g.repo.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	g.logAudit(ctx, audit.Event{
		RequestID: requestID,
		SubjectID: cred.SubjectID,
		EventType: audit.EventCredentialRevoke,
		Actor:     actor,
		Success:   true,
	})
	g.logger.InfoContext(ctx, "credential revoked", "request_id", requestID, "actor", actor)

	return cred, nil
}

func (g *Gate) once(requestID uuid.UUID, fn func() (*domain.Credential, error)) (*domain.Credential, error) {
	v, err, _ := g.flights.Do(requestID.String(), func() (any, error) {
		return fn()
	})
	cred, _ := v.(*domain.Credential)
	if cred == nil {
		return nil, err
	}
	// every caller gets its own copy
	out := *cred
	return &out, err
}

// ensure returns the stored credential of the decision, creating the
// pending record on first use.
func (g *Gate) ensure(ctx context.Context, decision *domain.VerificationDecision) (*domain.Credential, error) {
	existing, err := g.repo.GetByRequestID(ctx, decision.RequestID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrCredentialNotFound) {
		return nil, fmt.Errorf("load credential: %w", err)
	}

	cred := g.buildCredential(decision)
	if _, err := g.repo.Create(ctx, cred); err != nil {
		return nil, fmt.Errorf("store credential: %w", err)
	}

	// a concurrent replica may have won the insert
	return g.repo.GetByRequestID(ctx, decision.RequestID)
}

func (g *Gate) buildCredential(decision *domain.VerificationDecision) *domain.Credential {
	livenessAt := decision.DecidedAt
	if r, ok := decision.Stage(domain.StageLiveness); ok && !r.EvaluatedAt.IsZero() {
		livenessAt = r.EvaluatedAt
	}

	return &domain.Credential{
		RequestID:      decision.RequestID,
		SubjectID:      decision.SubjectID,
		Tier:           decision.Tier,
		LastKYCAt:      decision.DecidedAt.UTC(),
		LastLivenessAt: livenessAt.UTC(),
		IssuerID:       g.config.IssuerID,
		CredentialHash: domain.ComputeCredentialHash(decision.SubjectID, decision.Tier, decision.DecidedAt, decision.StageResults),
		Status:         domain.IssuancePending,
	}
}

func (g *Gate) deliver(ctx context.Context, cred *domain.Credential) (*domain.Credential, error) {
	if cred.IsIssued() || cred.Revoked {
		return cred, nil
	}

	unlock, acquired, err := g.locker.TryLock(ctx, cred.RequestID.String(), g.config.LockTTL)
	if err != nil {
		return g.fail(ctx, cred, fmt.Errorf("issuance lock: %w", err))
	}
	if !acquired {
		// another replica is delivering this credential right now
		g.logger.DebugContext(ctx, "issuance already in flight", "request_id", cred.RequestID)
		return cred, nil
	}
	defer unlock()

	// re-read under the lock: the holder before us may have finished
	current, err := g.repo.GetByRequestID(ctx, cred.RequestID)
	if err != nil {
		return nil, fmt.Errorf("reload credential: %w", err)
	}
	if current.IsIssued() || current.Revoked {
		return current, nil
	}

	receipt, err := g.issuer.Issue(ctx, newIssueRequest(current))
	if err != nil {
		return g.fail(ctx, current, err)
	}

	issuedAt := g.now().UTC()
	if err := g.repo.MarkIssued(ctx, current.RequestID, receipt, issuedAt); err != nil {
		return nil, fmt.Errorf("mark credential issued: %w", err)
	}

	current.Status = domain.IssuanceIssued
	current.ExternalReceiptID = receipt
	current.IssuedAt = &issuedAt
	current.Attempts++
	current.LastError = ""
	current.NextRetryAt = nil

	g.sink.Record(telemetry.MetricIssuance, 1, map[string]string{"result": "issued"})
	g.logAudit(ctx, audit.Event{
		RequestID: current.RequestID,
		SubjectID: current.SubjectID,
		EventType: audit.EventCredentialIssued,
		Success:   true,
		Metadata:  map[string]string{"receipt_id": receipt},
	})
	g.logger.InfoContext(ctx, "credential issued",
		"request_id", current.RequestID,
		"attempts", current.Attempts,
	)

	return current, nil
}

func (g *Gate) fail(ctx context.Context, cred *domain.Credential, cause error) (*domain.Credential, error) {
	attempts := cred.Attempts + 1
	next := g.now().Add(g.backoff(attempts)).UTC()

	if err := g.repo.MarkRetry(ctx, cred.RequestID, cause.Error(), next); err != nil {
		g.logger.ErrorContext(ctx, "failed to schedule issuance retry",
			"request_id", cred.RequestID,
			"error", err,
		)
	}

	cred.Attempts = attempts
	cred.LastError = cause.Error()
	cred.NextRetryAt = &next

	g.sink.Record(telemetry.MetricIssuance, 1, map[string]string{"result": "failed"})
	g.logAudit(ctx, audit.Event{
		RequestID: cred.RequestID,
		SubjectID: cred.SubjectID,
		EventType: audit.EventIssuanceFailed,
		Success:   false,
		Error:     cause.Error(),
	})
	g.logger.WarnContext(ctx, "credential issuance failed",
		"request_id", cred.RequestID,
		"attempts", attempts,
		"next_retry_at", next,
		"error", cause,
	)

	return cred, domain.ErrIssuanceFailed.WithError(cause)
}

// backoff doubles from BaseBackoff per attempt, capped at MaxBackoff.
func (g *Gate) backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 20 {
		return g.config.MaxBackoff
	}
	d := g.config.BaseBackoff * time.Duration(1<<(attempts-1))
	if d > g.config.MaxBackoff {
		return g.config.MaxBackoff
	}
	return d
}

func (g *Gate) logAudit(ctx context.Context, event audit.Event) {
	if err := g.audit.Log(ctx, event); err != nil {
		g.logger.WarnContext(ctx, "audit log failed", "event_type", event.EventType, "error", err)
	}
}
