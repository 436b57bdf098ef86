package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of auditable event
type EventType string

const (
	EventRequestSubmitted EventType = "REQUEST_SUBMITTED"
	EventStageCompleted   EventType = "STAGE_COMPLETED"
	EventDecisionMade     EventType = "DECISION_MADE"
	EventReviewResolved   EventType = "REVIEW_RESOLVED"
	EventCredentialIssued EventType = "CREDENTIAL_ISSUED"
	EventIssuanceFailed   EventType = "CREDENTIAL_ISSUANCE_FAILED"
	EventCredentialRevoke EventType = "CREDENTIAL_REVOKED"
)

// Event represents one step of a verification for the audit trail
type Event struct {
	ID        uuid.UUID         `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	RequestID uuid.UUID         `json:"request_id"`
	SubjectID string            `json:"subject_id,omitempty"`
	EventType EventType         `json:"event_type"`
	Stage     string            `json:"stage,omitempty"`
	Outcome   string            `json:"outcome,omitempty"`
	Actor     string            `json:"actor,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event) error
}

// SlogLogger implements Logger using slog
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a new audit logger using slog
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{
		logger: logger.With("component", "audit"),
	}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to marshal audit event",
			slog.String("error", err.Error()),
			slog.String("event_type", string(event.EventType)),
		)
		return err
	}

	l.logger.InfoContext(ctx, "audit_event",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.EventType)),
		slog.String("request_id", event.RequestID.String()),
		slog.Bool("success", event.Success),
		slog.String("event_data", string(eventJSON)),
	)

	return nil
}

// NoOpLogger is a logger that does nothing (for testing or when audit is disabled)
type NoOpLogger struct{}

// Log does nothing and returns nil
func (l *NoOpLogger) Log(_ context.Context, _ Event) error {
	return nil
}

// Multi forwards every event to each logger. The first error is returned
// after all loggers ran.
type Multi struct {
	loggers []Logger
}

// NewMulti creates a Logger that fans out to loggers, skipping nils.
func NewMulti(loggers ...Logger) *Multi {
	m := &Multi{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

// Log records the event on every logger
func (m *Multi) Log(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	var first error
	for _, l := range m.loggers {
		if err := l.Log(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
