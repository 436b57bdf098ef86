package ws

import (
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/veritas/internal/audit"
	"github.com/saturnino-fabrica-de-software/veritas/internal/domain"
	"github.com/saturnino-fabrica-de-software/veritas/internal/reviewer"
)

// Message is what a connected reviewer receives. Subject identifiers never
// leave the server through the feed.
type Message struct {
	Type      audit.EventType   `json:"type"`
	RequestID uuid.UUID         `json:"request_id"`
	Outcome   string            `json:"outcome,omitempty"`
	Actor     string            `json:"actor,omitempty"`
	Success   bool              `json:"success"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func newMessage(e audit.Event) Message {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return Message{
		Type:      e.EventType,
		RequestID: e.RequestID,
		Outcome:   e.Outcome,
		Actor:     e.Actor,
		Success:   e.Success,
		Metadata:  e.Metadata,
		Timestamp: ts,
	}
}

// audience returns the roles that receive an event. Reviewers only see what
// they can act on; supervisors see the whole pipeline.
func audience(e audit.Event) []string {
	switch e.EventType {
	case audit.EventDecisionMade:
		if e.Outcome == string(domain.OutcomeNeedsReview) {
			return []string{reviewer.RoleReviewer, reviewer.RoleSupervisor}
		}
		return []string{reviewer.RoleSupervisor}
	case audit.EventReviewResolved:
		return []string{reviewer.RoleReviewer, reviewer.RoleSupervisor}
	default:
		return []string{reviewer.RoleSupervisor}
	}
}
