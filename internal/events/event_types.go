package events

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated      EventType = "ticket_created"
	EventTicketUpdated      EventType = "ticket_updated"
	EventTicketClosed       EventType = "ticket_closed"
	EventTicketReopened     EventType = "ticket_reopened"
	EventTicketMessageAdded EventType = "ticket_message_added"
)

// Actor identifies who triggered an event.
type Actor struct {
	UserID string          `json:"user_id"`
	Role   domain.UserRole `json:"role"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	ExternalKey string                `json:"external_key"`
	Priority    domain.TicketPriority `json:"priority"`
	Type        string                `json:"type"`
	Title       string                `json:"title"`
}

// TicketUpdatedPayload lists the per-field history lines produced by a
// status/field update.
type TicketUpdatedPayload struct {
	Status  domain.TicketStatus `json:"status"`
	Changes []string            `json:"changes"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	Comment string `json:"comment"`
}

// TicketReopenedPayload payload.
type TicketReopenedPayload struct {
	PreviousStatus domain.TicketStatus `json:"previous_status"`
}

// TicketMessageAddedPayload payload.
type TicketMessageAddedPayload struct {
	MessageID   string `json:"message_id"`
	AuthorID    string `json:"author_id"`
	TextPreview string `json:"text_preview"`
}
