package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-tracker/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated      EventType = "ticket_created"
	EventTicketUpdated      EventType = "ticket_updated"
	EventTicketDeleted      EventType = "ticket_deleted"
	EventTicketsBulkUpdated EventType = "tickets_bulk_updated"
	EventCommentAdded       EventType = "comment_added"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	IsStaff  bool   `json:"is_staff"`
}

// Event represents a domain event emitted by services. TicketID is zero for
// events spanning several tickets.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  int64       `json:"ticket_id,omitempty"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// New stamps an event with a fresh id.
func New(eventType EventType, ticketID int64, actor domain.Actor, at time.Time, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     Actor{UserID: actor.ID, Username: actor.Username, IsStaff: actor.IsStaff},
		Timestamp: at,
		Payload:   payload,
	}
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Category domain.TicketCategory `json:"category"`
	Priority domain.TicketPriority `json:"priority"`
	Title    string                `json:"title"`
}

// TicketUpdatedPayload lists the changed fields. Status fields are set only
// when the status changed.
type TicketUpdatedPayload struct {
	Fields    []string             `json:"fields"`
	OldStatus *domain.TicketStatus `json:"old_status,omitempty"`
	NewStatus *domain.TicketStatus `json:"new_status,omitempty"`
}

// TicketDeletedPayload payload.
type TicketDeletedPayload struct {
	Title string `json:"title"`
}

// TicketsBulkUpdatedPayload payload.
type TicketsBulkUpdatedPayload struct {
	RequestedIDs []int64  `json:"requested_ids"`
	Fields       []string `json:"fields"`
	Updated      int64    `json:"updated"`
}

// CommentAddedPayload payload.
type CommentAddedPayload struct {
	CommentID   int64  `json:"comment_id"`
	IsInternal  bool   `json:"is_internal"`
	BodyPreview string `json:"body_preview"`
}
