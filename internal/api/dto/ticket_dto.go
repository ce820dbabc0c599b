package dto

import (
	"time"

	"github.com/spec-kit/ticket-tracker/internal/domain"
)

// CreateTicketRequest payload. Owner is always the caller.
type CreateTicketRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Priority    string  `json:"priority"`
	Status      string  `json:"status"`
	AssignedTo  *int64  `json:"assigned_to"`
	DueDate     *string `json:"due_date"`
	Attachment  *string `json:"attachment"`
}

// TicketSummary is a ticket as it appears in listings.
type TicketSummary struct {
	ID                 int64                 `json:"id"`
	Title              string                `json:"title"`
	Description        string                `json:"description"`
	Category           domain.TicketCategory `json:"category"`
	Priority           domain.TicketPriority `json:"priority"`
	Status             domain.TicketStatus   `json:"status"`
	Owner              int64                 `json:"owner"`
	OwnerUsername      string                `json:"owner_username"`
	AssignedTo         *int64                `json:"assigned_to"`
	AssignedToUsername *string               `json:"assigned_to_username"`
	DueDate            *string               `json:"due_date"`
	Attachment         *string               `json:"attachment"`
	IsOverdue          bool                  `json:"is_overdue"`
	CommentCount       int                   `json:"comment_count"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

// TicketDetail adds the comments visible to the caller.
type TicketDetail struct {
	TicketSummary
	Comments []Comment `json:"comments"`
}

// BulkUpdateRequest payload. Unknown update keys are ignored.
type BulkUpdateRequest struct {
	IDs     []int64        `json:"ids"`
	Updates map[string]any `json:"updates"`
}

// BulkUpdateResponse reports how many tickets changed.
type BulkUpdateResponse struct {
	Updated int64 `json:"updated"`
}

// ClassifyRequest payload.
type ClassifyRequest struct {
	Description string `json:"description"`
}

// ClassifyResponse carries the suggested enumeration values.
type ClassifyResponse struct {
	SuggestedCategory domain.TicketCategory `json:"suggested_category"`
	SuggestedPriority domain.TicketPriority `json:"suggested_priority"`
}

// SuggestReplyResponse carries a drafted reply.
type SuggestReplyResponse struct {
	SuggestedReply string `json:"suggested_reply"`
}

// NewTicketSummary maps a ticket and its derived values.
func NewTicketSummary(t *domain.Ticket, isOverdue bool, commentCount int) TicketSummary {
	var dueDate *string
	if t.DueDate != nil {
		formatted := t.DueDate.Format(domain.DateLayout)
		dueDate = &formatted
	}
	return TicketSummary{
		ID:                 t.ID,
		Title:              t.Title,
		Description:        t.Description,
		Category:           t.Category,
		Priority:           t.Priority,
		Status:             t.Status,
		Owner:              t.OwnerID,
		OwnerUsername:      t.OwnerUsername,
		AssignedTo:         t.AssigneeID,
		AssignedToUsername: t.AssigneeUsername,
		DueDate:            dueDate,
		Attachment:         t.Attachment,
		IsOverdue:          isOverdue,
		CommentCount:       commentCount,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}
