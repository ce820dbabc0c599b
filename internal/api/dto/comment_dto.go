package dto

import (
	"time"

	"github.com/spec-kit/ticket-tracker/internal/domain"
)

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Content    string `json:"content"`
	IsInternal bool   `json:"is_internal"`
}

// Comment response.
type Comment struct {
	ID             int64     `json:"id"`
	Ticket         int64     `json:"ticket"`
	Author         int64     `json:"author"`
	AuthorUsername string    `json:"author_username"`
	AuthorIsStaff  bool      `json:"author_is_staff"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	IsInternal     bool      `json:"is_internal"`
}

// NewComment maps a comment.
func NewComment(c *domain.Comment) Comment {
	return Comment{
		ID:             c.ID,
		Ticket:         c.TicketID,
		Author:         c.AuthorID,
		AuthorUsername: c.AuthorUsername,
		AuthorIsStaff:  c.AuthorIsStaff,
		Content:        c.Content,
		CreatedAt:      c.CreatedAt,
		IsInternal:     c.IsInternal,
	}
}

// NewComments maps a thread, never returning nil.
func NewComments(comments []domain.Comment) []Comment {
	out := make([]Comment, 0, len(comments))
	for i := range comments {
		out = append(out, NewComment(&comments[i]))
	}
	return out
}
