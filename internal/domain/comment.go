package domain

import "time"

// Comment captures a reply in a ticket thread. Comments are never edited.
type Comment struct {
	ID             int64
	TicketID       int64
	AuthorID       int64
	AuthorUsername string
	AuthorIsStaff  bool
	Content        string
	IsInternal     bool
	CreatedAt      time.Time
}
