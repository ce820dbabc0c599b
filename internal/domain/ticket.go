package domain

import "time"

// TicketCategory classifies what a ticket is about.
type TicketCategory string

const (
	CategoryBilling   TicketCategory = "billing"
	CategoryTechnical TicketCategory = "technical"
	CategoryAccount   TicketCategory = "account"
	CategoryGeneral   TicketCategory = "general"
)

// Categories lists every category in display order.
var Categories = []TicketCategory{CategoryBilling, CategoryTechnical, CategoryAccount, CategoryGeneral}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	PriorityLow      TicketPriority = "low"
	PriorityMedium   TicketPriority = "medium"
	PriorityHigh     TicketPriority = "high"
	PriorityCritical TicketPriority = "critical"
)

// Priorities lists every priority in display order.
var Priorities = []TicketPriority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	StatusOpen       TicketStatus = "open"
	StatusInProgress TicketStatus = "in_progress"
	StatusResolved   TicketStatus = "resolved"
	StatusClosed     TicketStatus = "closed"
)

// Statuses lists every status in display order.
var Statuses = []TicketStatus{StatusOpen, StatusInProgress, StatusResolved, StatusClosed}

// DateLayout is the wire format for calendar dates such as due dates.
const DateLayout = "2006-01-02"

// ParseCategory reports whether s names a known category.
func ParseCategory(s string) (TicketCategory, bool) {
	return parseEnum(Categories, s)
}

// ParsePriority reports whether s names a known priority.
func ParsePriority(s string) (TicketPriority, bool) {
	return parseEnum(Priorities, s)
}

// ParseStatus reports whether s names a known status.
func ParseStatus(s string) (TicketStatus, bool) {
	return parseEnum(Statuses, s)
}

func parseEnum[T ~string](values []T, s string) (T, bool) {
	for _, v := range values {
		if string(v) == s {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// Rank orders priorities from most to least urgent, critical first.
func (p TicketPriority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return len(Priorities)
	}
}

// IsTerminal reports whether work on the ticket is finished.
func (s TicketStatus) IsTerminal() bool {
	return s == StatusResolved || s == StatusClosed
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID               int64
	OwnerID          int64
	OwnerUsername    string
	AssigneeID       *int64
	AssigneeUsername *string
	Title            string
	Description      string
	Category         TicketCategory
	Priority         TicketPriority
	Status           TicketStatus
	DueDate          *time.Time
	Attachment       *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsOverdue reports whether the due date lies before the calendar day of now
// and the ticket is still being worked on. The result depends on now.
func (t *Ticket) IsOverdue(now time.Time) bool {
	if t.DueDate == nil || t.Status.IsTerminal() {
		return false
	}
	return CalendarDate(*t.DueDate).Before(Today(now))
}

// CalendarDate drops the time of day from a stored date value.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the calendar day of now in now's location.
func Today(now time.Time) time.Time {
	return CalendarDate(now)
}
