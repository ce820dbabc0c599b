// Package ticketview builds the ordered, filtered ticket listing seen by an
// actor. The repository renders the same Params to SQL; Build applies them to
// an in-memory slice.
package ticketview

import (
	"sort"
	"strconv"
	"strings"

	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/policy"
)

// Sort selects the listing order.
type Sort string

const (
	SortDefault  Sort = ""
	SortPriority Sort = "priority"
	SortOldest   Sort = "oldest"
	SortDueDate  Sort = "due_date"
)

// ParseSort maps unknown values to SortDefault.
func ParseSort(s string) Sort {
	switch Sort(strings.TrimSpace(s)) {
	case SortPriority:
		return SortPriority
	case SortOldest:
		return SortOldest
	case SortDueDate:
		return SortDueDate
	default:
		return SortDefault
	}
}

// Params holds the optional filters, search term and sort of a listing.
type Params struct {
	Category   *domain.TicketCategory
	Priority   *domain.TicketPriority
	Status     *domain.TicketStatus
	AssigneeID *int64
	Search     string
	Sort       Sort
}

// ParseParams reads listing parameters through a query lookup. Values that do
// not parse are ignored rather than rejected.
func ParseParams(query func(key string) string) Params {
	var p Params
	if c, ok := domain.ParseCategory(strings.TrimSpace(query("category"))); ok {
		p.Category = &c
	}
	if pr, ok := domain.ParsePriority(strings.TrimSpace(query("priority"))); ok {
		p.Priority = &pr
	}
	if s, ok := domain.ParseStatus(strings.TrimSpace(query("status"))); ok {
		p.Status = &s
	}
	if raw := strings.TrimSpace(query("assigned_to")); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			p.AssigneeID = &id
		}
	}
	p.Search = strings.TrimSpace(query("search"))
	p.Sort = ParseSort(query("sort"))
	return p
}

// Matches applies the exact-match filters and the search term.
func (p Params) Matches(t *domain.Ticket) bool {
	if p.Category != nil && t.Category != *p.Category {
		return false
	}
	if p.Priority != nil && t.Priority != *p.Priority {
		return false
	}
	if p.Status != nil && t.Status != *p.Status {
		return false
	}
	if p.AssigneeID != nil && (t.AssigneeID == nil || *t.AssigneeID != *p.AssigneeID) {
		return false
	}
	if p.Search != "" {
		term := strings.ToLower(p.Search)
		if !strings.Contains(strings.ToLower(t.Title), term) &&
			!strings.Contains(strings.ToLower(t.Description), term) {
			return false
		}
	}
	return true
}

// Build returns the tickets visible to actor that match p, ordered by p.Sort.
// The input slice is not modified.
func Build(actor domain.Actor, tickets []domain.Ticket, p Params) []domain.Ticket {
	return Select(policy.ListingScope(actor), tickets, p)
}

// Select is Build for an already resolved scope.
func Select(scope policy.Scope, tickets []domain.Ticket, p Params) []domain.Ticket {
	result := make([]domain.Ticket, 0, len(tickets))
	for i := range tickets {
		if !scope.Includes(&tickets[i]) || !p.Matches(&tickets[i]) {
			continue
		}
		result = append(result, tickets[i])
	}
	Order(result, p.Sort)
	return result
}

// Order sorts tickets in place.
func Order(tickets []domain.Ticket, s Sort) {
	less := lessFunc(s)
	sort.SliceStable(tickets, func(i, j int) bool {
		return less(&tickets[i], &tickets[j])
	})
}

func lessFunc(s Sort) func(a, b *domain.Ticket) bool {
	switch s {
	case SortPriority:
		return func(a, b *domain.Ticket) bool {
			if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
				return ra < rb
			}
			return newestFirst(a, b)
		}
	case SortOldest:
		return func(a, b *domain.Ticket) bool {
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		}
	case SortDueDate:
		return func(a, b *domain.Ticket) bool {
			switch {
			case a.DueDate == nil && b.DueDate == nil:
				return newestFirst(a, b)
			case a.DueDate == nil:
				return false
			case b.DueDate == nil:
				return true
			case !a.DueDate.Equal(*b.DueDate):
				return a.DueDate.Before(*b.DueDate)
			}
			return newestFirst(a, b)
		}
	default:
		return newestFirst
	}
}

func newestFirst(a, b *domain.Ticket) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
