package ticketview

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-tracker/internal/domain"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func ticket(id, owner int64, priority domain.TicketPriority, createdOffset time.Duration) domain.Ticket {
	return domain.Ticket{
		ID:          id,
		OwnerID:     owner,
		Title:       "ticket",
		Description: "details",
		Category:    domain.CategoryGeneral,
		Priority:    priority,
		Status:      domain.StatusOpen,
		CreatedAt:   base.Add(createdOffset),
	}
}

func ids(tickets []domain.Ticket) []int64 {
	out := make([]int64, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, t.ID)
	}
	return out
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestBuild_ScopesNonStaffToOwnedTickets(t *testing.T) {
	tickets := []domain.Ticket{
		ticket(1, 1, domain.PriorityLow, 0),
		ticket(2, 2, domain.PriorityLow, time.Hour),
		ticket(3, 1, domain.PriorityLow, 2*time.Hour),
	}

	owner := domain.Actor{ID: 1}
	assert.Equal(t, []int64{3, 1}, ids(Build(owner, tickets, Params{})))

	stranger := domain.Actor{ID: 9}
	assert.Empty(t, Build(stranger, tickets, Params{}))

	staff := domain.Actor{ID: 5, IsStaff: true}
	assert.Equal(t, []int64{3, 2, 1}, ids(Build(staff, tickets, Params{})))
}

func TestBuild_PrioritySort(t *testing.T) {
	tickets := []domain.Ticket{
		ticket(1, 1, domain.PriorityLow, 0),
		ticket(2, 1, domain.PriorityCritical, time.Hour),
		ticket(3, 1, domain.PriorityMedium, 2*time.Hour),
		ticket(4, 1, domain.PriorityCritical, 3*time.Hour),
	}

	got := Build(domain.Actor{ID: 1}, tickets, Params{Sort: SortPriority})
	assert.Equal(t, []int64{4, 2, 3, 1}, ids(got))
}

func TestBuild_OldestAndDefaultSort(t *testing.T) {
	tickets := []domain.Ticket{
		ticket(1, 1, domain.PriorityLow, time.Hour),
		ticket(2, 1, domain.PriorityLow, 0),
		ticket(3, 1, domain.PriorityLow, 2*time.Hour),
	}
	actor := domain.Actor{ID: 1}

	assert.Equal(t, []int64{2, 1, 3}, ids(Build(actor, tickets, Params{Sort: SortOldest})))
	assert.Equal(t, []int64{3, 1, 2}, ids(Build(actor, tickets, Params{})))
	assert.Equal(t, []int64{3, 1, 2}, ids(Build(actor, tickets, Params{Sort: ParseSort("bogus")})))
}

func TestBuild_DueDateSortPutsMissingLast(t *testing.T) {
	tickets := []domain.Ticket{
		ticket(1, 1, domain.PriorityLow, 0),
		ticket(2, 1, domain.PriorityLow, time.Hour),
		ticket(3, 1, domain.PriorityLow, 2*time.Hour),
		ticket(4, 1, domain.PriorityLow, 3*time.Hour),
	}
	tickets[1].DueDate = date(2026, 4, 2)
	tickets[2].DueDate = date(2026, 4, 1)
	tickets[3].DueDate = date(2026, 4, 2)

	got := Build(domain.Actor{ID: 1}, tickets, Params{Sort: SortDueDate})
	assert.Equal(t, []int64{3, 4, 2, 1}, ids(got))
}

func TestBuild_FiltersAndSearch(t *testing.T) {
	assignee := int64(7)
	tickets := []domain.Ticket{
		ticket(1, 1, domain.PriorityHigh, 0),
		ticket(2, 1, domain.PriorityHigh, time.Hour),
		ticket(3, 1, domain.PriorityLow, 2*time.Hour),
	}
	tickets[0].Title = "Invoice is WRONG"
	tickets[0].Category = domain.CategoryBilling
	tickets[1].Description = "refund for last invoice"
	tickets[1].AssigneeID = &assignee
	tickets[2].Status = domain.StatusClosed

	staff := domain.Actor{ID: 5, IsStaff: true}

	high := domain.PriorityHigh
	assert.Equal(t, []int64{2, 1}, ids(Build(staff, tickets, Params{Priority: &high})))

	billing := domain.CategoryBilling
	assert.Equal(t, []int64{1}, ids(Build(staff, tickets, Params{Category: &billing})))

	closed := domain.StatusClosed
	assert.Equal(t, []int64{3}, ids(Build(staff, tickets, Params{Status: &closed})))

	assert.Equal(t, []int64{2}, ids(Build(staff, tickets, Params{AssigneeID: &assignee})))

	assert.Equal(t, []int64{2, 1}, ids(Build(staff, tickets, Params{Search: "invoice"})))
	assert.Equal(t, []int64{1}, ids(Build(staff, tickets, Params{Search: "invoice", Category: &billing})))
}

func TestBuild_DoesNotMutateInput(t *testing.T) {
	tickets := []domain.Ticket{
		ticket(1, 1, domain.PriorityLow, 0),
		ticket(2, 1, domain.PriorityCritical, time.Hour),
	}
	_ = Build(domain.Actor{ID: 1}, tickets, Params{Sort: SortPriority})
	assert.Equal(t, []int64{1, 2}, ids(tickets))
}

func TestParseParams(t *testing.T) {
	t.Run("recognized values", func(t *testing.T) {
		q := url.Values{
			"category":    {"billing"},
			"priority":    {"critical"},
			"status":      {"in_progress"},
			"assigned_to": {"42"},
			"search":      {"  printer  "},
			"sort":        {"due_date"},
		}
		p := ParseParams(q.Get)
		require.NotNil(t, p.Category)
		require.NotNil(t, p.Priority)
		require.NotNil(t, p.Status)
		require.NotNil(t, p.AssigneeID)
		assert.Equal(t, domain.CategoryBilling, *p.Category)
		assert.Equal(t, domain.PriorityCritical, *p.Priority)
		assert.Equal(t, domain.StatusInProgress, *p.Status)
		assert.Equal(t, int64(42), *p.AssigneeID)
		assert.Equal(t, "printer", p.Search)
		assert.Equal(t, SortDueDate, p.Sort)
	})

	t.Run("unrecognized values are ignored", func(t *testing.T) {
		q := url.Values{
			"category":    {"hardware"},
			"priority":    {"urgent"},
			"status":      {"pending"},
			"assigned_to": {"abc"},
			"sort":        {"-created_at"},
		}
		assert.Equal(t, Params{}, ParseParams(q.Get))
	})
}
