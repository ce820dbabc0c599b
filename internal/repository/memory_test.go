package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/policy"
	"github.com/spec-kit/ticket-tracker/internal/ticketview"
)

func seedStore(t *testing.T) (*MemoryStore, domain.User, domain.User, domain.User) {
	t.Helper()
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore(func() time.Time { return clock })

	alice := domain.User{Username: "alice"}
	bob := domain.User{Username: "bob"}
	staff := domain.User{Username: "agent", IsStaff: true}
	for _, u := range []*domain.User{&alice, &bob, &staff} {
		require.NoError(t, store.Users().Create(ctx, u))
	}
	return store, alice, bob, staff
}

func TestMemoryStore_TicketLifecycle(t *testing.T) {
	ctx := context.Background()
	store, alice, _, staff := seedStore(t)
	tickets := store.Tickets()

	ticket := domain.Ticket{OwnerID: alice.ID, AssigneeID: &staff.ID, Title: "Printer", Category: domain.CategoryTechnical,
		Priority: domain.PriorityLow, Status: domain.StatusOpen}
	require.NoError(t, tickets.Create(ctx, &ticket))
	assert.NotZero(t, ticket.ID)
	assert.Equal(t, "alice", ticket.OwnerUsername)
	require.NotNil(t, ticket.AssigneeUsername)
	assert.Equal(t, "agent", *ticket.AssigneeUsername)

	ticket.OwnerID = staff.ID
	ticket.Status = domain.StatusResolved
	require.NoError(t, tickets.Update(ctx, &ticket))

	got, err := tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.OwnerID)
	assert.Equal(t, domain.StatusResolved, got.Status)

	comment := domain.Comment{TicketID: ticket.ID, AuthorID: staff.ID, Content: "on it"}
	require.NoError(t, store.Comments().Create(ctx, &comment))
	assert.True(t, comment.AuthorIsStaff)

	require.NoError(t, tickets.Delete(ctx, ticket.ID))
	_, err = tickets.GetByID(ctx, ticket.ID)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
	_, err = store.Comments().GetByID(ctx, ticket.ID, comment.ID)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestMemoryStore_ListHonoursScope(t *testing.T) {
	ctx := context.Background()
	store, alice, bob, _ := seedStore(t)
	for _, owner := range []int64{alice.ID, bob.ID, alice.ID} {
		require.NoError(t, store.Tickets().Create(ctx, &domain.Ticket{OwnerID: owner, Title: "t",
			Category: domain.CategoryGeneral, Priority: domain.PriorityMedium, Status: domain.StatusOpen}))
	}

	mine, err := store.Tickets().List(ctx, policy.ListingScope(alice.Actor()), ticketview.Params{})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	all, err := store.Tickets().List(ctx, policy.Scope{}, ticketview.Params{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryStore_BulkUpdateRestrictedToScope(t *testing.T) {
	ctx := context.Background()
	store, alice, bob, _ := seedStore(t)
	own := domain.Ticket{OwnerID: alice.ID, Category: domain.CategoryGeneral, Priority: domain.PriorityLow, Status: domain.StatusOpen}
	other := domain.Ticket{OwnerID: bob.ID, Category: domain.CategoryGeneral, Priority: domain.PriorityLow, Status: domain.StatusOpen}
	require.NoError(t, store.Tickets().Create(ctx, &own))
	require.NoError(t, store.Tickets().Create(ctx, &other))

	closed := domain.StatusClosed
	n, err := store.Tickets().BulkUpdate(ctx, policy.ListingScope(alice.Actor()),
		[]int64{own.ID, other.ID, own.ID, 999}, BulkFields{Status: &closed})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := store.Tickets().GetByID(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, got.Status)
}

func TestMemoryStore_CommentVisibility(t *testing.T) {
	ctx := context.Background()
	store, alice, _, staff := seedStore(t)
	ticket := domain.Ticket{OwnerID: alice.ID, Category: domain.CategoryGeneral, Priority: domain.PriorityLow, Status: domain.StatusOpen}
	require.NoError(t, store.Tickets().Create(ctx, &ticket))

	require.NoError(t, store.Comments().Create(ctx, &domain.Comment{TicketID: ticket.ID, AuthorID: alice.ID, Content: "help"}))
	require.NoError(t, store.Comments().Create(ctx, &domain.Comment{TicketID: ticket.ID, AuthorID: staff.ID, Content: "note", IsInternal: true}))

	public, err := store.Comments().ListByTicket(ctx, ticket.ID, false)
	require.NoError(t, err)
	assert.Len(t, public, 1)

	counts, err := store.Comments().CountByTickets(ctx, []int64{ticket.ID}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[ticket.ID])

	err = store.Comments().Create(ctx, &domain.Comment{TicketID: 404, AuthorID: alice.ID})
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}
