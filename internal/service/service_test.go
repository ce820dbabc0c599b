package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-tracker/internal/classifier"
	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/events"
	"github.com/spec-kit/ticket-tracker/internal/repository"
	"github.com/spec-kit/ticket-tracker/internal/ticketview"
	apperrors "github.com/spec-kit/ticket-tracker/pkg/util/errorutil"
)

var testNow = time.Date(2026, 5, 20, 15, 30, 0, 0, time.UTC)

type fixture struct {
	store    *repository.MemoryStore
	tickets  *TicketService
	comments *CommentService
	alice    domain.Actor
	bob      domain.Actor
	staff    domain.Actor
	events   []events.Event
}

type completerFunc func(ctx context.Context, req classifier.CompletionRequest) (string, error)

func (f completerFunc) Complete(ctx context.Context, req classifier.CompletionRequest) (string, error) {
	return f(ctx, req)
}

type bulkMetrics struct{ total int64 }

func (m *bulkMetrics) RecordBulkUpdate(count int64) { m.total += count }

func newFixture(t *testing.T, completer classifier.Completer) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{store: repository.NewMemoryStore(func() time.Time { return testNow })}

	dispatcher := events.NewInMemoryDispatcher()
	for _, et := range []events.EventType{events.EventTicketCreated, events.EventTicketUpdated,
		events.EventTicketDeleted, events.EventTicketsBulkUpdated, events.EventCommentAdded} {
		dispatcher.Subscribe(et, func(_ context.Context, e events.Event) error {
			f.events = append(f.events, e)
			return nil
		})
	}

	users := map[string]*domain.Actor{"alice": &f.alice, "bob": &f.bob, "agent": &f.staff}
	for name, actor := range users {
		u := &domain.User{Username: name, IsStaff: name == "agent"}
		require.NoError(t, f.store.Users().Create(ctx, u))
		*actor = u.Actor()
	}

	clock := func() time.Time { return testNow }
	f.tickets = NewTicketService(TicketDependencies{
		TicketRepo:  f.store.Tickets(),
		CommentRepo: f.store.Comments(),
		UserRepo:    f.store.Users(),
		Classifier:  classifier.NewBridge(completer, time.Second, nil, nil),
		Dispatcher:  dispatcher,
		Clock:       clock,
	})
	f.comments = NewCommentService(CommentDependencies{
		TicketRepo:  f.store.Tickets(),
		CommentRepo: f.store.Comments(),
		Dispatcher:  dispatcher,
		Clock:       clock,
	})
	return f
}

// seed stores a ticket directly so created_at can be controlled.
func (f *fixture) seed(t *testing.T, owner domain.Actor, priority domain.TicketPriority, createdAt time.Time) domain.Ticket {
	t.Helper()
	ticket := domain.Ticket{
		OwnerID:     owner.ID,
		Title:       "ticket",
		Description: "description",
		Category:    domain.CategoryGeneral,
		Priority:    priority,
		Status:      domain.StatusOpen,
		CreatedAt:   createdAt,
	}
	require.NoError(t, f.store.Tickets().Create(context.Background(), &ticket))
	return ticket
}

func ids(records []TicketRecord) []int64 {
	out := make([]int64, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestTicketService_CreateAppliesDefaultsAndOwner(t *testing.T) {
	f := newFixture(t, nil)
	due := "2026-06-01"

	detail, err := f.tickets.Create(context.Background(), f.alice, TicketCreateInput{
		Title:       "  Cannot pay invoice ",
		Description: "Card declined",
		DueDate:     &due,
	})
	require.NoError(t, err)
	assert.Equal(t, f.alice.ID, detail.OwnerID)
	assert.Equal(t, "alice", detail.OwnerUsername)
	assert.Equal(t, "Cannot pay invoice", detail.Title)
	assert.Equal(t, domain.CategoryGeneral, detail.Category)
	assert.Equal(t, domain.PriorityMedium, detail.Priority)
	assert.Equal(t, domain.StatusOpen, detail.Status)
	require.NotNil(t, detail.DueDate)
	assert.Equal(t, due, detail.DueDate.Format(domain.DateLayout))
	assert.False(t, detail.IsOverdue)
	require.Len(t, f.events, 1)
	assert.Equal(t, events.EventTicketCreated, f.events[0].Type)
}

func TestTicketService_CreateValidation(t *testing.T) {
	f := newFixture(t, nil)
	missing := int64(999)
	badDate := "tomorrow"

	_, err := f.tickets.Create(context.Background(), f.alice, TicketCreateInput{
		Category:   "sales",
		Priority:   "urgent",
		AssigneeID: &missing,
		DueDate:    &badDate,
	})
	require.Error(t, err)
	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, "VALIDATION_FAILED", domainErr.Code)
	for _, field := range []string{"title", "description", "category", "priority", "assigned_to", "due_date"} {
		assert.Contains(t, domainErr.Details, field)
	}
}

func TestTicketService_ListScopesNonStaff(t *testing.T) {
	f := newFixture(t, nil)
	own := f.seed(t, f.alice, domain.PriorityLow, testNow.Add(-time.Hour))
	other := f.seed(t, f.bob, domain.PriorityLow, testNow.Add(-2*time.Hour))

	mine, err := f.tickets.List(context.Background(), f.alice, ticketview.Params{})
	require.NoError(t, err)
	assert.Equal(t, []int64{own.ID}, ids(mine))

	all, err := f.tickets.List(context.Background(), f.staff, ticketview.Params{})
	require.NoError(t, err)
	assert.Equal(t, []int64{own.ID, other.ID}, ids(all))

	_, err = f.tickets.Get(context.Background(), f.alice, other.ID)
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))
	_, err = f.tickets.Get(context.Background(), f.alice, 12345)
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))
}

func TestTicketService_ListSortsByPriority(t *testing.T) {
	f := newFixture(t, nil)
	low := f.seed(t, f.alice, domain.PriorityLow, testNow.Add(-4*time.Hour))
	critOld := f.seed(t, f.alice, domain.PriorityCritical, testNow.Add(-3*time.Hour))
	medium := f.seed(t, f.alice, domain.PriorityMedium, testNow.Add(-2*time.Hour))
	critNew := f.seed(t, f.alice, domain.PriorityCritical, testNow.Add(-1*time.Hour))

	records, err := f.tickets.List(context.Background(), f.alice, ticketview.Params{Sort: ticketview.SortPriority})
	require.NoError(t, err)
	assert.Equal(t, []int64{critNew.ID, critOld.ID, medium.ID, low.ID}, ids(records))
}

func TestTicketService_ListCountsVisibleComments(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	ticket := f.seed(t, f.alice, domain.PriorityLow, testNow)

	_, err := f.comments.Create(ctx, f.alice, ticket.ID, "hello", false)
	require.NoError(t, err)
	_, err = f.comments.Create(ctx, f.staff, ticket.ID, "internal triage note", true)
	require.NoError(t, err)

	owner, err := f.tickets.List(ctx, f.alice, ticketview.Params{})
	require.NoError(t, err)
	assert.Equal(t, 1, owner[0].CommentCount)

	staff, err := f.tickets.List(ctx, f.staff, ticketview.Params{})
	require.NoError(t, err)
	assert.Equal(t, 2, staff[0].CommentCount)

	detail, err := f.tickets.Get(ctx, f.alice, ticket.ID)
	require.NoError(t, err)
	require.Len(t, detail.Comments, 1)
	assert.False(t, detail.Comments[0].IsInternal)
}

func TestTicketService_UpdateKeepsOwnerAndChecksScope(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	ticket := f.seed(t, f.alice, domain.PriorityLow, testNow)
	status := "closed"
	assignee := f.staff.ID

	_, err := f.tickets.Update(ctx, f.bob, ticket.ID, TicketPatch{Status: &status})
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))

	detail, err := f.tickets.Update(ctx, f.staff, ticket.ID, TicketPatch{
		Status:      &status,
		AssigneeSet: true,
		AssigneeID:  &assignee,
	})
	require.NoError(t, err)
	assert.Equal(t, f.alice.ID, detail.OwnerID)
	assert.Equal(t, domain.StatusClosed, detail.Status)
	require.NotNil(t, detail.AssigneeUsername)
	assert.Equal(t, "agent", *detail.AssigneeUsername)

	last := f.events[len(f.events)-1]
	require.Equal(t, events.EventTicketUpdated, last.Type)
	payload := last.Payload.(events.TicketUpdatedPayload)
	assert.Equal(t, []string{"status", "assigned_to"}, payload.Fields)
	assert.Equal(t, domain.StatusOpen, *payload.OldStatus)

	detail, err = f.tickets.Update(ctx, f.alice, ticket.ID, TicketPatch{AssigneeSet: true})
	require.NoError(t, err)
	assert.Nil(t, detail.AssigneeID)

	bad := "done"
	_, err = f.tickets.Update(ctx, f.alice, ticket.ID, TicketPatch{Status: &bad})
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
}

func TestTicketService_DeleteCascadesComments(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	ticket := f.seed(t, f.alice, domain.PriorityLow, testNow)
	comment, err := f.comments.Create(ctx, f.alice, ticket.ID, "first", false)
	require.NoError(t, err)

	assert.True(t, apperrors.IsCode(f.tickets.Delete(ctx, f.bob, ticket.ID), "NOT_FOUND"))
	require.NoError(t, f.tickets.Delete(ctx, f.alice, ticket.ID))

	_, err = f.store.Comments().GetByID(ctx, ticket.ID, comment.ID)
	assert.Error(t, err)
}

func TestTicketService_OverdueDependsOnStatus(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	yesterday := testNow.AddDate(0, 0, -1).Format(domain.DateLayout)

	detail, err := f.tickets.Create(ctx, f.alice, TicketCreateInput{Title: "t", Description: "d", DueDate: &yesterday})
	require.NoError(t, err)
	assert.True(t, detail.IsOverdue)

	closed := "closed"
	detail, err = f.tickets.Update(ctx, f.alice, detail.ID, TicketPatch{Status: &closed})
	require.NoError(t, err)
	assert.False(t, detail.IsOverdue)
}

func TestTicketService_StatsUsesViewScopeAndFilters(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.seed(t, f.alice, domain.PriorityHigh, testNow.Add(-48*time.Hour))
	f.seed(t, f.alice, domain.PriorityLow, testNow.Add(-47*time.Hour))
	f.seed(t, f.alice, domain.PriorityHigh, testNow)
	f.seed(t, f.bob, domain.PriorityHigh, testNow)

	report, err := f.tickets.Stats(ctx, f.alice, ticketview.Params{})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 3, report.Open)
	assert.Equal(t, 1.5, report.AvgPerDay)
	assert.Equal(t, 2, report.Priority.Get(domain.PriorityHigh))
	assert.Equal(t, report.Total, report.Category.Sum())
	assert.Equal(t, report.Total, report.Status.Sum())

	high := domain.PriorityHigh
	report, err = f.tickets.Stats(ctx, f.staff, ticketview.Params{Priority: &high})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 0, report.Priority.Get(domain.PriorityLow))

	empty := newFixture(t, nil)
	report, err = empty.tickets.Stats(ctx, empty.alice, ticketview.Params{})
	require.NoError(t, err)
	assert.Zero(t, report.Total)
	assert.Zero(t, report.AvgPerDay)
}

func TestTicketService_BulkUpdate(t *testing.T) {
	f := newFixture(t, nil)
	metrics := &bulkMetrics{}
	f.tickets.metrics = metrics
	ctx := context.Background()
	own := f.seed(t, f.alice, domain.PriorityLow, testNow)
	other := f.seed(t, f.bob, domain.PriorityLow, testNow)

	t.Run("requires ids and updates", func(t *testing.T) {
		_, err := f.tickets.BulkUpdate(ctx, f.alice, nil, map[string]any{"status": "closed"})
		assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
		_, err = f.tickets.BulkUpdate(ctx, f.alice, []int64{own.ID}, map[string]any{})
		assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
		_, err = f.tickets.BulkUpdate(ctx, f.alice, []int64{own.ID}, map[string]any{"owner": 2})
		assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
	})

	t.Run("drops unknown keys", func(t *testing.T) {
		n, err := f.tickets.BulkUpdate(ctx, f.alice, []int64{own.ID}, map[string]any{"status": "closed", "hacker_field": "x"})
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
		got, err := f.tickets.Get(ctx, f.alice, own.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusClosed, got.Status)
	})

	t.Run("ignores tickets outside scope", func(t *testing.T) {
		n, err := f.tickets.BulkUpdate(ctx, f.alice, []int64{other.ID}, map[string]any{"priority": "critical"})
		require.NoError(t, err)
		assert.Zero(t, n)
		got, err := f.tickets.Get(ctx, f.staff, other.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PriorityLow, got.Priority)
	})

	t.Run("staff reach every ticket", func(t *testing.T) {
		n, err := f.tickets.BulkUpdate(ctx, f.staff, []int64{own.ID, other.ID, own.ID, 999},
			map[string]any{"assigned_to": float64(f.staff.ID), "category": "billing"})
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		n, err = f.tickets.BulkUpdate(ctx, f.staff, []int64{own.ID}, map[string]any{"assigned_to": nil})
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
		got, err := f.tickets.Get(ctx, f.staff, own.ID)
		require.NoError(t, err)
		assert.Nil(t, got.AssigneeID)
		assert.Equal(t, domain.CategoryBilling, got.Category)
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		_, err := f.tickets.BulkUpdate(ctx, f.staff, []int64{own.ID}, map[string]any{"status": "done", "assigned_to": 1.5})
		require.Error(t, err)
		details := apperrors.ToDomainError(err).Details
		assert.Contains(t, details, "status")
		assert.Contains(t, details, "assigned_to")
	})

	assert.EqualValues(t, 4, metrics.total)
}

func TestTicketService_ExportCSV(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	due := "2026-06-01"
	created, err := f.tickets.Create(ctx, f.alice, TicketCreateInput{Title: "Refund, please", Description: "d", DueDate: &due})
	require.NoError(t, err)
	f.seed(t, f.bob, domain.PriorityLow, testNow)

	var buf bytes.Buffer
	require.NoError(t, f.tickets.ExportCSV(ctx, f.alice, ticketview.Params{}, &buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, []string{
		strconv.FormatInt(created.ID, 10), "Refund, please", "general", "medium", "open", "alice", "2026-05-20 15:30", "2026-06-01",
	}, rows[1])
}

func TestTicketService_Classify(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, nil)
	_, err := f.tickets.Classify(ctx, "   ")
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
	_, err = f.tickets.Classify(ctx, "disk full")
	assert.True(t, apperrors.IsCode(err, "SERVICE_UNAVAILABLE"))

	f = newFixture(t, completerFunc(func(_ context.Context, req classifier.CompletionRequest) (string, error) {
		return `{"category":"technical","priority":"high"}`, nil
	}))
	result, err := f.tickets.Classify(ctx, "disk full")
	require.NoError(t, err)
	assert.Equal(t, classifier.Classification{Category: domain.CategoryTechnical, Priority: domain.PriorityHigh}, result)
}

func TestTicketService_SuggestReply(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, completerFunc(func(_ context.Context, req classifier.CompletionRequest) (string, error) {
		return "We are on it.", nil
	}))
	own := f.seed(t, f.alice, domain.PriorityLow, testNow)
	other := f.seed(t, f.bob, domain.PriorityLow, testNow)

	reply, err := f.tickets.SuggestReply(ctx, f.alice, own.ID)
	require.NoError(t, err)
	assert.Equal(t, "We are on it.", reply)

	_, err = f.tickets.SuggestReply(ctx, f.alice, other.ID)
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))

	unavailable := newFixture(t, nil)
	ticket := unavailable.seed(t, unavailable.alice, domain.PriorityLow, testNow)
	_, err = unavailable.tickets.SuggestReply(ctx, unavailable.alice, ticket.ID)
	assert.True(t, apperrors.IsCode(err, "SERVICE_UNAVAILABLE"))
}

func TestUserIDValue(t *testing.T) {
	tests := []struct {
		raw  any
		want int64
		ok   bool
	}{
		{float64(3), 3, true},
		{3.5, 0, false},
		{"12", 12, true},
		{"abc", 0, false},
		{int64(-1), -1, false},
		{true, 0, false},
		{math.Ldexp(1, 63), 0, false},
		{float64(1 << 53), 1 << 53, true},
	}
	for _, tc := range tests {
		got, ok := userIDValue(tc.raw)
		assert.Equal(t, tc.ok, ok, "%v", tc.raw)
		if tc.ok {
			assert.Equal(t, tc.want, got)
		}
	}
}

// unavailableUsers fails every lookup the way a lost connection does.
type unavailableUsers struct {
	repository.UserRepository
	err error
}

func (u unavailableUsers) GetByID(context.Context, int64) (*domain.User, error) {
	return nil, u.err
}

func TestTicketService_AssigneeLookupFailurePropagates(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	errConnRefused := errors.New("dial tcp: connection refused")
	tickets := NewTicketService(TicketDependencies{
		TicketRepo:  f.store.Tickets(),
		CommentRepo: f.store.Comments(),
		UserRepo:    unavailableUsers{UserRepository: f.store.Users(), err: errConnRefused},
		Clock:       func() time.Time { return testNow },
	})
	ticket := f.seed(t, f.alice, domain.PriorityLow, testNow)
	assignee := f.bob.ID

	_, err := tickets.BulkUpdate(ctx, f.staff, []int64{ticket.ID}, map[string]any{"assigned_to": float64(assignee)})
	require.ErrorIs(t, err, errConnRefused)
	assert.False(t, apperrors.IsCode(err, "VALIDATION_FAILED"))

	_, err = tickets.Create(ctx, f.alice, TicketCreateInput{Title: "t", Description: "d", AssigneeID: &assignee})
	require.ErrorIs(t, err, errConnRefused)

	_, err = tickets.Update(ctx, f.staff, ticket.ID, TicketPatch{AssigneeSet: true, AssigneeID: &assignee})
	require.ErrorIs(t, err, errConnRefused)

	stored, err := f.store.Tickets().GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.AssigneeID)
}
