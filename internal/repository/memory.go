package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/policy"
	"github.com/spec-kit/ticket-tracker/internal/ticketview"
)

// MemoryStore keeps users, tickets and comments in process. It backs the
// service when no Postgres DSN is configured and in tests. Missing rows are
// reported as pgx.ErrNoRows, matching the Postgres repositories.
type MemoryStore struct {
	mu       sync.RWMutex
	now      func() time.Time
	nextID   int64
	users    map[int64]domain.User
	tickets  map[int64]domain.Ticket
	comments map[int64]domain.Comment
}

// NewMemoryStore builds an empty store. A nil clock defaults to time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:      now,
		users:    make(map[int64]domain.User),
		tickets:  make(map[int64]domain.Ticket),
		comments: make(map[int64]domain.Comment),
	}
}

// Users exposes the store as a UserRepository.
func (s *MemoryStore) Users() UserRepository { return memoryUsers{s} }

// Tickets exposes the store as a TicketRepository.
func (s *MemoryStore) Tickets() TicketRepository { return memoryTickets{s} }

// Comments exposes the store as a CommentRepository.
func (s *MemoryStore) Comments() CommentRepository { return memoryComments{s} }

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

// stamp returns ts when set, otherwise the store clock.
func (s *MemoryStore) stamp(ts time.Time) time.Time {
	if !ts.IsZero() {
		return ts
	}
	return s.now()
}

// withNames fills the joined username columns. Callers hold the lock.
func (s *MemoryStore) withNames(t domain.Ticket) domain.Ticket {
	if owner, ok := s.users[t.OwnerID]; ok {
		t.OwnerUsername = owner.Username
	}
	t.AssigneeUsername = nil
	if t.AssigneeID != nil {
		if assignee, ok := s.users[*t.AssigneeID]; ok {
			name := assignee.Username
			t.AssigneeUsername = &name
		}
	}
	return t
}

func (s *MemoryStore) withAuthor(c domain.Comment) domain.Comment {
	if author, ok := s.users[c.AuthorID]; ok {
		c.AuthorUsername = author.Username
		c.AuthorIsStaff = author.IsStaff
	}
	return c
}

type memoryUsers struct{ s *MemoryStore }

func (m memoryUsers) Create(_ context.Context, user *domain.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	user.ID = m.s.id()
	user.CreatedAt = m.s.stamp(user.CreatedAt)
	m.s.users[user.ID] = *user
	return nil
}

func (m memoryUsers) GetByID(_ context.Context, id int64) (*domain.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	user, ok := m.s.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &user, nil
}

func (m memoryUsers) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for _, user := range m.s.users {
		if user.Username == username {
			u := user
			return &u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m memoryUsers) ListStaff(_ context.Context) ([]domain.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	result := []domain.User{}
	for _, user := range m.s.users {
		if user.IsStaff {
			result = append(result, user)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}

type memoryTickets struct{ s *MemoryStore }

func (m memoryTickets) Create(_ context.Context, ticket *domain.Ticket) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	ticket.ID = m.s.id()
	ticket.CreatedAt = m.s.stamp(ticket.CreatedAt)
	ticket.UpdatedAt = ticket.CreatedAt
	*ticket = m.s.withNames(*ticket)
	m.s.tickets[ticket.ID] = *ticket
	return nil
}

func (m memoryTickets) Update(_ context.Context, ticket *domain.Ticket) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	current, ok := m.s.tickets[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	ticket.OwnerID = current.OwnerID
	ticket.CreatedAt = current.CreatedAt
	ticket.UpdatedAt = m.s.now()
	*ticket = m.s.withNames(*ticket)
	m.s.tickets[ticket.ID] = *ticket
	return nil
}

func (m memoryTickets) Delete(_ context.Context, id int64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.tickets[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.s.tickets, id)
	for cid, c := range m.s.comments {
		if c.TicketID == id {
			delete(m.s.comments, cid)
		}
	}
	return nil
}

func (m memoryTickets) GetByID(_ context.Context, id int64) (*domain.Ticket, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	ticket, ok := m.s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	ticket = m.s.withNames(ticket)
	return &ticket, nil
}

func (m memoryTickets) List(_ context.Context, scope policy.Scope, params ticketview.Params) ([]domain.Ticket, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	all := make([]domain.Ticket, 0, len(m.s.tickets))
	for _, t := range m.s.tickets {
		all = append(all, m.s.withNames(t))
	}
	return ticketview.Select(scope, all, params), nil
}

func (m memoryTickets) BulkUpdate(_ context.Context, scope policy.Scope, ids []int64, fields BulkFields) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	now := m.s.now()
	var updated int64
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		t, ok := m.s.tickets[id]
		if !ok || !scope.Includes(&t) {
			continue
		}
		if fields.Status != nil {
			t.Status = *fields.Status
		}
		if fields.Priority != nil {
			t.Priority = *fields.Priority
		}
		if fields.Category != nil {
			t.Category = *fields.Category
		}
		switch {
		case fields.ClearAssignee:
			t.AssigneeID = nil
		case fields.AssigneeID != nil:
			assignee := *fields.AssigneeID
			t.AssigneeID = &assignee
		}
		t.UpdatedAt = now
		m.s.tickets[id] = t
		updated++
	}
	return updated, nil
}

type memoryComments struct{ s *MemoryStore }

func (m memoryComments) Create(_ context.Context, comment *domain.Comment) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.tickets[comment.TicketID]; !ok {
		return pgx.ErrNoRows
	}
	comment.ID = m.s.id()
	comment.CreatedAt = m.s.stamp(comment.CreatedAt)
	*comment = m.s.withAuthor(*comment)
	m.s.comments[comment.ID] = *comment
	return nil
}

func (m memoryComments) GetByID(_ context.Context, ticketID, id int64) (*domain.Comment, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	c, ok := m.s.comments[id]
	if !ok || c.TicketID != ticketID {
		return nil, pgx.ErrNoRows
	}
	c = m.s.withAuthor(c)
	return &c, nil
}

func (m memoryComments) ListByTicket(_ context.Context, ticketID int64, includeInternal bool) ([]domain.Comment, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	result := []domain.Comment{}
	for _, c := range m.s.comments {
		if c.TicketID != ticketID || (c.IsInternal && !includeInternal) {
			continue
		}
		result = append(result, m.s.withAuthor(c))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m memoryComments) CountByTickets(_ context.Context, ticketIDs []int64, includeInternal bool) (map[int64]int, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	wanted := make(map[int64]struct{}, len(ticketIDs))
	for _, id := range ticketIDs {
		wanted[id] = struct{}{}
	}
	counts := make(map[int64]int, len(ticketIDs))
	for _, c := range m.s.comments {
		if _, ok := wanted[c.TicketID]; !ok || (c.IsInternal && !includeInternal) {
			continue
		}
		counts[c.TicketID]++
	}
	return counts, nil
}

func (m memoryComments) Delete(_ context.Context, ticketID, id int64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.comments[id]
	if !ok || c.TicketID != ticketID {
		return pgx.ErrNoRows
	}
	delete(m.s.comments, id)
	return nil
}
