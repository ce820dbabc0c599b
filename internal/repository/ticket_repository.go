package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/policy"
	"github.com/spec-kit/ticket-tracker/internal/ticketview"
)

// BulkFields holds the whitelisted columns a bulk update may set. Nil fields
// are left untouched; ClearAssignee wins over AssigneeID.
type BulkFields struct {
	Status        *domain.TicketStatus
	Priority      *domain.TicketPriority
	Category      *domain.TicketCategory
	AssigneeID    *int64
	ClearAssignee bool
}

// Empty reports whether no column would change.
func (f BulkFields) Empty() bool {
	return f.Status == nil && f.Priority == nil && f.Category == nil && f.AssigneeID == nil && !f.ClearAssignee
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	List(ctx context.Context, scope policy.Scope, params ticketview.Params) ([]domain.Ticket, error)
	BulkUpdate(ctx context.Context, scope policy.Scope, ids []int64, fields BulkFields) (int64, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `
        t.id, t.owner_id, o.username, t.assigned_to_id, a.username,
        t.title, t.description, t.category, t.priority, t.status,
        t.due_date, t.attachment, t.created_at, t.updated_at`

const ticketFrom = `
        FROM tickets t
        JOIN users o ON o.id = t.owner_id
        LEFT JOIN users a ON a.id = t.assigned_to_id`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (owner_id, assigned_to_id, title, description, category, priority, status, due_date, attachment)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at, updated_at`
	if err := r.pool.QueryRow(ctx, query,
		ticket.OwnerID,
		ticket.AssigneeID,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.Priority,
		ticket.Status,
		ticket.DueDate,
		ticket.Attachment,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt); err != nil {
		return err
	}
	return r.refreshNames(ctx, ticket)
}

// Update never touches owner_id or created_at.
func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET assigned_to_id=$1, title=$2, description=$3, category=$4, priority=$5,
            status=$6, due_date=$7, attachment=$8, updated_at=NOW()
        WHERE id=$9
        RETURNING updated_at`
	if err := r.pool.QueryRow(ctx, query,
		ticket.AssigneeID,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.Priority,
		ticket.Status,
		ticket.DueDate,
		ticket.Attachment,
		ticket.ID,
	).Scan(&ticket.UpdatedAt); err != nil {
		return err
	}
	return r.refreshNames(ctx, ticket)
}

func (r *ticketRepository) refreshNames(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        SELECT o.username, a.username` + ticketFrom + `
        WHERE t.id=$1`
	return r.pool.QueryRow(ctx, query, ticket.ID).Scan(&ticket.OwnerUsername, &ticket.AssigneeUsername)
}

// Delete removes the ticket; comments cascade in the schema.
func (r *ticketRepository) Delete(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	query := `SELECT` + ticketColumns + ticketFrom + ` WHERE t.id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, scope policy.Scope, params ticketview.Params) ([]domain.Ticket, error) {
	where, args := buildWhere(scope, params)
	query := fmt.Sprintf(`SELECT %s %s WHERE %s ORDER BY %s`,
		ticketColumns, ticketFrom, where, orderBy(params.Sort))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

// BulkUpdate applies fields to every ticket in ids that the scope includes, in
// a single transaction, and reports how many rows changed.
func (r *ticketRepository) BulkUpdate(ctx context.Context, scope policy.Scope, ids []int64, fields BulkFields) (int64, error) {
	query, args := buildBulkUpdate(scope, ids, fields)

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	cmd, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func buildWhere(scope policy.Scope, params ticketview.Params) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if scope.OwnerID != nil {
		args = append(args, *scope.OwnerID)
		clauses = append(clauses, fmt.Sprintf("t.owner_id=$%d", len(args)))
	}
	if params.Category != nil {
		args = append(args, string(*params.Category))
		clauses = append(clauses, fmt.Sprintf("t.category=$%d", len(args)))
	}
	if params.Priority != nil {
		args = append(args, string(*params.Priority))
		clauses = append(clauses, fmt.Sprintf("t.priority=$%d", len(args)))
	}
	if params.Status != nil {
		args = append(args, string(*params.Status))
		clauses = append(clauses, fmt.Sprintf("t.status=$%d", len(args)))
	}
	if params.AssigneeID != nil {
		args = append(args, *params.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("t.assigned_to_id=$%d", len(args)))
	}
	if term := strings.TrimSpace(params.Search); term != "" {
		args = append(args, "%"+escapeLike(strings.ToLower(term))+"%")
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(t.title) LIKE %s OR LOWER(t.description) LIKE %s)", placeholder, placeholder))
	}
	return strings.Join(clauses, " AND "), args
}

func orderBy(sort ticketview.Sort) string {
	switch sort {
	case ticketview.SortPriority:
		return `CASE t.priority WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 WHEN 'low' THEN 3 ELSE 4 END ASC, t.created_at DESC, t.id DESC`
	case ticketview.SortOldest:
		return `t.created_at ASC, t.id ASC`
	case ticketview.SortDueDate:
		return `t.due_date ASC NULLS LAST, t.created_at DESC, t.id DESC`
	default:
		return `t.created_at DESC, t.id DESC`
	}
}

func buildBulkUpdate(scope policy.Scope, ids []int64, fields BulkFields) (string, []any) {
	sets := []string{}
	args := []any{}

	if fields.Status != nil {
		args = append(args, string(*fields.Status))
		sets = append(sets, fmt.Sprintf("status=$%d", len(args)))
	}
	if fields.Priority != nil {
		args = append(args, string(*fields.Priority))
		sets = append(sets, fmt.Sprintf("priority=$%d", len(args)))
	}
	if fields.Category != nil {
		args = append(args, string(*fields.Category))
		sets = append(sets, fmt.Sprintf("category=$%d", len(args)))
	}
	switch {
	case fields.ClearAssignee:
		sets = append(sets, "assigned_to_id=NULL")
	case fields.AssigneeID != nil:
		args = append(args, *fields.AssigneeID)
		sets = append(sets, fmt.Sprintf("assigned_to_id=$%d", len(args)))
	}
	sets = append(sets, "updated_at=NOW()")

	args = append(args, ids)
	where := fmt.Sprintf("id = ANY($%d)", len(args))
	if scope.OwnerID != nil {
		args = append(args, *scope.OwnerID)
		where += fmt.Sprintf(" AND owner_id=$%d", len(args))
	}
	return fmt.Sprintf("UPDATE tickets SET %s WHERE %s", strings.Join(sets, ", "), where), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	var dueDate *time.Time
	if err := row.Scan(
		&ticket.ID,
		&ticket.OwnerID,
		&ticket.OwnerUsername,
		&ticket.AssigneeID,
		&ticket.AssigneeUsername,
		&ticket.Title,
		&ticket.Description,
		&ticket.Category,
		&ticket.Priority,
		&ticket.Status,
		&dueDate,
		&ticket.Attachment,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if dueDate != nil {
		d := domain.CalendarDate(*dueDate)
		ticket.DueDate = &d
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
