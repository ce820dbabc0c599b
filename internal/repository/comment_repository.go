package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-tracker/internal/domain"
)

// CommentRepository manages ticket thread comments.
type CommentRepository interface {
	Create(ctx context.Context, comment *domain.Comment) error
	GetByID(ctx context.Context, ticketID, id int64) (*domain.Comment, error)
	ListByTicket(ctx context.Context, ticketID int64, includeInternal bool) ([]domain.Comment, error)
	CountByTickets(ctx context.Context, ticketIDs []int64, includeInternal bool) (map[int64]int, error)
	Delete(ctx context.Context, ticketID, id int64) error
}

type commentRepository struct {
	pool *pgxpool.Pool
}

// NewCommentRepository builds repository.
func NewCommentRepository(pool *pgxpool.Pool) CommentRepository {
	return &commentRepository{pool: pool}
}

const commentSelect = `
        SELECT c.id, c.ticket_id, c.author_id, u.username, u.is_staff, c.content, c.is_internal, c.created_at
        FROM comments c JOIN users u ON u.id = c.author_id`

// Create inserts the comment in a transaction that holds a share lock on the
// parent ticket, so a concurrent delete cannot orphan it.
func (r *commentRepository) Create(ctx context.Context, comment *domain.Comment) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var ticketID int64
	if err := tx.QueryRow(ctx, `SELECT id FROM tickets WHERE id=$1 FOR SHARE`, comment.TicketID).Scan(&ticketID); err != nil {
		return err
	}

	const query = `
        INSERT INTO comments (ticket_id, author_id, content, is_internal)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	if err := tx.QueryRow(ctx, query,
		comment.TicketID,
		comment.AuthorID,
		comment.Content,
		comment.IsInternal,
	).Scan(&comment.ID, &comment.CreatedAt); err != nil {
		return err
	}
	if err := tx.QueryRow(ctx, `SELECT username, is_staff FROM users WHERE id=$1`, comment.AuthorID).
		Scan(&comment.AuthorUsername, &comment.AuthorIsStaff); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *commentRepository) GetByID(ctx context.Context, ticketID, id int64) (*domain.Comment, error) {
	row := r.pool.QueryRow(ctx, commentSelect+` WHERE c.ticket_id=$1 AND c.id=$2`, ticketID, id)
	return scanComment(row)
}

func (r *commentRepository) ListByTicket(ctx context.Context, ticketID int64, includeInternal bool) ([]domain.Comment, error) {
	query := commentSelect + ` WHERE c.ticket_id=$1`
	if !includeInternal {
		query += ` AND NOT c.is_internal`
	}
	query += ` ORDER BY c.created_at ASC, c.id ASC`

	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Comment{}
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *comment)
	}
	return result, rows.Err()
}

func (r *commentRepository) CountByTickets(ctx context.Context, ticketIDs []int64, includeInternal bool) (map[int64]int, error) {
	counts := make(map[int64]int, len(ticketIDs))
	if len(ticketIDs) == 0 {
		return counts, nil
	}
	query := `SELECT ticket_id, COUNT(*) FROM comments WHERE ticket_id = ANY($1)`
	if !includeInternal {
		query += ` AND NOT is_internal`
	}
	query += ` GROUP BY ticket_id`

	rows, err := r.pool.Query(ctx, query, ticketIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

func (r *commentRepository) Delete(ctx context.Context, ticketID, id int64) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM comments WHERE ticket_id=$1 AND id=$2`, ticketID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanComment(row pgx.Row) (*domain.Comment, error) {
	var comment domain.Comment
	if err := row.Scan(
		&comment.ID,
		&comment.TicketID,
		&comment.AuthorID,
		&comment.AuthorUsername,
		&comment.AuthorIsStaff,
		&comment.Content,
		&comment.IsInternal,
		&comment.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &comment, nil
}
