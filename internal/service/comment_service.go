package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/events"
	"github.com/spec-kit/ticket-tracker/internal/policy"
	"github.com/spec-kit/ticket-tracker/internal/repository"
	apperrors "github.com/spec-kit/ticket-tracker/pkg/util/errorutil"
)

// CommentService manages ticket threads.
type CommentService struct {
	tickets    repository.TicketRepository
	comments   repository.CommentRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// CommentDependencies bundles collaborators for comment service.
type CommentDependencies struct {
	TicketRepo  repository.TicketRepository
	CommentRepo repository.CommentRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Clock       func() time.Time
}

// NewCommentService constructs the service.
func NewCommentService(deps CommentDependencies) *CommentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &CommentService{
		tickets:    deps.TicketRepo,
		comments:   deps.CommentRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		now:        clock,
	}
}

// List returns the comments on a ticket that the actor may see, oldest first.
func (s *CommentService) List(ctx context.Context, actor domain.Actor, ticketID int64) ([]domain.Comment, error) {
	if _, err := s.ticket(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	return s.comments.ListByTicket(ctx, ticketID, policy.SeesInternalComments(actor))
}

// Get returns one visible comment.
func (s *CommentService) Get(ctx context.Context, actor domain.Actor, ticketID, commentID int64) (*domain.Comment, error) {
	if _, err := s.ticket(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	comment, err := s.comments.GetByID(ctx, ticketID, commentID)
	if err != nil {
		return nil, notFound("comment", err)
	}
	if !policy.CanSeeComment(actor, comment) {
		return nil, apperrors.NewNotFound("comment", nil)
	}
	return comment, nil
}

// Create adds a comment. An internal flag from a non-staff actor is dropped
// and the comment is stored as public.
func (s *CommentService) Create(ctx context.Context, actor domain.Actor, ticketID int64, content string, internal bool) (*domain.Comment, error) {
	if _, err := s.ticket(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.NewValidationError("invalid comment", map[string]any{
			"content": "This field is required.",
		})
	}

	comment := &domain.Comment{
		TicketID:   ticketID,
		AuthorID:   actor.ID,
		Content:    content,
		IsInternal: policy.EffectiveInternal(actor, internal),
	}
	if internal && !comment.IsInternal {
		s.logger.Debug("internal flag dropped for non-staff author",
			zap.Int64("ticket_id", ticketID), zap.Int64("user_id", actor.ID))
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, notFound("ticket", err)
	}

	if s.dispatcher != nil {
		event := events.New(events.EventCommentAdded, ticketID, actor, s.now(), events.CommentAddedPayload{
			CommentID:   comment.ID,
			IsInternal:  comment.IsInternal,
			BodyPreview: stringPreview(comment.Content, 120),
		})
		if err := s.dispatcher.Publish(ctx, event); err != nil {
			s.logger.Warn("event handlers failed", zap.String("event_type", string(event.Type)), zap.Error(err))
		}
	}
	return comment, nil
}

// Delete removes a comment the actor may delete.
func (s *CommentService) Delete(ctx context.Context, actor domain.Actor, ticketID, commentID int64) error {
	ticket, err := s.ticket(ctx, actor, ticketID)
	if err != nil {
		return err
	}
	comment, err := s.comments.GetByID(ctx, ticketID, commentID)
	if err != nil {
		return notFound("comment", err)
	}
	if !policy.CanDeleteComment(actor, ticket, comment) {
		return apperrors.NewNotFound("comment", nil)
	}
	return notFound("comment", s.comments.Delete(ctx, ticketID, commentID))
}

func (s *CommentService) ticket(ctx context.Context, actor domain.Actor, ticketID int64) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, notFound("ticket", err)
	}
	if !policy.CanList(actor, ticket) {
		return nil, apperrors.NewNotFound("ticket", nil)
	}
	return ticket, nil
}
