package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-tracker/internal/api/dto"
	"github.com/spec-kit/ticket-tracker/internal/service"
	apperrors "github.com/spec-kit/ticket-tracker/pkg/util/errorutil"
)

// CommentsHandler manages the comment thread nested under a ticket.
type CommentsHandler struct {
	service *service.CommentService
}

// NewCommentsHandler constructs handler.
func NewCommentsHandler(commentService *service.CommentService) *CommentsHandler {
	return &CommentsHandler{service: commentService}
}

// List GET /api/tickets/:id/comments.
func (h *CommentsHandler) List(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	ticketID, err := idParam(c, "id", "ticket")
	if err != nil {
		return err
	}
	comments, err := h.service.List(c.UserContext(), actor, ticketID)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewComments(comments))
}

// Create POST /api/tickets/:id/comments.
func (h *CommentsHandler) Create(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	ticketID, err := idParam(c, "id", "ticket")
	if err != nil {
		return err
	}
	var req dto.CreateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	comment, err := h.service.Create(c.UserContext(), actor, ticketID, req.Content, req.IsInternal)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.NewComment(comment))
}

// Get GET /api/tickets/:id/comments/:commentId.
func (h *CommentsHandler) Get(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	ticketID, err := idParam(c, "id", "ticket")
	if err != nil {
		return err
	}
	commentID, err := idParam(c, "commentId", "comment")
	if err != nil {
		return err
	}
	comment, err := h.service.Get(c.UserContext(), actor, ticketID, commentID)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewComment(comment))
}

// Delete DELETE /api/tickets/:id/comments/:commentId.
func (h *CommentsHandler) Delete(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	ticketID, err := idParam(c, "id", "ticket")
	if err != nil {
		return err
	}
	commentID, err := idParam(c, "commentId", "comment")
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.UserContext(), actor, ticketID, commentID); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
