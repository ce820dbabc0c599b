package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-tracker/internal/api/dto"
	"github.com/spec-kit/ticket-tracker/internal/service"
	apperrors "github.com/spec-kit/ticket-tracker/pkg/util/errorutil"
)

// TicketsHandler manages ticket endpoints for every authenticated actor.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// ListTickets GET /api/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	records, err := h.service.List(c.UserContext(), actor, viewParams(c))
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(records))
	for i := range records {
		items = append(items, dto.NewTicketSummary(&records[i].Ticket, records[i].IsOverdue, records[i].CommentCount))
	}
	return c.JSON(items)
}

// CreateTicket POST /api/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	detail, err := h.service.Create(c.UserContext(), actor, service.TicketCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Priority:    req.Priority,
		Status:      req.Status,
		AssigneeID:  req.AssignedTo,
		DueDate:     req.DueDate,
		Attachment:  req.Attachment,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(ticketDetail(detail))
}

// GetTicket GET /api/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id", "ticket")
	if err != nil {
		return err
	}
	detail, err := h.service.Get(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(ticketDetail(detail))
}

// UpdateTicket PATCH /api/tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id", "ticket")
	if err != nil {
		return err
	}
	patch, err := parseTicketPatch(c.Body())
	if err != nil {
		return err
	}
	detail, err := h.service.Update(c.UserContext(), actor, id, patch)
	if err != nil {
		return err
	}
	return c.JSON(ticketDetail(detail))
}

// DeleteTicket DELETE /api/tickets/:id.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id", "ticket")
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.UserContext(), actor, id); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Stats GET /api/tickets/stats.
func (h *TicketsHandler) Stats(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	report, err := h.service.Stats(c.UserContext(), actor, viewParams(c))
	if err != nil {
		return err
	}
	return c.JSON(report)
}

// Classify POST /api/tickets/classify.
func (h *TicketsHandler) Classify(c *fiber.Ctx) error {
	var req dto.ClassifyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	result, err := h.service.Classify(c.UserContext(), req.Description)
	if err != nil {
		return err
	}
	return c.JSON(dto.ClassifyResponse{
		SuggestedCategory: result.Category,
		SuggestedPriority: result.Priority,
	})
}

// SuggestReply GET /api/tickets/:id/suggest_reply.
func (h *TicketsHandler) SuggestReply(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id", "ticket")
	if err != nil {
		return err
	}
	reply, err := h.service.SuggestReply(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(dto.SuggestReplyResponse{SuggestedReply: reply})
}

// BulkUpdate POST /api/tickets/bulk_update.
func (h *TicketsHandler) BulkUpdate(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.BulkUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	updated, err := h.service.BulkUpdate(c.UserContext(), actor, req.IDs, req.Updates)
	if err != nil {
		return err
	}
	return c.JSON(dto.BulkUpdateResponse{Updated: updated})
}

// ExportCSV GET /api/tickets/export_csv.
func (h *TicketsHandler) ExportCSV(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := h.service.ExportCSV(c.UserContext(), actor, viewParams(c), &buf); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="tickets.csv"`)
	return c.Send(buf.Bytes())
}

func ticketDetail(detail *service.TicketDetail) dto.TicketDetail {
	return dto.TicketDetail{
		TicketSummary: dto.NewTicketSummary(&detail.Ticket, detail.IsOverdue, detail.CommentCount),
		Comments:      dto.NewComments(detail.Comments),
	}
}

// parseTicketPatch reads a PATCH body field by field so that an explicit null
// can clear nullable columns. Read-only and unknown fields are ignored.
func parseTicketPatch(body []byte) (service.TicketPatch, error) {
	var patch service.TicketPatch
	if len(bytes.TrimSpace(body)) == 0 {
		return patch, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return patch, apperrors.NewValidationError("invalid payload", nil)
	}

	fieldErrors := map[string]any{}
	text := func(name string) *string {
		value, ok := raw[name]
		if !ok {
			return nil
		}
		var s *string
		if err := json.Unmarshal(value, &s); err != nil || s == nil {
			fieldErrors[name] = "This field must be a string."
			return nil
		}
		return s
	}
	nullableText := func(name string) (bool, *string) {
		value, ok := raw[name]
		if !ok {
			return false, nil
		}
		var s *string
		if err := json.Unmarshal(value, &s); err != nil {
			fieldErrors[name] = "This field must be a string or null."
			return false, nil
		}
		if s != nil && strings.TrimSpace(*s) == "" {
			s = nil
		}
		return true, s
	}

	patch.Title = text("title")
	patch.Description = text("description")
	patch.Category = text("category")
	patch.Priority = text("priority")
	patch.Status = text("status")
	patch.DueDateSet, patch.DueDate = nullableText("due_date")
	patch.AttachmentSet, patch.Attachment = nullableText("attachment")

	if value, ok := raw["assigned_to"]; ok {
		var id *int64
		if err := json.Unmarshal(value, &id); err != nil {
			fieldErrors["assigned_to"] = "This field must be a user id or null."
		} else {
			patch.AssigneeSet = true
			patch.AssigneeID = id
		}
	}

	if len(fieldErrors) > 0 {
		return service.TicketPatch{}, apperrors.NewValidationError("invalid ticket", fieldErrors)
	}
	return patch, nil
}
