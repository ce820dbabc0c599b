package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-tracker/internal/api/dto"
	"github.com/spec-kit/ticket-tracker/internal/service"
)

// StaffHandler lists staff accounts for assignment pickers.
type StaffHandler struct {
	auth *service.AuthService
}

// NewStaffHandler constructs handler.
func NewStaffHandler(authService *service.AuthService) *StaffHandler {
	return &StaffHandler{auth: authService}
}

// List handles GET /api/staff.
func (h *StaffHandler) List(c *fiber.Ctx) error {
	staff, err := h.auth.ListStaff(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.User, 0, len(staff))
	for i := range staff {
		items = append(items, dto.NewUser(&staff[i]))
	}
	return c.JSON(items)
}
