package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/dmorelli/tutoring-slots/internal/model"
	"github.com/dmorelli/tutoring-slots/internal/repository"
	"github.com/dmorelli/tutoring-slots/internal/service"
)

// AdminHandler exposes the operator overrides.  Routes using it are
// wrapped in JWTAuth plus RequireRole(RoleAdmin) by the router.
type AdminHandler struct {
	Admin *service.AdminService
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(admin *service.AdminService) *AdminHandler {
	return &AdminHandler{Admin: admin}
}

// CreateSlot handles POST /v1/admin/slots.
func (h *AdminHandler) CreateSlot(c echo.Context) error {
	var body struct {
		TeacherID uint64 `json:"teacher_id"`
		Weekday   string `json:"weekday"`
		StartTime string `json:"start_time"`
	}
	if err := c.Bind(&body); err != nil || body.TeacherID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	slot, err := h.Admin.CreateSlot(c.Request().Context(), body.TeacherID, model.Weekday(body.Weekday), body.StartTime)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, slot)
}

// Block handles POST /v1/admin/slots/:id/block.
func (h *AdminHandler) Block(c echo.Context) error {
	id, err := slotParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid slot id"})
	}
	return adminResult(c, h.Admin.Block(c.Request().Context(), id))
}

// ForcePending handles POST /v1/admin/slots/:id/force-pending.
func (h *AdminHandler) ForcePending(c echo.Context) error {
	id, err := slotParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid slot id"})
	}
	return adminResult(c, h.Admin.ForcePending(c.Request().Context(), id))
}

// Release handles POST /v1/admin/slots/:id/release.  This is the only
// operation in the system that can cancel a CONFIRMED reservation.
func (h *AdminHandler) Release(c echo.Context) error {
	id, err := slotParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid slot id"})
	}
	n, err := h.Admin.ReleaseSlot(c.Request().Context(), id)
	if err != nil {
		return adminResult(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "cancelled": n})
}

// DeleteSlot handles DELETE /v1/admin/slots/:id.
func (h *AdminHandler) DeleteSlot(c echo.Context) error {
	id, err := slotParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid slot id"})
	}
	return adminResult(c, h.Admin.DeleteSlot(c.Request().Context(), id))
}

func slotParam(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid slot id")
	}
	return id, nil
}

// adminResult maps the override error taxonomy onto HTTP statuses.
func adminResult(c echo.Context, err error) error {
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"ok": true})
	case errors.Is(err, repository.ErrSlotNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "slot not found"})
	case errors.Is(err, repository.ErrAlreadyConfirmed):
		return c.JSON(http.StatusConflict, echo.Map{"error": "slot has a confirmed reservation"})
	case errors.Is(err, repository.ErrSlotPaid):
		return c.JSON(http.StatusConflict, echo.Map{"error": "slot has a paid reservation"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
}
