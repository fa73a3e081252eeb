package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/dmorelli/tutoring-slots/internal/model"
	"github.com/dmorelli/tutoring-slots/internal/payment"
	"github.com/dmorelli/tutoring-slots/internal/repository"
	"github.com/dmorelli/tutoring-slots/internal/service"
)

// PaymentCreator is the slice of the payment client checkout needs.
// *payment.Client satisfies it in production.
type PaymentCreator interface {
	CreatePreference(ctx context.Context, req payment.PreferenceRequest) (*payment.Preference, error)
}

// PublicHandler serves the anonymous surface: the slot listing, holds,
// releases and checkout.  No authentication is required; the hold TTL
// and the rate limiter bound what an anonymous caller can tie up.
type PublicHandler struct {
	Slots        *repository.SlotRepo
	Reservations *repository.ReservationRepo
	Holds        *service.HoldService
	Payments     PaymentCreator
	Logger       *zap.Logger
}

// NewPublicHandler constructs a PublicHandler.
func NewPublicHandler(slots *repository.SlotRepo, reservations *repository.ReservationRepo, holds *service.HoldService, payments PaymentCreator, logger *zap.Logger) *PublicHandler {
	return &PublicHandler{Slots: slots, Reservations: reservations, Holds: holds, Payments: payments, Logger: logger}
}

// slotView is one row of the public listing.
type slotView struct {
	ID        uint64 `json:"id"`
	TeacherID uint64 `json:"teacher_id"`
	Weekday   string `json:"weekday"`
	StartTime string `json:"start_time"`
	Status    string `json:"status"`
}

// ListSlots handles GET /v1/slots.  Status is derived per slot from
// the open ledger rows at request time; the listing is advisory and
// every action on it re-checks availability transactionally.
func (h *PublicHandler) ListSlots(c echo.Context) error {
	ctx := c.Request().Context()
	slots, err := h.Slots.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	open, err := h.Reservations.OpenAll(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	bySlot := make(map[uint64][]model.Reservation, len(slots))
	for _, row := range open {
		bySlot[row.SlotID] = append(bySlot[row.SlotID], row)
	}
	now := time.Now().UTC()
	views := make([]slotView, 0, len(slots))
	for _, s := range slots {
		views = append(views, slotView{
			ID:        s.ID,
			TeacherID: s.TeacherID,
			Weekday:   string(s.Weekday),
			StartTime: s.StartTime,
			Status:    strings.ToLower(string(model.ResolveStatus(bySlot[s.ID], now))),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"slots": views})
}

// CreateHold handles POST /v1/holds.  It claims a single slot for the
// browsing TTL.  404 and 409 are distinct on purpose: a client must be
// able to tell "that slot doesn't exist" from "someone else just took
// it", and the latter must not be retried automatically.
func (h *PublicHandler) CreateHold(c echo.Context) error {
	var body struct {
		SlotID       uint64 `json:"slot_id"`
		StudentName  string `json:"student_name"`
		StudentEmail string `json:"student_email"`
	}
	if err := c.Bind(&body); err != nil || body.SlotID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	result, err := h.Holds.CreateHold(c.Request().Context(), body.SlotID, body.StudentName, body.StudentEmail)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSlotNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "slot not found"})
		case errors.Is(err, repository.ErrSlotNotAvailable):
			return c.JSON(http.StatusConflict, echo.Map{"error": "slot not available"})
		}
		h.Logger.Error("create hold failed", zap.Uint64("slot_id", body.SlotID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"reservation_id": result.ReservationID,
		"group_ref":      result.GroupRef,
		"expires_at":     result.ExpiresAt.Format(time.RFC3339),
	})
}

// ReleaseHold handles POST /v1/holds/release.  Only HELD reservations
// can be released here; confirmed bookings require the operator
// release override.
func (h *PublicHandler) ReleaseHold(c echo.Context) error {
	var body struct {
		ReservationID uint64 `json:"reservation_id"`
	}
	if err := c.Bind(&body); err != nil || body.ReservationID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := h.Holds.Release(c.Request().Context(), body.ReservationID); err != nil {
		if errors.Is(err, repository.ErrNotHeld) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found or not held"})
		}
		h.Logger.Error("release hold failed", zap.Uint64("reservation_id", body.ReservationID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// Checkout handles POST /v1/checkout.  It registers the purchase with
// the payment provider first and only then writes the hold group, so a
// provider failure leaves no ledger rows behind.  The group reference
// generated here travels to the provider as the external reference and
// comes back in the webhook to address the same rows.
func (h *PublicHandler) Checkout(c echo.Context) error {
	var body struct {
		SlotIDs      []uint64        `json:"slot_ids"`
		StudentName  string          `json:"student_name"`
		StudentEmail string          `json:"student_email"`
		IntakeForm   json.RawMessage `json:"intake_form"`
		AmountCents  int64           `json:"amount_cents"`
		Currency     string          `json:"currency"`
	}
	if err := c.Bind(&body); err != nil || len(body.SlotIDs) == 0 || body.AmountCents <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	ctx := c.Request().Context()
	groupRef := uuid.NewString()

	pref, err := h.Payments.CreatePreference(ctx, payment.PreferenceRequest{
		ExternalReference: groupRef,
		Title:             "Tutoring sessions",
		AmountCents:       body.AmountCents,
		Currency:          body.Currency,
		PayerName:         body.StudentName,
		PayerEmail:        body.StudentEmail,
	})
	if err != nil {
		h.Logger.Error("payment preference failed", zap.String("group_ref", groupRef), zap.Error(err))
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment provider unavailable"})
	}

	group, err := h.Holds.CreateHoldGroup(ctx, body.SlotIDs, body.StudentName, body.StudentEmail, body.IntakeForm, groupRef)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSlotNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "slot not found"})
		case errors.Is(err, repository.ErrSlotNotAvailable):
			return c.JSON(http.StatusConflict, echo.Map{"error": "slot not available"})
		}
		h.Logger.Error("checkout hold group failed", zap.String("group_ref", groupRef), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"group_ref":    group.GroupRef,
		"redirect_url": pref.RedirectURL,
		"expires_at":   group.ExpiresAt.Format(time.RFC3339),
	})
}
