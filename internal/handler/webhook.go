package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/dmorelli/tutoring-slots/internal/payment"
	"github.com/dmorelli/tutoring-slots/internal/service"
)

// PaymentFetcher is the slice of the payment client the webhook needs.
type PaymentFetcher interface {
	GetPayment(ctx context.Context, id string) (*payment.Payment, error)
}

// WebhookHandler receives the provider's asynchronous payment
// notifications.  Delivery is at least once and may be duplicated or
// reordered, so the endpoint acknowledges 200 unconditionally and
// leaves idempotency to the confirmation service.
type WebhookHandler struct {
	Confirmations *service.ConfirmationService
	Payments      PaymentFetcher
	Logger        *zap.Logger
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(confirmations *service.ConfirmationService, payments PaymentFetcher, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{Confirmations: confirmations, Payments: payments, Logger: logger}
}

// HandlePaymentNotification handles POST /v1/payments/webhook.  The
// provider identifies the event either in the JSON body or in query
// parameters; both forms are accepted.  Non-payment topics, unknown
// payments and unapproved statuses are all acknowledged without
// effect.
func (h *WebhookHandler) HandlePaymentNotification(c echo.Context) error {
	var body struct {
		Type string `json:"type"`
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	// Binding failures are acknowledged too; an unparseable body is
	// just another notification with nothing to do.
	_ = c.Bind(&body)

	topic := body.Type
	if topic == "" {
		topic = c.QueryParam("topic")
	}
	if topic == "" {
		topic = c.QueryParam("type")
	}
	paymentID := body.Data.ID
	if paymentID == "" {
		paymentID = c.QueryParam("id")
	}
	if topic != "payment" || paymentID == "" {
		return c.JSON(http.StatusOK, echo.Map{"ok": true, "ignored": true})
	}

	ctx := c.Request().Context()
	p, err := h.Payments.GetPayment(ctx, paymentID)
	if err != nil {
		h.Logger.Error("fetch payment failed", zap.String("payment_id", paymentID), zap.Error(err))
		return c.JSON(http.StatusOK, echo.Map{"ok": true})
	}
	if p.Status != payment.StatusApproved || p.ExternalReference == "" {
		return c.JSON(http.StatusOK, echo.Map{"ok": true, "ignored": true})
	}

	result, err := h.Confirmations.ConfirmGroup(ctx, service.ConfirmTarget{GroupRef: p.ExternalReference}, p.ID)
	if err != nil {
		// Still a 200: the provider keeps its own retry schedule for
		// unacknowledged events, and the flip is idempotent either way.
		h.Logger.Error("confirm group failed", zap.String("group_ref", p.ExternalReference), zap.Error(err))
		return c.JSON(http.StatusOK, echo.Map{"ok": true})
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "confirmed": result.Confirmed})
}
