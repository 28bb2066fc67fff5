package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"placemats-be/internal/logger"
	"placemats-be/internal/order"
	"placemats-be/internal/payment"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Handler consumes gateway webhook deliveries. Every delivery is verified
// against the raw body before any parsing, recorded in the event log, and
// only then applied to the order store.
type Handler struct {
	orderSvc order.Service
	gateway  payment.Gateway
	events   payment.EventLog
}

func NewHandler(orderSvc order.Service, gateway payment.Gateway, events payment.EventLog) *Handler {
	return &Handler{
		orderSvc: orderSvc,
		gateway:  gateway,
		events:   events,
	}
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type checkoutSessionObject struct {
	ID            string `json:"id"`
	PaymentIntent string `json:"payment_intent"`
	Metadata      struct {
		OrderID string `json:"order_id"`
	} `json:"metadata"`
	CustomerDetails struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"customer_details"`
	ShippingDetails struct {
		Address struct {
			Line1      string `json:"line1"`
			Line2      string `json:"line2"`
			City       string `json:"city"`
			State      string `json:"state"`
			PostalCode string `json:"postal_code"`
			Country    string `json:"country"`
		} `json:"address"`
	} `json:"shipping_details"`
}

type paymentIntentObject struct {
	ID       string `json:"id"`
	Metadata struct {
		OrderID string `json:"order_id"`
	} `json:"metadata"`
}

// HandleStripeWebhook is mounted on POST /api/stripe/webhook. It must read
// the body raw: signature verification covers the exact bytes on the wire.
func (h *Handler) HandleStripeWebhook(c echo.Context) error {
	ctx := c.Request().Context()
	log := logger.FromCtx(ctx)

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
	}

	sig := c.Request().Header.Get("Stripe-Signature")
	if err := h.gateway.VerifySignature(sig, body); err != nil {
		log.Warn("webhook signature rejected", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid signature"})
	}

	var event stripeEvent
	if err := json.Unmarshal(body, &event); err != nil || event.ID == "" || event.Type == "" {
		log.Warn("malformed webhook payload", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed event"})
	}

	log = log.With(
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
	)

	logID, dup, err := h.events.Record(ctx, event.ID, event.Type, body)
	if err != nil {
		log.Error("failed to record webhook event", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "event log unavailable"})
	}
	if dup {
		return c.JSON(http.StatusOK, echo.Map{"received": true, "duplicate": true})
	}

	if err := h.dispatch(c, event); err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			// Acknowledge so the gateway stops redelivering; the stored
			// payload is the trail for manual reconciliation.
			log.Warn("webhook references no local order")
			h.markFailed(c, logID, "no matching order")
			return c.JSON(http.StatusOK, echo.Map{"received": true})
		}

		log.Error("failed to apply webhook event", zap.Error(err))
		h.markFailed(c, logID, err.Error())
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "processing failed"})
	}

	if err := h.events.MarkProcessed(ctx, logID); err != nil {
		log.Warn("failed to mark webhook processed", zap.Error(err))
	}

	return c.JSON(http.StatusOK, echo.Map{"received": true})
}

func (h *Handler) dispatch(c echo.Context, event stripeEvent) error {
	ctx := c.Request().Context()

	switch order.Event(event.Type) {
	case order.EventCheckoutCompleted:
		var sess checkoutSessionObject
		if err := json.Unmarshal(event.Data.Object, &sess); err != nil {
			return err
		}
		return h.orderSvc.HandleCheckoutCompleted(ctx, sess.ID, sess.PaymentIntent, formatAddress(sess))

	case order.EventPaymentSucceeded:
		var pi paymentIntentObject
		if err := json.Unmarshal(event.Data.Object, &pi); err != nil {
			return err
		}
		return h.orderSvc.HandlePaymentSucceeded(ctx, pi.ID, pi.Metadata.OrderID)

	case order.EventPaymentFailed:
		var pi paymentIntentObject
		if err := json.Unmarshal(event.Data.Object, &pi); err != nil {
			return err
		}
		return h.orderSvc.HandlePaymentFailed(ctx, pi.ID)

	default:
		// Unhandled event types are logged and acknowledged.
		logger.FromCtx(ctx).Info("ignoring webhook event type",
			zap.String("event_type", event.Type),
		)
		return nil
	}
}

func (h *Handler) markFailed(c echo.Context, logID int64, reason string) {
	if err := h.events.MarkFailed(c.Request().Context(), logID, reason); err != nil {
		logger.FromCtx(c.Request().Context()).Warn("failed to mark webhook failed",
			zap.Int64("log_id", logID),
			zap.Error(err),
		)
	}
}

func formatAddress(sess checkoutSessionObject) string {
	a := sess.ShippingDetails.Address
	parts := make([]string, 0, 6)
	for _, p := range []string{a.Line1, a.Line2, a.City, a.State, a.PostalCode, a.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
