package handler

import (
	"errors"
	"net/http"

	"placemats-be/internal/logger"
	"placemats-be/internal/order"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// CheckoutHandler exposes the storefront-facing checkout endpoints.
type CheckoutHandler struct {
	orderSvc order.Service
}

func NewCheckoutHandler(orderSvc order.Service) *CheckoutHandler {
	return &CheckoutHandler{orderSvc: orderSvc}
}

type checkoutItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type createCheckoutRequest struct {
	Items           []checkoutItemRequest `json:"items"`
	CustomerName    string                `json:"customerName"`
	CustomerEmail   string                `json:"customerEmail"`
	ShippingAddress string                `json:"shippingAddress"`
}

// CreateCheckoutSession handles POST /api/stripe/create-checkout-session.
// An optional X-Idempotency-Key header makes retried submissions return the
// original session instead of opening a second order.
func (h *CheckoutHandler) CreateCheckoutSession(c echo.Context) error {
	ctx := c.Request().Context()

	var req createCheckoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"success": false,
			"error":   "invalid request body",
		})
	}

	items := make([]order.CheckoutItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, order.CheckoutItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	res, err := h.orderSvc.CreateCheckoutSession(ctx, order.CheckoutInput{
		Items:           items,
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		ShippingAddress: req.ShippingAddress,
		IdempotencyKey:  c.Request().Header.Get("X-Idempotency-Key"),
	})
	if err != nil {
		return checkoutErrorResponse(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":    true,
		"url":        res.CheckoutURL,
		"session_id": res.SessionID,
		"order_id":   res.OrderID,
		"reference":  res.Reference,
	})
}

// VerifySession handles GET /api/stripe/verify-session?session_id=...
// It always answers 200 for a well-formed query; an order the webhook has
// not confirmed yet simply reports its current state.
func (h *CheckoutHandler) VerifySession(c echo.Context) error {
	sessionID := c.QueryParam("session_id")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"success": false,
			"error":   "session_id is required",
		})
	}

	snap, err := h.orderSvc.VerifySession(c.Request().Context(), sessionID)
	if err != nil {
		logger.FromCtx(c.Request().Context()).Error("session verification failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"success": false,
			"error":   "verification unavailable",
		})
	}

	if !snap.Found {
		return c.JSON(http.StatusOK, echo.Map{
			"success":        true,
			"order_found":    false,
			"status":         snap.Status,
			"payment_status": snap.PaymentStatus,
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":     true,
		"order_found": true,
		"order": echo.Map{
			"id":             snap.OrderID,
			"reference":      snap.Reference,
			"customer_name":  snap.CustomerName,
			"customer_email": snap.CustomerEmail,
			"status":         snap.Status,
			"payment_status": snap.PaymentStatus,
			"total":          snap.Total,
			"items":          snap.Items,
			"created_at":     snap.CreatedAt,
		},
		"gateway_payment_status": snap.GatewayPaymentStatus,
	})
}

func checkoutErrorResponse(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	msg := "checkout unavailable"

	switch {
	case errors.Is(err, order.ErrInvalidCheckoutInput):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, order.ErrProductNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, order.ErrOutOfStock):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, order.ErrGatewayUnavailable):
		status, msg = http.StatusBadGateway, "payment gateway unavailable"
	default:
		logger.FromCtx(c.Request().Context()).Error("checkout failed", zap.Error(err))
	}

	return c.JSON(status, echo.Map{"success": false, "error": msg})
}
