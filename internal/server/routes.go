package server

import (
	"net/http"

	"placemats-be/internal/handler"
	"placemats-be/internal/payment/webhook"

	"github.com/labstack/echo/v4"
)

func registerRoutes(e *echo.Echo, checkout *handler.CheckoutHandler, hooks *webhook.Handler) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})

	api := e.Group("/api/stripe")
	api.POST("/create-checkout-session", checkout.CreateCheckoutSession)
	api.GET("/verify-session", checkout.VerifySession)
	api.POST("/webhook", hooks.HandleStripeWebhook)
}
