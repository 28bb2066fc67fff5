package server

import (
	"net/http"

	"placemats-be/internal/config"
	"placemats-be/internal/handler"
	"placemats-be/internal/logger"
	"placemats-be/internal/middleware"
	"placemats-be/internal/payment/webhook"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// New assembles the HTTP server: middleware chain first, then routes.
func New(cfg *config.Config, checkout *handler.CheckoutHandler, hooks *webhook.Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(logger.RequestID())
	e.Use(logger.RequestLogger())
	e.Use(middleware.RateLimit())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{cfg.FrontendURL},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderContentType,
			"X-Idempotency-Key",
			"X-Request-ID",
		},
	}))

	registerRoutes(e, checkout, hooks)

	return e
}
