package server

import (
	"net/http"

	"app/internal/config"
	"app/internal/handler"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

func Start(addr string, cfg config.Config, orderH *handler.OrderHandler, adminH *handler.AdminOrderHandler) error {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())

	RegisterRoutes(e, cfg, orderH, adminH)

	return e.Start(addr)
}

func RegisterRoutes(e *echo.Echo, cfg config.Config, orderH *handler.OrderHandler, adminH *handler.AdminOrderHandler) {
	orderH.RegisterRoutes(e)
	adminH.RegisterRoutes(e, cfg)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}
