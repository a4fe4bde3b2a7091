package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/chadiek/voice-agent/internal/agent"
	"github.com/chadiek/voice-agent/internal/logging"
)

// StatusSource exposes the live state of the conversation loop.
type StatusSource interface {
	State() agent.State
	Turns() int64
}

// MemoryReader returns the current memory window.
type MemoryReader interface {
	Recent() (string, error)
}

type statusResponse struct {
	State string `json:"state"`
	Turns int64  `json:"turns"`
}

// New creates a configured Echo server instance.
func New(status StatusSource, mem MemoryReader) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logging.Debugw("http: request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/status", func(c echo.Context) error {
		return c.JSON(http.StatusOK, statusResponse{State: status.State().String(), Turns: status.Turns()})
	})
	e.GET("/memory", func(c echo.Context) error {
		recent, err := mem.Recent()
		if err != nil {
			logging.Warnw("http: read memory failed", "err", err)
			return c.String(http.StatusInternalServerError, "memory unavailable")
		}
		return c.String(http.StatusOK, recent)
	})
	return e
}
