package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Health is a liveness probe.  It returns a plain text "ok" with 200 as
// long as the process serves HTTP.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Pinger is anything whose reachability gates readiness (the database).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Ready returns a readiness probe that fails with 503 while any
// dependency is unreachable.
func Ready(deps ...Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		for _, d := range deps {
			if err := d.PingContext(ctx); err != nil {
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "not ready"})
			}
		}
		return c.String(http.StatusOK, "ready")
	}
}
