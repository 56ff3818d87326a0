// Package router registers the HTTP routes of the API.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/trip-departure-scheduler/internal/handler"
	"github.com/iliyamo/trip-departure-scheduler/internal/middleware"
)

// Deps carries what the routes need.
type Deps struct {
	Schedules   *handler.ScheduleHandler
	JWTSecret   string
	ReserveRate echo.MiddlewareFunc // token bucket in front of seat holds; may be nil
	Ready       echo.HandlerFunc    // readiness probe; may be nil
	Metrics     http.Handler        // prometheus exposition; may be nil
}

// RegisterRoutes wires every endpoint onto e.
//
//	GET    /healthz                    liveness
//	GET    /readyz                     readiness
//	GET    /metrics                    prometheus
//	GET    /v1/schedules/:id/status    public
//	POST   /v1/schedules/:id/holds     CUSTOMER, rate limited
//	DELETE /v1/holds/:id               CUSTOMER (unpaid only), OPERATOR, PAYMENT
//	POST   /v1/holds/:id/confirm       OPERATOR, PAYMENT
//	POST   /v1/schedules/:id/cancel    OPERATOR
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)
	if d.Ready != nil {
		e.GET("/readyz", d.Ready)
	}
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics))
	}

	e.GET("/v1/schedules/:id/status", d.Schedules.GetStatus)

	auth := e.Group("/v1", middleware.JWTAuth(d.JWTSecret))

	reserve := []echo.MiddlewareFunc{middleware.RequireRole(middleware.RoleCustomer)}
	if d.ReserveRate != nil {
		reserve = append(reserve, d.ReserveRate)
	}
	auth.POST("/schedules/:id/holds", d.Schedules.ReserveSeats, reserve...)
	auth.DELETE("/holds/:id", d.Schedules.ReleaseHold, middleware.RequireRole(middleware.RoleCustomer, middleware.RoleOperator, middleware.RolePayment))
	auth.POST("/holds/:id/confirm", d.Schedules.ConfirmHold, middleware.RequireRole(middleware.RoleOperator, middleware.RolePayment))
	auth.POST("/schedules/:id/cancel", d.Schedules.CancelSchedule, middleware.RequireRole(middleware.RoleOperator))
}
