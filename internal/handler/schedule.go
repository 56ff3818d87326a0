package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/trip-departure-scheduler/internal/logger"
	"github.com/iliyamo/trip-departure-scheduler/internal/middleware"
	"github.com/iliyamo/trip-departure-scheduler/internal/model"
)

// Engine is the scheduling surface exposed over HTTP.
type Engine interface {
	ReserveSeats(ctx context.Context, scheduleID string, seatCount int) (model.ReservationHold, error)
	ConfirmHold(ctx context.Context, holdID string) error
	ReleaseHold(ctx context.Context, holdID string, reason model.ReleaseReason) error
	ReleaseActiveHold(ctx context.Context, holdID string, reason model.ReleaseReason) error
	GetScheduleStatus(ctx context.Context, scheduleID string) (model.ScheduleStatus, error)
	CancelSchedule(ctx context.Context, scheduleID, reason string) error
}

// ScheduleHandler serves schedule status, seat holds and cancellation.
// Authentication and role checks are done by middleware.
type ScheduleHandler struct {
	engine Engine
	log    logger.Logger
}

func NewScheduleHandler(engine Engine, log logger.Logger) *ScheduleHandler {
	if engine == nil {
		panic("nil engine passed to NewScheduleHandler")
	}
	return &ScheduleHandler{engine: engine, log: log}
}

// GetStatus handles GET /v1/schedules/:id/status.
func (h *ScheduleHandler) GetStatus(c echo.Context) error {
	st, err := h.engine.GetScheduleStatus(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, st)
}

// ReserveSeats handles POST /v1/schedules/:id/holds with body
// {"seat_count": n}.  It returns 201 and the new hold.
func (h *ScheduleHandler) ReserveSeats(c echo.Context) error {
	var body struct {
		SeatCount int `json:"seat_count"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.SeatCount <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seat_count must be positive"})
	}
	hold, err := h.engine.ReserveSeats(c.Request().Context(), c.Param("id"), body.SeatCount)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, hold)
}

// ReleaseHold handles DELETE /v1/holds/:id.  The hold is cancelled; a
// hold that already expired counts as released.  Customers can only drop
// unpaid holds; operators and the payment service may cancel confirmed
// ones.
func (h *ScheduleHandler) ReleaseHold(c echo.Context) error {
	release := h.engine.ReleaseHold
	if middleware.Role(c) == middleware.RoleCustomer {
		release = h.engine.ReleaseActiveHold
	}
	if err := release(c.Request().Context(), c.Param("id"), model.ReleaseCancelled); err != nil {
		return writeError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ConfirmHold handles POST /v1/holds/:id/confirm.
func (h *ScheduleHandler) ConfirmHold(c echo.Context) error {
	id := c.Param("id")
	if err := h.engine.ConfirmHold(c.Request().Context(), id); err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"hold_id": id, "status": model.HoldConfirmed})
}

// CancelSchedule handles POST /v1/schedules/:id/cancel with body
// {"reason": "..."} and returns the resulting status.
func (h *ScheduleHandler) CancelSchedule(c echo.Context) error {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.Reason == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reason is required"})
	}
	ctx := c.Request().Context()
	id := c.Param("id")
	if err := h.engine.CancelSchedule(ctx, id, body.Reason); err != nil {
		return writeError(c, h.log, err)
	}
	st, err := h.engine.GetScheduleStatus(ctx, id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, st)
}
