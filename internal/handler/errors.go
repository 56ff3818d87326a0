package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/trip-departure-scheduler/internal/logger"
	"github.com/iliyamo/trip-departure-scheduler/internal/scheduler"
)

// errorCodes gives each engine error a stable machine-readable code.
var errorCodes = []struct {
	err  error
	code string
}{
	{scheduler.ErrInsufficientCapacity, "insufficient_capacity"},
	{scheduler.ErrInvalidSeatCount, "invalid_seat_count"},
	{scheduler.ErrHoldNotActive, "hold_not_active"},
	{scheduler.ErrInvalidHoldTransition, "invalid_hold_transition"},
	{scheduler.ErrScheduleAlreadyTerminal, "schedule_already_terminal"},
	{scheduler.ErrScheduleNotBookable, "schedule_not_bookable"},
	{scheduler.ErrHoldNotFound, "hold_not_found"},
	{scheduler.ErrScheduleNotFound, "schedule_not_found"},
}

// writeError maps an engine error onto an HTTP response: capacity and
// state conflicts are 409, unknown IDs 404, anything else 500.  Internal
// details are logged, never returned.
func writeError(c echo.Context, log logger.Logger, err error) error {
	code := "internal_error"
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			code = e.code
			break
		}
	}
	switch scheduler.Classify(err) {
	case scheduler.CategoryCapacity:
		status := http.StatusConflict
		if errors.Is(err, scheduler.ErrInvalidSeatCount) {
			status = http.StatusBadRequest
		}
		return c.JSON(status, echo.Map{"error": code, "message": err.Error()})
	case scheduler.CategoryState:
		return c.JSON(http.StatusConflict, echo.Map{"error": code, "message": err.Error()})
	case scheduler.CategoryNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"error": code})
	}
	log.Error("request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": code})
}
