package service

import (
	"context"
	"errors"

	"github.com/iliyamo/trip-departure-scheduler/internal/logger"
	"github.com/iliyamo/trip-departure-scheduler/internal/model"
	"github.com/iliyamo/trip-departure-scheduler/internal/repository"
	"github.com/iliyamo/trip-departure-scheduler/internal/scheduler"
)

// ScheduleSource lists schedules that are still open.
type ScheduleSource interface {
	ListOpen(ctx context.Context) ([]repository.ScheduleRecord, error)
}

// HoldSource lists the open holds of one schedule.
type HoldSource interface {
	ListOpenBySchedule(ctx context.Context, scheduleID string) ([]model.ReservationHold, error)
}

// Publisher is the part of the engine the loader drives.
type Publisher interface {
	Has(scheduleID string) bool
	Publish(ctx context.Context, s model.DepartureSchedule, totalSeats int, holds []model.ReservationHold) error
}

// Loader brings schedules published in MySQL into the engine, together
// with their persisted holds.  It runs at startup and then periodically,
// so schedules inserted by the planning service are picked up.
type Loader struct {
	engine    Publisher
	schedules ScheduleSource
	holds     HoldSource
	log       logger.Logger
}

func NewLoader(engine Publisher, schedules ScheduleSource, holds HoldSource, log logger.Logger) *Loader {
	return &Loader{engine: engine, schedules: schedules, holds: holds, log: log}
}

// Sync publishes every open schedule the engine does not know yet and
// returns how many were added.  A schedule that fails to load is logged
// and skipped.
func (l *Loader) Sync(ctx context.Context) (int, error) {
	recs, err := l.schedules.ListOpen(ctx)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, rec := range recs {
		id := rec.Schedule.ID
		if l.engine.Has(id) {
			continue
		}
		holds, err := l.holds.ListOpenBySchedule(ctx, id)
		if err != nil {
			l.log.Error("load holds failed", "schedule_id", id, "error", err)
			continue
		}
		err = l.engine.Publish(ctx, rec.Schedule, rec.Capacity.TotalSeats, holds)
		switch {
		case errors.Is(err, scheduler.ErrScheduleExists):
		case err != nil:
			l.log.Error("publish schedule failed", "schedule_id", id, "error", err)
		default:
			added++
		}
	}
	if added > 0 {
		l.log.Info("schedules loaded", "count", added)
	}
	return added, nil
}
