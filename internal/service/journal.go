package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/trip-departure-scheduler/internal/model"
	"github.com/iliyamo/trip-departure-scheduler/internal/scheduler"
)

// ScheduleStore persists schedule snapshots.
type ScheduleStore interface {
	SaveSnapshot(ctx context.Context, s model.DepartureSchedule, c model.CapacitySnapshot) error
}

// HoldStore persists holds.
type HoldStore interface {
	Upsert(ctx context.Context, h model.ReservationHold) error
}

// FillRecorder learns from runs that filled up.
type FillRecorder interface {
	RecordFill(ctx context.Context, routeID string, tier model.ServiceTier, d time.Duration) error
}

// Journal is the persistence sink: it mirrors every hold change and the
// schedule snapshot carried by each notification into MySQL, and feeds
// observed fill times of flexible runs back into the route statistics.
type Journal struct {
	schedules ScheduleStore
	holds     HoldStore
	fills     FillRecorder
	onFill    func(ctx context.Context, routeID string, tier model.ServiceTier)
}

// NewJournal builds the persistence sink.  onFill, if set, runs after a
// fill sample was recorded (used to evict cached averages).
func NewJournal(schedules ScheduleStore, holds HoldStore, fills FillRecorder, onFill func(ctx context.Context, routeID string, tier model.ServiceTier)) *Journal {
	return &Journal{schedules: schedules, holds: holds, fills: fills, onFill: onFill}
}

func (j *Journal) Name() string { return "journal" }

// Deliver implements Sink.
func (j *Journal) Deliver(ctx context.Context, n model.Notification) error {
	var errs []error
	if n.Hold != nil {
		if err := j.holds.Upsert(ctx, *n.Hold); err != nil {
			errs = append(errs, err)
		}
	}
	if err := j.schedules.SaveSnapshot(ctx, n.Schedule, n.Capacity); err != nil {
		errs = append(errs, err)
	}
	if n.Kind == model.NotifyScheduleDeparted {
		if err := j.recordFill(ctx, n.Schedule); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (j *Journal) recordFill(ctx context.Context, s model.DepartureSchedule) error {
	if st, _ := scheduler.PolicyFor(s.Tier); st != model.ScheduleFlexible || s.FullAt == nil {
		return nil
	}
	if err := j.fills.RecordFill(ctx, s.RouteID, s.Tier, s.FullAt.Sub(s.PublishedAt)); err != nil {
		return err
	}
	if j.onFill != nil {
		j.onFill(ctx, s.RouteID, s.Tier)
	}
	return nil
}
