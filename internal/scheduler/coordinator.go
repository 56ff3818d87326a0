package scheduler

import (
	"fmt"
	"time"

	"github.com/iliyamo/trip-departure-scheduler/internal/logger"
	"github.com/iliyamo/trip-departure-scheduler/internal/metrics"
	"github.com/iliyamo/trip-departure-scheduler/internal/model"
)

// EventKind names an in-process capacity event.
type EventKind int

const (
	CapacityChanged EventKind = iota + 1
	HoldConfirmed
)

func (k EventKind) String() string {
	switch k {
	case CapacityChanged:
		return "capacity_changed"
	case HoldConfirmed:
		return "hold_confirmed"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is raised by ledger mutations and consumed by the Coordinator in
// the same critical section.
type Event struct {
	Kind   EventKind
	HoldID string
}

// estimateNoticeStep is how far a flexible estimate must drift before a
// new estimate notification goes out.
const estimateNoticeStep = 5 * time.Minute

// Coordinator sequences "capacity changed -> recompute estimate -> check
// lifecycle" for one schedule.  It keeps no state of its own; every call
// runs while the caller holds the schedule's lock.
type Coordinator struct {
	calc    DepartureCalculator
	life    Lifecycle
	log     logger.Logger
	metrics *metrics.Metrics
}

// Handle reacts to a capacity event.
func (c *Coordinator) Handle(u *unit, ev Event, now time.Time) error {
	c.log.Debug("capacity event", "schedule_id", u.schedule.ID, "event", ev.Kind.String(), "hold_id", ev.HoldID)
	c.recompute(u, now)
	return c.advance(u, now)
}

// OnTick re-checks the lifecycle.  Fixed schedules never move, so their
// estimate is not recomputed.
func (c *Coordinator) OnTick(u *unit, now time.Time) error {
	if u.scheduleType != model.ScheduleFixed {
		c.recompute(u, now)
	}
	return c.advance(u, now)
}

func (c *Coordinator) recompute(u *unit, now time.Time) {
	s := &u.schedule
	if s.Status.Terminal() {
		return
	}
	est := c.calc.Compute(DepartureInput{
		Schedule:        *s,
		FillRatio:       u.ledger.FillRatio(),
		Now:             now,
		Calendar:        u.calendar,
		AvgFillDuration: u.avgFill,
	})
	s.EstimatedDepartureAt = est.At
	s.IsEstimated = est.IsEstimated
	s.FullAt = est.FullAt

	drift := est.At.Sub(u.notifiedEstimate)
	if drift < 0 {
		drift = -drift
	}
	if !u.estimateNotified || est.IsEstimated != u.notifiedIsEstimated ||
		(est.IsEstimated && drift >= estimateNoticeStep) || (!est.IsEstimated && drift != 0) {
		u.estimateNotified = true
		u.notifiedEstimate = est.At
		u.notifiedIsEstimated = est.IsEstimated
		u.emit(model.NotifyEstimateChanged, now, nil, "")
	}
}

func (c *Coordinator) advance(u *unit, now time.Time) error {
	for _, t := range c.life.Evaluate(u.schedule, u.ledger.FillRatio(), now) {
		if t.To == model.StatusCancelled {
			return c.cancel(u, now, t.Reason)
		}
		if err := apply(&u.schedule, t); err != nil {
			return err
		}
		c.metrics.ScheduleTransition(string(t.To))
		c.log.Info("schedule transition", "schedule_id", u.schedule.ID, "from", t.From, "to", t.To,
			"estimated_departure_at", u.schedule.EstimatedDepartureAt)
		switch t.To {
		case model.StatusBoarding:
			u.emit(model.NotifyScheduleBoarding, now, nil, "")
		case model.StatusDeparted:
			u.emit(model.NotifyScheduleDeparted, now, nil, "")
		}
	}
	return nil
}

// cancel releases every open hold of the schedule, then marks it
// CANCELLED.  Due holds are expired rather than cancelled.  Each released
// hold produces exactly one notification.
func (c *Coordinator) cancel(u *unit, now time.Time, reason string) error {
	if u.schedule.Status.Terminal() {
		return fmt.Errorf("%w: schedule %s is %s", ErrScheduleAlreadyTerminal, u.schedule.ID, u.schedule.Status)
	}
	expired, err := u.ledger.ExpireDue(now)
	for i := range expired {
		c.metrics.HoldTransition(string(model.HoldExpired))
		u.emit(model.NotifyHoldExpired, now, &expired[i], string(model.ReleaseExpired))
	}
	if err != nil {
		return err
	}
	for _, h := range u.ledger.OpenHolds() {
		released, err := u.ledger.Release(now, h.ID, model.ReleaseCancelled)
		if err != nil {
			return err
		}
		c.metrics.HoldTransition(string(model.HoldCancelled))
		u.emit(model.NotifyHoldCancelled, now, &released, reason)
	}
	if err := apply(&u.schedule, Transition{From: u.schedule.Status, To: model.StatusCancelled, Reason: reason}); err != nil {
		return err
	}
	c.metrics.ScheduleTransition(string(model.StatusCancelled))
	c.log.Info("schedule cancelled", "schedule_id", u.schedule.ID, "reason", reason)
	u.emit(model.NotifyScheduleCancelled, now, nil, reason)
	return nil
}
