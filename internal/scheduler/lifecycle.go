package scheduler

import (
	"fmt"
	"time"

	"github.com/iliyamo/trip-departure-scheduler/internal/model"
)

// AutoCancelPolicy cancels a schedule that is still under MinFillRatio
// once Cutoff has elapsed since it was published.
type AutoCancelPolicy struct {
	Enabled      bool
	Cutoff       time.Duration
	MinFillRatio float64
}

// Transition is one lifecycle step.
type Transition struct {
	From   model.DepartureStatus
	To     model.DepartureStatus
	Reason string
}

// ReasonBelowMinimumFill is the cancel reason used by auto-cancellation.
const ReasonBelowMinimumFill = "below minimum viable fill at cutoff"

var scheduleTransitions = map[model.DepartureStatus][]model.DepartureStatus{
	model.StatusScheduled: {model.StatusBoarding, model.StatusCancelled},
	model.StatusBoarding:  {model.StatusDeparted, model.StatusCancelled},
}

func canTransitionSchedule(from, to model.DepartureStatus) bool {
	for _, s := range scheduleTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Lifecycle decides when a schedule moves between states.
type Lifecycle struct {
	BoardingLead time.Duration
	AutoCancel   map[model.ScheduleType]AutoCancelPolicy
}

// Evaluate returns the transitions due for s at now, in order.  Time-based
// steps are taken to a fixpoint so a compressed boarding window yields
// both SCHEDULED->BOARDING and BOARDING->DEPARTED.  Terminal schedules
// yield nothing.
func (lc Lifecycle) Evaluate(s model.DepartureSchedule, fillRatio float64, now time.Time) []Transition {
	if s.Status.Terminal() {
		return nil
	}
	if lc.shouldAutoCancel(s, fillRatio, now) {
		return []Transition{{From: s.Status, To: model.StatusCancelled, Reason: ReasonBelowMinimumFill}}
	}
	var out []Transition
	status := s.Status
	est := s.EstimatedDepartureAt
	for {
		switch {
		case status == model.StatusScheduled && !now.Before(est.Add(-lc.BoardingLead)):
			out = append(out, Transition{From: status, To: model.StatusBoarding})
			status = model.StatusBoarding
		case status == model.StatusBoarding && !now.Before(est):
			out = append(out, Transition{From: status, To: model.StatusDeparted})
			status = model.StatusDeparted
		default:
			return out
		}
	}
}

func (lc Lifecycle) shouldAutoCancel(s model.DepartureSchedule, fillRatio float64, now time.Time) bool {
	st, _ := PolicyFor(s.Tier)
	p, ok := lc.AutoCancel[st]
	if !ok || !p.Enabled {
		return false
	}
	return !now.Before(s.PublishedAt.Add(p.Cutoff)) && fillRatio < p.MinFillRatio
}

// apply performs t on s, rejecting illegal steps.
func apply(s *model.DepartureSchedule, t Transition) error {
	if s.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrScheduleAlreadyTerminal, s.Status)
	}
	if s.Status != t.From || !canTransitionSchedule(t.From, t.To) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidScheduleTransition, s.Status, t.To)
	}
	s.Status = t.To
	if t.To == model.StatusCancelled {
		s.CancelReason = t.Reason
	}
	return nil
}
