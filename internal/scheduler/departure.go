package scheduler

import (
	"time"

	"github.com/iliyamo/trip-departure-scheduler/internal/model"
)

// DepartureInput is everything the departure calculator looks at.
type DepartureInput struct {
	Schedule        model.DepartureSchedule
	FillRatio       float64
	Now             time.Time
	Calendar        model.CalendarContext
	AvgFillDuration time.Duration
}

// Estimate is the calculator's output.  FullAt carries the latched
// early-full instant so it can be written back onto the schedule.
type Estimate struct {
	At          time.Time
	IsEstimated bool
	FullAt      *time.Time
}

// DepartureCalculator turns a schedule's policy, fill level and calendar
// context into a departure estimate.  It has no side effects.
type DepartureCalculator struct {
	WeekendShift        time.Duration
	HolidayShift        time.Duration
	DefaultFillDuration time.Duration
}

// Compute dispatches on the schedule's tier policy.
func (c DepartureCalculator) Compute(in DepartureInput) Estimate {
	_, policy := PolicyFor(in.Schedule.Tier)
	switch policy {
	case model.PolicyOnFullCapacity:
		return c.onFullCapacity(in)
	case model.PolicyScheduledWithFlexibility:
		return c.scheduledWithFlexibility(in)
	default:
		return c.strict(in)
	}
}

func (c DepartureCalculator) strict(in DepartureInput) Estimate {
	s := in.Schedule
	if s.ScheduledDepartureAt == nil {
		return Estimate{At: s.EstimatedDepartureAt, FullAt: s.FullAt}
	}
	return Estimate{At: *s.ScheduledDepartureAt, FullAt: s.FullAt}
}

// shiftedTarget applies the calendar shift to the scheduled departure.  A
// holiday wins over a weekend; the two are never added together.
func (c DepartureCalculator) shiftedTarget(scheduled time.Time, cal model.CalendarContext) time.Time {
	switch {
	case cal.IsHoliday:
		return scheduled.Add(c.HolidayShift)
	case cal.IsWeekend:
		return scheduled.Add(c.WeekendShift)
	}
	return scheduled
}

func (c DepartureCalculator) scheduledWithFlexibility(in DepartureInput) Estimate {
	s := in.Schedule
	if s.FullAt != nil {
		return Estimate{At: *s.FullAt, FullAt: s.FullAt}
	}
	if s.ScheduledDepartureAt == nil {
		return c.strict(in)
	}
	target := c.shiftedTarget(*s.ScheduledDepartureAt, in.Calendar)
	if in.FillRatio >= 1.0 && in.Now.Before(target) {
		now := in.Now
		return Estimate{At: now, FullAt: &now}
	}
	return Estimate{At: target}
}

func (c DepartureCalculator) onFullCapacity(in DepartureInput) Estimate {
	s := in.Schedule
	if s.FullAt != nil {
		return Estimate{At: *s.FullAt, FullAt: s.FullAt}
	}
	if in.FillRatio >= 1.0 {
		now := in.Now
		return Estimate{At: now, FullAt: &now}
	}
	avg := in.AvgFillDuration
	if avg <= 0 {
		avg = c.DefaultFillDuration
	}
	fill := in.FillRatio
	if fill < 0 {
		fill = 0
	}
	remaining := time.Duration(float64(avg) * (1 - fill))
	return Estimate{At: in.Now.Add(remaining), IsEstimated: true}
}
