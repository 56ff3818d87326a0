package scheduler

import (
	"context"
	"time"

	"github.com/iliyamo/trip-departure-scheduler/internal/model"
)

// Calendar answers calendar questions about a departure date.  Lookup
// failures must be reported as false, never as an error.
type Calendar interface {
	IsWeekend(date time.Time) bool
	IsHoliday(ctx context.Context, date time.Time) bool
}

// FillHistory supplies the historical time a route needs to fill up at a
// tier.  Implementations fall back to a default when no data exists; a
// zero result is replaced by the engine's configured default.
type FillHistory interface {
	AverageFillDuration(ctx context.Context, routeID string, tier model.ServiceTier) time.Duration
}

// Notifier receives engine notifications after the schedule's lock is
// released.  Delivery is the notifier's concern; Notify must not block
// for long.
type Notifier interface {
	Notify(n model.Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(model.Notification)

func (f NotifierFunc) Notify(n model.Notification) { f(n) }

type plainCalendar struct{}

func (plainCalendar) IsWeekend(date time.Time) bool {
	wd := date.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func (plainCalendar) IsHoliday(context.Context, time.Time) bool { return false }

type noHistory struct{}

func (noHistory) AverageFillDuration(context.Context, string, model.ServiceTier) time.Duration {
	return 0
}
