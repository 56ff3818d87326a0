// Package calendar decides whether a departure date falls on a weekend or
// a public holiday.
package calendar

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/iliyamo/trip-departure-scheduler/internal/logger"
)

// dateLayout is the key format for holiday dates.
const dateLayout = "2006-01-02"

// HolidaySource reports whether a local calendar date is a holiday.
type HolidaySource interface {
	IsHoliday(ctx context.Context, date string) (bool, error)
}

// Oracle implements scheduler.Calendar.  Weekends are Saturday and
// Sunday in loc.  Holiday answers are memoized per date; a failed lookup
// counts as "not a holiday" and is not memoized, so it is retried on the
// next refresh.  Dates before today are dropped from the memo once a day.
type Oracle struct {
	loc   *time.Location
	src   HolidaySource
	log   logger.Logger
	clock clockwork.Clock

	mu     sync.Mutex
	cache  map[string]bool
	pruned string // local date of the last prune
}

// OracleOption configures an Oracle.
type OracleOption func(*Oracle)

// WithClock sets the clock that decides which memoized dates are past.
func WithClock(c clockwork.Clock) OracleOption { return func(o *Oracle) { o.clock = c } }

// NewOracle returns an Oracle.  src may be nil, in which case no date is a
// holiday.
func NewOracle(loc *time.Location, src HolidaySource, log logger.Logger, opts ...OracleOption) *Oracle {
	if loc == nil {
		loc = time.UTC
	}
	o := &Oracle{loc: loc, src: src, log: log, clock: clockwork.NewRealClock(), cache: map[string]bool{}}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// IsWeekend reports whether t is a Saturday or Sunday in the oracle's zone.
func (o *Oracle) IsWeekend(t time.Time) bool {
	switch t.In(o.loc).Weekday() {
	case time.Saturday, time.Sunday:
		return true
	}
	return false
}

// IsHoliday reports whether t's local date is a holiday.
func (o *Oracle) IsHoliday(ctx context.Context, t time.Time) bool {
	if o.src == nil {
		return false
	}
	day := t.In(o.loc).Format(dateLayout)

	o.mu.Lock()
	v, ok := o.cache[day]
	o.mu.Unlock()
	if ok {
		return v
	}

	v, err := o.src.IsHoliday(ctx, day)
	if err != nil {
		o.log.Warn("holiday lookup failed", "date", day, "error", err)
		return false
	}
	o.mu.Lock()
	o.pruneLocked()
	o.cache[day] = v
	o.mu.Unlock()
	return v
}

// Cached returns how many dates are memoized.
func (o *Oracle) Cached() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.cache)
}

// pruneLocked drops memoized dates before today.  YYYY-MM-DD keys sort
// chronologically.
func (o *Oracle) pruneLocked() {
	today := o.clock.Now().In(o.loc).Format(dateLayout)
	if today == o.pruned {
		return
	}
	for day := range o.cache {
		if day < today {
			delete(o.cache, day)
		}
	}
	o.pruned = today
}

// StaticHolidays is a fixed set of YYYY-MM-DD dates.
type StaticHolidays map[string]struct{}

// NewStaticHolidays builds a StaticHolidays from YYYY-MM-DD strings.
// Malformed dates are returned as an error.
func NewStaticHolidays(dates []string) (StaticHolidays, error) {
	s := make(StaticHolidays, len(dates))
	for _, d := range dates {
		if _, err := time.Parse(dateLayout, d); err != nil {
			return nil, err
		}
		s[d] = struct{}{}
	}
	return s, nil
}

func (s StaticHolidays) IsHoliday(_ context.Context, date string) (bool, error) {
	_, ok := s[date]
	return ok, nil
}
