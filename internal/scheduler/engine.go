package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/iliyamo/trip-departure-scheduler/internal/logger"
	"github.com/iliyamo/trip-departure-scheduler/internal/metrics"
	"github.com/iliyamo/trip-departure-scheduler/internal/model"
)

// Config holds the engine's tunables.
type Config struct {
	HoldTTL             time.Duration
	BoardingLead        time.Duration
	WeekendShift        time.Duration
	HolidayShift        time.Duration
	DefaultFillDuration time.Duration
	AutoCancel          map[model.ScheduleType]AutoCancelPolicy
}

// DefaultConfig returns the production defaults: 15 minute holds, 30
// minute boarding, weekend +2h, holiday +1 day, and auto-cancellation for
// flexible runs only.
func DefaultConfig() Config {
	return Config{
		HoldTTL:             15 * time.Minute,
		BoardingLead:        30 * time.Minute,
		WeekendShift:        2 * time.Hour,
		HolidayShift:        24 * time.Hour,
		DefaultFillDuration: 3 * time.Hour,
		AutoCancel: map[model.ScheduleType]AutoCancelPolicy{
			model.ScheduleFlexible:  {Enabled: true, Cutoff: 12 * time.Hour, MinFillRatio: 0.25},
			model.ScheduleSemiFixed: {Enabled: false},
			model.ScheduleFixed:     {Enabled: false},
		},
	}
}

// unit is the single point of mutual exclusion for one schedule: the
// schedule itself, its ledger and its holds.
type unit struct {
	mu           sync.Mutex
	schedule     model.DepartureSchedule
	scheduleType model.ScheduleType
	ledger       *Ledger
	calendar     model.CalendarContext
	avgFill      time.Duration
	broken       error
	outbox       []model.Notification

	// sending is taken before mu is released and held while the drained
	// outbox is handed to the notifier, so deliveries of one schedule
	// follow the order its operations were applied in.
	sending sync.Mutex

	estimateNotified    bool
	notifiedEstimate    time.Time
	notifiedIsEstimated bool
}

func (u *unit) emit(kind model.NotificationKind, at time.Time, hold *model.ReservationHold, reason string) {
	n := model.Notification{
		Kind:     kind,
		At:       at,
		Schedule: u.schedule,
		Capacity: u.ledger.Snapshot(),
		Reason:   reason,
	}
	if hold != nil {
		h := *hold
		n.Hold = &h
	}
	u.outbox = append(u.outbox, n)
}

func (u *unit) drain() []model.Notification {
	out := u.outbox
	u.outbox = nil
	return out
}

// Engine is the capacity and departure-scheduling service boundary.  All
// operations on one schedule are serialized by that schedule's lock;
// operations on different schedules never share a lock.
type Engine struct {
	cfg      Config
	clock    clockwork.Clock
	calendar Calendar
	history  FillHistory
	notifier Notifier
	log      logger.Logger
	metrics  *metrics.Metrics
	coord    *Coordinator

	units sync.Map // schedule ID -> *unit
	holds sync.Map // hold ID -> *unit
}

// Option configures an Engine.
type Option func(*Engine)

func WithClock(c clockwork.Clock) Option { return func(e *Engine) { e.clock = c } }

func WithCalendar(c Calendar) Option { return func(e *Engine) { e.calendar = c } }

func WithFillHistory(h FillHistory) Option { return func(e *Engine) { e.history = h } }

func WithNotifier(n Notifier) Option { return func(e *Engine) { e.notifier = n } }

func WithLogger(l logger.Logger) Option { return func(e *Engine) { e.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// New builds an engine.  Collaborators that are not supplied default to a
// real clock, a weekend-only calendar, no history (the configured default
// fill duration applies), a discarding notifier and a no-op logger.
func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		clock:    clockwork.NewRealClock(),
		calendar: plainCalendar{},
		history:  noHistory{},
		notifier: NotifierFunc(func(model.Notification) {}),
		log:      logger.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.coord = &Coordinator{
		calc: DepartureCalculator{
			WeekendShift:        cfg.WeekendShift,
			HolidayShift:        cfg.HolidayShift,
			DefaultFillDuration: cfg.DefaultFillDuration,
		},
		life:    Lifecycle{BoardingLead: cfg.BoardingLead, AutoCancel: cfg.AutoCancel},
		log:     e.log,
		metrics: e.metrics,
	}
	return e
}

// Publish registers a route run with totalSeats seats.  Persisted holds
// of the run may be passed to rebuild its ledger after a restart.
func (e *Engine) Publish(ctx context.Context, s model.DepartureSchedule, totalSeats int, holds []model.ReservationHold) error {
	if s.ID == "" {
		return fmt.Errorf("%w: missing schedule id", ErrInvalidSchedule)
	}
	if _, err := model.ParseServiceTier(string(s.Tier)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	st, _ := PolicyFor(s.Tier)
	if st == model.ScheduleFlexible && s.ScheduledDepartureAt != nil {
		return fmt.Errorf("%w: flexible schedule %s cannot carry a scheduled departure", ErrInvalidSchedule, s.ID)
	}
	if st != model.ScheduleFlexible && s.ScheduledDepartureAt == nil {
		return fmt.Errorf("%w: %s schedule %s needs a scheduled departure", ErrInvalidSchedule, st, s.ID)
	}
	if s.Status == "" {
		s.Status = model.StatusScheduled
	}
	if s.Status.Terminal() {
		return fmt.Errorf("%w: schedule %s is already %s", ErrInvalidSchedule, s.ID, s.Status)
	}

	now := e.clock.Now()
	if s.PublishedAt.IsZero() {
		s.PublishedAt = now
	}
	if s.EstimatedDepartureAt.IsZero() {
		s.EstimatedDepartureAt = now
		if s.ScheduledDepartureAt != nil {
			s.EstimatedDepartureAt = *s.ScheduledDepartureAt
		}
	}
	ledger, err := NewLedger(s.ID, totalSeats, e.cfg.HoldTTL)
	if err != nil {
		return err
	}
	for _, h := range holds {
		if h.ScheduleID != s.ID {
			return fmt.Errorf("%w: hold %s belongs to schedule %s", ErrInvalidSchedule, h.ID, h.ScheduleID)
		}
		if err := ledger.Restore(h); err != nil {
			return fmt.Errorf("restore hold %s: %w", h.ID, err)
		}
	}
	cal, avg := e.lookupContext(ctx, s, st)

	u := &unit{schedule: s, scheduleType: st, ledger: ledger, calendar: cal, avgFill: avg}
	u.mu.Lock()
	if _, loaded := e.units.LoadOrStore(s.ID, u); loaded {
		u.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrScheduleExists, s.ID)
	}
	for _, h := range holds {
		e.holds.Store(h.ID, u)
	}
	err = e.coord.Handle(u, Event{Kind: CapacityChanged}, now)
	e.release(u)

	e.log.Info("schedule published", "schedule_id", s.ID, "tier", s.Tier, "total_seats", totalSeats, "restored_holds", len(holds))
	return err
}

// ReserveSeats places an ACTIVE hold on seatCount seats.  Due holds of the
// schedule are expired first so their seats count as available.
func (e *Engine) ReserveSeats(ctx context.Context, scheduleID string, seatCount int) (model.ReservationHold, error) {
	if err := ctx.Err(); err != nil {
		return model.ReservationHold{}, err
	}
	u, err := e.unitFor(scheduleID)
	if err != nil {
		return model.ReservationHold{}, err
	}
	var hold model.ReservationHold
	err = e.withUnit(u, "reserve", func(now time.Time) error {
		if _, err := e.expireDue(u, now); err != nil {
			return err
		}
		if st := u.schedule.Status; st != model.StatusScheduled && st != model.StatusBoarding {
			return fmt.Errorf("%w: schedule %s is %s", ErrScheduleNotBookable, scheduleID, st)
		}
		h, err := u.ledger.Reserve(now, seatCount)
		if err != nil {
			return err
		}
		hold = h
		e.holds.Store(h.ID, u)
		e.metrics.HoldReserved()
		u.emit(model.NotifyHoldCreated, now, &h, "")
		return e.coord.Handle(u, Event{Kind: CapacityChanged, HoldID: h.ID}, now)
	})
	if err != nil {
		e.metrics.Rejected(rejectReason(err))
		return model.ReservationHold{}, err
	}
	return hold, nil
}

// ConfirmHold moves an ACTIVE hold to CONFIRMED.  A hold found past its
// expiry is expired on the spot and ErrHoldNotActive is returned.
func (e *Engine) ConfirmHold(ctx context.Context, holdID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u, err := e.unitForHold(holdID)
	if err != nil {
		return err
	}
	return e.withUnit(u, "confirm", func(now time.Time) error {
		expired, changed, err := u.ledger.ExpireIfDue(now, holdID)
		if err != nil {
			return err
		}
		if changed {
			e.onExpired(u, now, expired)
			if err := e.coord.Handle(u, Event{Kind: CapacityChanged, HoldID: holdID}, now); err != nil {
				return err
			}
			return fmt.Errorf("%w: hold %s expired at %s", ErrHoldNotActive, holdID, expired.ExpiresAt.Format(time.RFC3339))
		}
		h, err := u.ledger.Confirm(now, holdID)
		if err != nil {
			return err
		}
		e.metrics.HoldTransition(string(model.HoldConfirmed))
		u.emit(model.NotifyHoldConfirmed, now, &h, "")
		return e.coord.Handle(u, Event{Kind: HoldConfirmed, HoldID: holdID}, now)
	})
}

// ReleaseHold returns a hold's seats with the given reason.  An ACTIVE
// hold found past its expiry is expired instead, which also satisfies the
// release.
func (e *Engine) ReleaseHold(ctx context.Context, holdID string, reason model.ReleaseReason) error {
	return e.releaseHold(ctx, holdID, reason, false)
}

// ReleaseActiveHold is ReleaseHold for callers that may only give up
// unpaid seats: a CONFIRMED hold is left alone and ErrHoldNotActive is
// returned.
func (e *Engine) ReleaseActiveHold(ctx context.Context, holdID string, reason model.ReleaseReason) error {
	return e.releaseHold(ctx, holdID, reason, true)
}

func (e *Engine) releaseHold(ctx context.Context, holdID string, reason model.ReleaseReason, activeOnly bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u, err := e.unitForHold(holdID)
	if err != nil {
		return err
	}
	return e.withUnit(u, "release", func(now time.Time) error {
		expired, changed, err := u.ledger.ExpireIfDue(now, holdID)
		if err != nil {
			return err
		}
		if changed {
			e.onExpired(u, now, expired)
			return e.coord.Handle(u, Event{Kind: CapacityChanged, HoldID: holdID}, now)
		}
		if cur, ok := u.ledger.Hold(holdID); activeOnly && ok && cur.Status != model.HoldActive {
			return fmt.Errorf("%w: hold %s is %s", ErrHoldNotActive, holdID, cur.Status)
		}
		h, err := u.ledger.Release(now, holdID, reason)
		if err != nil {
			return err
		}
		e.metrics.HoldTransition(string(h.Status))
		kind := model.NotifyHoldCancelled
		if h.Status == model.HoldExpired {
			kind = model.NotifyHoldExpired
		}
		u.emit(kind, now, &h, string(reason))
		return e.coord.Handle(u, Event{Kind: CapacityChanged, HoldID: holdID}, now)
	})
}

// GetScheduleStatus returns the schedule's current state.  It does not
// mutate anything.
func (e *Engine) GetScheduleStatus(ctx context.Context, scheduleID string) (model.ScheduleStatus, error) {
	if err := ctx.Err(); err != nil {
		return model.ScheduleStatus{}, err
	}
	u, err := e.unitFor(scheduleID)
	if err != nil {
		return model.ScheduleStatus{}, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.broken != nil {
		return model.ScheduleStatus{}, u.broken
	}
	return model.ScheduleStatus{
		ScheduleID:           u.schedule.ID,
		Status:               u.schedule.Status,
		EstimatedDepartureAt: u.schedule.EstimatedDepartureAt,
		IsEstimated:          u.schedule.IsEstimated,
		FillRatio:            u.ledger.FillRatio(),
	}, nil
}

// CancelSchedule cancels a non-terminal schedule on operator request,
// releasing all of its open holds.
func (e *Engine) CancelSchedule(ctx context.Context, scheduleID, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u, err := e.unitFor(scheduleID)
	if err != nil {
		return err
	}
	return e.withUnit(u, "cancel", func(now time.Time) error {
		return e.coord.cancel(u, now, reason)
	})
}

// Has reports whether the schedule is registered.
func (e *Engine) Has(scheduleID string) bool {
	_, ok := e.units.Load(scheduleID)
	return ok
}

// Snapshot returns copies of a schedule and its ledger counters.
func (e *Engine) Snapshot(scheduleID string) (model.DepartureSchedule, model.CapacitySnapshot, error) {
	u, err := e.unitFor(scheduleID)
	if err != nil {
		return model.DepartureSchedule{}, model.CapacitySnapshot{}, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.schedule, u.ledger.Snapshot(), nil
}

// Archive forgets a terminal schedule and its holds.
func (e *Engine) Archive(scheduleID string) error {
	u, err := e.unitFor(scheduleID)
	if err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.schedule.Status.Terminal() {
		return fmt.Errorf("%w: schedule %s is still %s", ErrInvalidSchedule, scheduleID, u.schedule.Status)
	}
	for id := range u.ledger.holds {
		e.holds.Delete(id)
	}
	e.units.Delete(scheduleID)
	return nil
}

// SweepExpired expires every due hold on every schedule and returns how
// many holds it expired.
func (e *Engine) SweepExpired(ctx context.Context) int {
	total := 0
	e.units.Range(func(_, v any) bool {
		if ctx.Err() != nil {
			return false
		}
		u := v.(*unit)
		var n int
		err := e.withUnit(u, "sweep", func(now time.Time) error {
			var err error
			n, err = e.expireDue(u, now)
			return err
		})
		if err != nil && !errors.Is(err, ErrLedgerCorrupted) {
			e.log.Warn("sweep failed", "schedule_id", u.schedule.ID, "error", err)
		}
		total += n
		return true
	})
	if total > 0 {
		e.log.Info("expired holds swept", "count", total)
	}
	return total
}

// Tick re-evaluates every non-terminal schedule.
func (e *Engine) Tick(ctx context.Context) {
	e.units.Range(func(_, v any) bool {
		if ctx.Err() != nil {
			return false
		}
		u := v.(*unit)
		err := e.withUnit(u, "tick", func(now time.Time) error {
			if u.schedule.Status.Terminal() {
				return nil
			}
			return e.coord.OnTick(u, now)
		})
		if err != nil && !errors.Is(err, ErrLedgerCorrupted) {
			e.log.Warn("tick failed", "error", err)
		}
		return true
	})
}

// RefreshContext re-reads calendar and fill-history data for every open
// flexible and semi-fixed schedule.  Lookups run without holding any
// schedule lock; results are applied afterwards.
func (e *Engine) RefreshContext(ctx context.Context) {
	e.units.Range(func(_, v any) bool {
		if ctx.Err() != nil {
			return false
		}
		u := v.(*unit)
		u.mu.Lock()
		s, st := u.schedule, u.scheduleType
		u.mu.Unlock()
		if s.Status.Terminal() || st == model.ScheduleFixed {
			return true
		}
		cal, avg := e.lookupContext(ctx, s, st)
		err := e.withUnit(u, "refresh", func(now time.Time) error {
			u.calendar, u.avgFill = cal, avg
			if u.schedule.Status.Terminal() {
				return nil
			}
			return e.coord.OnTick(u, now)
		})
		if err != nil && !errors.Is(err, ErrLedgerCorrupted) {
			e.log.Warn("context refresh failed", "schedule_id", s.ID, "error", err)
		}
		return true
	})
}

// withUnit runs fn under u's lock, quarantines the schedule on an
// invariant violation and dispatches collected notifications in order
// once the lock is released.
func (e *Engine) withUnit(u *unit, op string, fn func(now time.Time) error) error {
	start := time.Now()
	u.mu.Lock()
	if u.broken != nil {
		err := u.broken
		u.mu.Unlock()
		return err
	}
	err := fn(e.clock.Now())
	if errors.Is(err, ErrLedgerCorrupted) {
		u.broken = err
		e.metrics.LedgerViolation()
		e.log.Error("schedule quarantined", "schedule_id", u.schedule.ID, "operation", op, "error", err)
	}
	e.metrics.Observe(op, start)
	e.release(u)
	return err
}

// release unlocks u and delivers its outbox.  The next operation on u can
// run its critical section meanwhile but cannot deliver before this one.
func (e *Engine) release(u *unit) {
	notes := u.drain()
	u.sending.Lock()
	u.mu.Unlock()
	defer u.sending.Unlock()
	e.dispatch(notes)
}

// expireDue expires the schedule's due holds and, if any were expired,
// runs the coordinator.  It returns the number of holds expired.
func (e *Engine) expireDue(u *unit, now time.Time) (int, error) {
	expired, err := u.ledger.ExpireDue(now)
	for _, h := range expired {
		e.onExpired(u, now, h)
	}
	if err != nil {
		return len(expired), err
	}
	if len(expired) > 0 {
		return len(expired), e.coord.Handle(u, Event{Kind: CapacityChanged}, now)
	}
	return 0, nil
}

func (e *Engine) onExpired(u *unit, now time.Time, h model.ReservationHold) {
	e.metrics.HoldTransition(string(model.HoldExpired))
	u.emit(model.NotifyHoldExpired, now, &h, string(model.ReleaseExpired))
}

func (e *Engine) lookupContext(ctx context.Context, s model.DepartureSchedule, st model.ScheduleType) (model.CalendarContext, time.Duration) {
	var (
		cal model.CalendarContext
		avg time.Duration
	)
	switch st {
	case model.ScheduleSemiFixed:
		if s.ScheduledDepartureAt != nil {
			d := *s.ScheduledDepartureAt
			cal.IsWeekend = e.calendar.IsWeekend(d)
			cal.IsHoliday = e.calendar.IsHoliday(ctx, d)
		}
	case model.ScheduleFlexible:
		avg = e.history.AverageFillDuration(ctx, s.RouteID, s.Tier)
	}
	return cal, avg
}

func (e *Engine) dispatch(notes []model.Notification) {
	for _, n := range notes {
		e.notifier.Notify(n)
	}
}

func (e *Engine) unitFor(scheduleID string) (*unit, error) {
	v, ok := e.units.Load(scheduleID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScheduleNotFound, scheduleID)
	}
	return v.(*unit), nil
}

func (e *Engine) unitForHold(holdID string) (*unit, error) {
	v, ok := e.holds.Load(holdID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHoldNotFound, holdID)
	}
	return v.(*unit), nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientCapacity):
		return "insufficient_capacity"
	case errors.Is(err, ErrInvalidSeatCount):
		return "invalid_seat_count"
	case errors.Is(err, ErrScheduleNotBookable):
		return "not_bookable"
	}
	return "other"
}
