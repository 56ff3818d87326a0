package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/iliyamo/trip-departure-scheduler/internal/metrics"
	"github.com/iliyamo/trip-departure-scheduler/internal/model"
)

type recorder struct {
	mu    sync.Mutex
	notes []model.Notification
}

func (r *recorder) Notify(n model.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recorder) count(kind model.NotificationKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, note := range r.notes {
		if note.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) holdIDs(kind model.NotificationKind) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, note := range r.notes {
		if note.Kind == kind && note.Hold != nil {
			ids = append(ids, note.Hold.ID)
		}
	}
	return ids
}

func (r *recorder) holdKinds() []model.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []model.NotificationKind
	for _, note := range r.notes {
		if note.Hold != nil {
			kinds = append(kinds, note.Kind)
		}
	}
	return kinds
}

// gatedNotifier holds back the first notification of one kind until gate
// is closed, reporting the hold it carries on parked.
type gatedNotifier struct {
	recorder
	kind   model.NotificationKind
	parked chan string
	gate   chan struct{}
	once   sync.Once
}

func (g *gatedNotifier) Notify(n model.Notification) {
	if n.Kind == g.kind {
		g.once.Do(func() {
			g.parked <- n.Hold.ID
			<-g.gate
		})
	}
	g.recorder.Notify(n)
}

type fakeCalendar struct {
	mu      sync.Mutex
	weekend bool
	holiday bool
}

func (c *fakeCalendar) IsWeekend(time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.weekend
}

func (c *fakeCalendar) IsHoliday(context.Context, time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holiday
}

func (c *fakeCalendar) set(weekend, holiday bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.weekend, c.holiday = weekend, holiday
}

type fixedHistory time.Duration

func (h fixedHistory) AverageFillDuration(context.Context, string, model.ServiceTier) time.Duration {
	return time.Duration(h)
}

type advancingClock interface {
	clockwork.Clock
	Advance(time.Duration)
}

type EngineSuite struct {
	suite.Suite
	ctx    context.Context
	clock  advancingClock
	cal    *fakeCalendar
	rec    *recorder
	engine *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = clockwork.NewFakeClockAt(t0)
	s.cal = &fakeCalendar{}
	s.rec = &recorder{}
	s.engine = New(DefaultConfig(),
		WithClock(s.clock),
		WithCalendar(s.cal),
		WithFillHistory(fixedHistory(24*time.Hour)),
		WithNotifier(s.rec),
		WithMetrics(metrics.NewMetrics("test", prometheus.NewRegistry())),
	)
}

func (s *EngineSuite) publish(id string, tier model.ServiceTier, dep *time.Time, seats int) {
	err := s.engine.Publish(s.ctx, model.DepartureSchedule{
		ID:                   id,
		RouteID:              "route-" + id,
		VehicleID:            "bus-" + id,
		Tier:                 tier,
		ScheduledDepartureAt: dep,
	}, seats, nil)
	s.Require().NoError(err)
}

func (s *EngineSuite) status(id string) model.ScheduleStatus {
	st, err := s.engine.GetScheduleStatus(s.ctx, id)
	s.Require().NoError(err)
	return st
}

func (s *EngineSuite) capacity(id string) model.CapacitySnapshot {
	_, c, err := s.engine.Snapshot(id)
	s.Require().NoError(err)
	return c
}

func (s *EngineSuite) TestSecondReserveFailsWithoutChangingLedger() {
	s.publish("p", model.TierPremium, at(t0.Add(48*time.Hour)), 2)

	_, err := s.engine.ReserveSeats(s.ctx, "p", 2)
	s.Require().NoError(err)
	before := s.capacity("p")

	_, err = s.engine.ReserveSeats(s.ctx, "p", 1)
	s.ErrorIs(err, ErrInsufficientCapacity)
	s.Equal(before, s.capacity("p"))
}

func (s *EngineSuite) TestNoOversellUnderConcurrency() {
	const seats = 10
	s.publish("p", model.TierPremium, at(t0.Add(48*time.Hour)), seats)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		reserved int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			h, err := s.engine.ReserveSeats(s.ctx, "p", n)
			if err != nil {
				s.ErrorIs(err, ErrInsufficientCapacity)
				return
			}
			mu.Lock()
			reserved += h.SeatCount
			mu.Unlock()
		}(1 + i%3)
	}
	wg.Wait()

	c := s.capacity("p")
	s.LessOrEqual(reserved, seats)
	s.Equal(reserved, c.ActiveHoldSeats)
	s.Equal(seats, c.AvailableSeats+c.ActiveHoldSeats+c.ConfirmedSeats)
}

func (s *EngineSuite) TestConcurrentSchedulesDoNotInterfere() {
	s.publish("a", model.TierPremium, at(t0.Add(48*time.Hour)), 50)
	s.publish("b", model.TierPremium, at(t0.Add(48*time.Hour)), 50)

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b"} {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				h, err := s.engine.ReserveSeats(s.ctx, id, 1)
				if s.NoError(err) {
					s.NoError(s.engine.ConfirmHold(s.ctx, h.ID))
				}
			}(id)
		}
	}
	wg.Wait()
	s.Equal(50, s.capacity("a").ConfirmedSeats)
	s.Equal(50, s.capacity("b").ConfirmedSeats)
}

func (s *EngineSuite) TestConfirmTwice() {
	s.publish("p", model.TierPremium, at(t0.Add(48*time.Hour)), 4)
	h, err := s.engine.ReserveSeats(s.ctx, "p", 3)
	s.Require().NoError(err)

	s.Require().NoError(s.engine.ConfirmHold(s.ctx, h.ID))
	s.ErrorIs(s.engine.ConfirmHold(s.ctx, h.ID), ErrHoldNotActive)
	s.Equal(model.CapacitySnapshot{TotalSeats: 4, AvailableSeats: 1, ConfirmedSeats: 3}, s.capacity("p"))
	s.Equal(1, s.rec.count(model.NotifyHoldConfirmed))
}

func (s *EngineSuite) TestPremiumEstimateNeverChanges() {
	dep := t0.Add(48 * time.Hour)
	s.cal.set(true, true)
	s.publish("p", model.TierPremium, at(dep), 2)
	s.True(s.status("p").EstimatedDepartureAt.Equal(dep))

	_, err := s.engine.ReserveSeats(s.ctx, "p", 2)
	s.Require().NoError(err)
	s.engine.RefreshContext(s.ctx)
	s.clock.Advance(time.Hour)
	s.engine.Tick(s.ctx)

	st := s.status("p")
	s.True(st.EstimatedDepartureAt.Equal(dep))
	s.False(st.IsEstimated)
	s.Equal(model.StatusScheduled, st.Status)
	s.Equal(1.0, st.FillRatio)
}

func (s *EngineSuite) TestRegularDepartsWhenFull() {
	s.publish("r", model.TierRegular, nil, 3)
	st := s.status("r")
	s.True(st.IsEstimated)
	s.True(st.EstimatedDepartureAt.Equal(t0.Add(24 * time.Hour)))

	s.clock.Advance(10 * time.Minute)
	now := s.clock.Now()
	_, err := s.engine.ReserveSeats(s.ctx, "r", 3)
	s.Require().NoError(err)

	st = s.status("r")
	s.True(st.EstimatedDepartureAt.Equal(now))
	s.False(st.IsEstimated)
	s.Equal(model.StatusDeparted, st.Status)
	s.Equal(1, s.rec.count(model.NotifyScheduleBoarding))
	s.Equal(1, s.rec.count(model.NotifyScheduleDeparted))

	s.clock.Advance(time.Minute)
	s.engine.Tick(s.ctx)
	st = s.status("r")
	s.True(st.EstimatedDepartureAt.Equal(now))
	s.False(st.IsEstimated)
	s.Equal(1, s.rec.count(model.NotifyScheduleDeparted))

	_, err = s.engine.ReserveSeats(s.ctx, "r", 1)
	s.ErrorIs(err, ErrScheduleNotBookable)
}

func (s *EngineSuite) TestRegularPredictionMovesWithFill() {
	s.publish("r", model.TierRegular, nil, 4)
	_, err := s.engine.ReserveSeats(s.ctx, "r", 2)
	s.Require().NoError(err)

	st := s.status("r")
	s.True(st.IsEstimated)
	s.True(st.EstimatedDepartureAt.Equal(t0.Add(12 * time.Hour)))
}

func (s *EngineSuite) TestVIPWeekendThenEarlyFull() {
	dep := t0.Add(6 * time.Hour)
	s.cal.set(true, false)
	s.publish("v", model.TierVIP, at(dep), 4)
	s.True(s.status("v").EstimatedDepartureAt.Equal(dep.Add(2 * time.Hour)))

	s.clock.Advance(7 * time.Hour) // T+1h, still before T+2h-30m
	s.engine.Tick(s.ctx)
	s.Equal(model.StatusScheduled, s.status("v").Status)

	now := s.clock.Now()
	_, err := s.engine.ReserveSeats(s.ctx, "v", 4)
	s.Require().NoError(err)
	st := s.status("v")
	s.True(st.EstimatedDepartureAt.Equal(now))
	s.False(st.IsEstimated)
	s.Equal(model.StatusDeparted, st.Status)
}

func (s *EngineSuite) TestVIPHolidayFromRefresh() {
	dep := t0.Add(6 * time.Hour)
	s.publish("v", model.TierVIP, at(dep), 4)
	s.True(s.status("v").EstimatedDepartureAt.Equal(dep))

	s.cal.set(true, true)
	s.engine.RefreshContext(s.ctx)
	s.True(s.status("v").EstimatedDepartureAt.Equal(dep.Add(24 * time.Hour)))
}

func (s *EngineSuite) TestSweepExpiresUnconfirmedHold() {
	s.publish("p", model.TierPremium, at(t0.Add(48*time.Hour)), 5)
	h, err := s.engine.ReserveSeats(s.ctx, "p", 2)
	s.Require().NoError(err)

	s.clock.Advance(16 * time.Minute)
	s.Equal(1, s.engine.SweepExpired(s.ctx))
	s.Equal(0, s.engine.SweepExpired(s.ctx))
	s.Equal(5, s.capacity("p").AvailableSeats)
	s.Equal([]string{h.ID}, s.rec.holdIDs(model.NotifyHoldExpired))

	s.ErrorIs(s.engine.ConfirmHold(s.ctx, h.ID), ErrHoldNotActive)
	s.Equal(5, s.capacity("p").AvailableSeats)
}

func (s *EngineSuite) TestLazyExpiryOnConfirmReleasesOnce() {
	s.publish("p", model.TierPremium, at(t0.Add(48*time.Hour)), 5)
	h, err := s.engine.ReserveSeats(s.ctx, "p", 2)
	s.Require().NoError(err)

	s.clock.Advance(16 * time.Minute)
	s.ErrorIs(s.engine.ConfirmHold(s.ctx, h.ID), ErrHoldNotActive)
	s.Equal(5, s.capacity("p").AvailableSeats)

	s.Equal(0, s.engine.SweepExpired(s.ctx))
	s.ErrorIs(s.engine.ReleaseHold(s.ctx, h.ID, model.ReleaseCancelled), ErrInvalidHoldTransition)
	s.Equal(5, s.capacity("p").AvailableSeats)
	s.Len(s.rec.holdIDs(model.NotifyHoldExpired), 1)
}

func (s *EngineSuite) TestReleaseOfDueHoldExpiresIt() {
	s.publish("p", model.TierPremium, at(t0.Add(48*time.Hour)), 5)
	h, err := s.engine.ReserveSeats(s.ctx, "p", 2)
	s.Require().NoError(err)

	s.clock.Advance(15 * time.Minute)
	s.NoError(s.engine.ReleaseHold(s.ctx, h.ID, model.ReleaseCancelled))
	s.Equal(5, s.capacity("p").AvailableSeats)
	s.Equal(1, s.rec.count(model.NotifyHoldExpired))
	s.Equal(0, s.rec.count(model.NotifyHoldCancelled))
}

func (s *EngineSuite) TestReserveExpiresDueHoldsFirst() {
	s.publish("p", model.TierPremium, at(t0.Add(48*time.Hour)), 2)
	_, err := s.engine.ReserveSeats(s.ctx, "p", 2)
	s.Require().NoError(err)

	s.clock.Advance(16 * time.Minute)
	_, err = s.engine.ReserveSeats(s.ctx, "p", 2)
	s.NoError(err)
}

func (s *EngineSuite) TestCancelReleasesActiveAndConfirmedHolds() {
	s.publish("p", model.TierPremium, at(t0.Add(48*time.Hour)), 6)
	active, err := s.engine.ReserveSeats(s.ctx, "p", 1)
	s.Require().NoError(err)
	confirmed, err := s.engine.ReserveSeats(s.ctx, "p", 2)
	s.Require().NoError(err)
	s.Require().NoError(s.engine.ConfirmHold(s.ctx, confirmed.ID))

	s.Require().NoError(s.engine.CancelSchedule(s.ctx, "p", "vehicle breakdown"))
	st := s.status("p")
	s.Equal(model.StatusCancelled, st.Status)
	s.Equal(model.CapacitySnapshot{TotalSeats: 6, AvailableSeats: 6}, s.capacity("p"))
	s.ElementsMatch([]string{active.ID, confirmed.ID}, s.rec.holdIDs(model.NotifyHoldCancelled))
	s.Equal(1, s.rec.count(model.NotifyScheduleCancelled))

	s.ErrorIs(s.engine.CancelSchedule(s.ctx, "p", "again"), ErrScheduleAlreadyTerminal)
	s.Len(s.rec.holdIDs(model.NotifyHoldCancelled), 2)

	_, err = s.engine.ReserveSeats(s.ctx, "p", 1)
	s.ErrorIs(err, ErrScheduleNotBookable)
	s.ErrorIs(s.engine.ConfirmHold(s.ctx, active.ID), ErrHoldNotActive)
}

func (s *EngineSuite) TestFlexibleAutoCancel() {
	s.publish("r", model.TierRegular, nil, 10)
	h, err := s.engine.ReserveSeats(s.ctx, "r", 1)
	s.Require().NoError(err)

	s.clock.Advance(11 * time.Hour)
	s.engine.Tick(s.ctx)
	s.Equal(model.StatusScheduled, s.status("r").Status)

	s.clock.Advance(time.Hour)
	s.engine.Tick(s.ctx)
	s.Equal(model.StatusCancelled, s.status("r").Status)
	s.Equal([]string{h.ID}, s.rec.holdIDs(model.NotifyHoldExpired))
	s.Equal(10, s.capacity("r").AvailableSeats)
}

func (s *EngineSuite) TestTickDrivesBoardingAndDeparture() {
	dep := t0.Add(2 * time.Hour)
	s.publish("p", model.TierPremium, at(dep), 4)

	s.clock.Advance(89 * time.Minute)
	s.engine.Tick(s.ctx)
	s.Equal(model.StatusScheduled, s.status("p").Status)

	s.clock.Advance(time.Minute)
	s.engine.Tick(s.ctx)
	s.Equal(model.StatusBoarding, s.status("p").Status)

	_, err := s.engine.ReserveSeats(s.ctx, "p", 1)
	s.NoError(err, "boarding schedules still sell seats")

	s.clock.Advance(30 * time.Minute)
	s.engine.Tick(s.ctx)
	s.engine.Tick(s.ctx)
	s.Equal(model.StatusDeparted, s.status("p").Status)
	s.Equal(1, s.rec.count(model.NotifyScheduleDeparted))
}

func (s *EngineSuite) TestCorruptedScheduleIsQuarantined() {
	s.publish("bad", model.TierPremium, at(t0.Add(48*time.Hour)), 4)
	s.publish("good", model.TierPremium, at(t0.Add(48*time.Hour)), 4)

	v, _ := s.engine.units.Load("bad")
	u := v.(*unit)
	u.mu.Lock()
	u.ledger.held++
	u.mu.Unlock()

	_, err := s.engine.ReserveSeats(s.ctx, "bad", 1)
	s.ErrorIs(err, ErrLedgerCorrupted)
	_, err = s.engine.GetScheduleStatus(s.ctx, "bad")
	s.ErrorIs(err, ErrLedgerCorrupted)
	s.ErrorIs(s.engine.CancelSchedule(s.ctx, "bad", "x"), ErrLedgerCorrupted)

	_, err = s.engine.ReserveSeats(s.ctx, "good", 1)
	s.NoError(err)
	s.engine.Tick(s.ctx)
	s.clock.Advance(16 * time.Minute)
	s.Equal(1, s.engine.SweepExpired(s.ctx))
	s.Equal(4, s.capacity("good").AvailableSeats)
}

func (s *EngineSuite) TestPublishValidation() {
	dep := t0.Add(time.Hour)
	cases := []model.DepartureSchedule{
		{Tier: model.TierPremium, ScheduledDepartureAt: &dep},
		{ID: "x", Tier: "ECONOMY", ScheduledDepartureAt: &dep},
		{ID: "x", Tier: model.TierRegular, ScheduledDepartureAt: &dep},
		{ID: "x", Tier: model.TierVIP},
		{ID: "x", Tier: model.TierPremium, ScheduledDepartureAt: &dep, Status: model.StatusDeparted},
	}
	for _, c := range cases {
		s.ErrorIs(s.engine.Publish(s.ctx, c, 4, nil), ErrInvalidSchedule, "%+v", c)
	}
	s.ErrorIs(s.engine.Publish(s.ctx, model.DepartureSchedule{ID: "x", Tier: model.TierPremium, ScheduledDepartureAt: &dep}, 0, nil), ErrInvalidSchedule)

	s.publish("dup", model.TierPremium, &dep, 4)
	s.ErrorIs(s.engine.Publish(s.ctx, model.DepartureSchedule{ID: "dup", Tier: model.TierPremium, ScheduledDepartureAt: &dep}, 4, nil), ErrScheduleExists)
}

func (s *EngineSuite) TestPublishRestoresHolds() {
	dep := t0.Add(48 * time.Hour)
	holds := []model.ReservationHold{
		{ID: "h1", ScheduleID: "p", SeatCount: 2, Status: model.HoldActive, CreatedAt: t0, ExpiresAt: t0.Add(15 * time.Minute)},
		{ID: "h2", ScheduleID: "p", SeatCount: 1, Status: model.HoldConfirmed, CreatedAt: t0},
	}
	s.Require().NoError(s.engine.Publish(s.ctx, model.DepartureSchedule{ID: "p", Tier: model.TierPremium, ScheduledDepartureAt: &dep}, 5, holds))
	s.Equal(model.CapacitySnapshot{TotalSeats: 5, AvailableSeats: 2, ActiveHoldSeats: 2, ConfirmedSeats: 1}, s.capacity("p"))

	s.NoError(s.engine.ConfirmHold(s.ctx, "h1"))
	s.NoError(s.engine.ReleaseHold(s.ctx, "h2", model.ReleaseCancelled))
	s.Equal(model.CapacitySnapshot{TotalSeats: 5, AvailableSeats: 3, ConfirmedSeats: 2}, s.capacity("p"))

	foreign := []model.ReservationHold{{ID: "h3", ScheduleID: "other", SeatCount: 1, Status: model.HoldActive}}
	s.ErrorIs(s.engine.Publish(s.ctx, model.DepartureSchedule{ID: "q", Tier: model.TierPremium, ScheduledDepartureAt: &dep}, 5, foreign), ErrInvalidSchedule)
}

func (s *EngineSuite) TestNotFound() {
	_, err := s.engine.ReserveSeats(s.ctx, "missing", 1)
	s.ErrorIs(err, ErrScheduleNotFound)
	s.ErrorIs(s.engine.ConfirmHold(s.ctx, "missing"), ErrHoldNotFound)
	s.ErrorIs(s.engine.ReleaseHold(s.ctx, "missing", model.ReleaseCancelled), ErrHoldNotFound)
	_, err = s.engine.GetScheduleStatus(s.ctx, "missing")
	s.ErrorIs(err, ErrScheduleNotFound)
	s.ErrorIs(s.engine.CancelSchedule(s.ctx, "missing", ""), ErrScheduleNotFound)
}

func (s *EngineSuite) TestArchive() {
	s.publish("p", model.TierPremium, at(t0.Add(48*time.Hour)), 4)
	h, err := s.engine.ReserveSeats(s.ctx, "p", 1)
	s.Require().NoError(err)

	s.ErrorIs(s.engine.Archive("p"), ErrInvalidSchedule)
	s.Require().NoError(s.engine.CancelSchedule(s.ctx, "p", "done"))
	s.Require().NoError(s.engine.Archive("p"))

	_, err = s.engine.GetScheduleStatus(s.ctx, "p")
	s.ErrorIs(err, ErrScheduleNotFound)
	s.ErrorIs(s.engine.ConfirmHold(s.ctx, h.ID), ErrHoldNotFound)
}

func (s *EngineSuite) TestCancelledContext() {
	s.publish("p", model.TierPremium, at(t0.Add(48*time.Hour)), 4)
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	_, err := s.engine.ReserveSeats(ctx, "p", 1)
	s.ErrorIs(err, context.Canceled)
}

func (s *EngineSuite) TestDueHoldReleasedOnceUnderRace() {
	s.publish("p", model.TierPremium, at(t0.Add(48*time.Hour)), 5)
	h, err := s.engine.ReserveSeats(s.ctx, "p", 2)
	s.Require().NoError(err)
	s.clock.Advance(16 * time.Minute)

	var (
		wg    sync.WaitGroup
		swept atomic.Int64
	)
	for i := 0; i < 90; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 3 {
			case 0:
				s.ErrorIs(s.engine.ConfirmHold(s.ctx, h.ID), ErrHoldNotActive)
			case 1:
				if err := s.engine.ReleaseHold(s.ctx, h.ID, model.ReleaseCancelled); err != nil {
					s.ErrorIs(err, ErrInvalidHoldTransition)
				}
			default:
				swept.Add(int64(s.engine.SweepExpired(s.ctx)))
			}
		}(i)
	}
	wg.Wait()

	s.LessOrEqual(swept.Load(), int64(1))
	s.Equal([]string{h.ID}, s.rec.holdIDs(model.NotifyHoldExpired))
	s.Equal(0, s.rec.count(model.NotifyHoldCancelled))
	s.Equal(0, s.rec.count(model.NotifyHoldConfirmed))
	s.Equal(model.CapacitySnapshot{TotalSeats: 5, AvailableSeats: 5}, s.capacity("p"))
}

func (s *EngineSuite) TestReleaseActiveHoldKeepsConfirmedSeats() {
	s.publish("p", model.TierPremium, at(t0.Add(48*time.Hour)), 4)
	paid, err := s.engine.ReserveSeats(s.ctx, "p", 2)
	s.Require().NoError(err)
	s.Require().NoError(s.engine.ConfirmHold(s.ctx, paid.ID))
	unpaid, err := s.engine.ReserveSeats(s.ctx, "p", 1)
	s.Require().NoError(err)

	s.ErrorIs(s.engine.ReleaseActiveHold(s.ctx, paid.ID, model.ReleaseCancelled), ErrHoldNotActive)
	s.NoError(s.engine.ReleaseActiveHold(s.ctx, unpaid.ID, model.ReleaseCancelled))
	s.Equal(model.CapacitySnapshot{TotalSeats: 4, AvailableSeats: 2, ConfirmedSeats: 2}, s.capacity("p"))
	s.Equal([]string{unpaid.ID}, s.rec.holdIDs(model.NotifyHoldCancelled))
}

func TestDeliveriesFollowApplyOrder(t *testing.T) {
	ctx := context.Background()
	n := &gatedNotifier{
		kind:   model.NotifyHoldCreated,
		parked: make(chan string, 1),
		gate:   make(chan struct{}),
	}
	e := New(DefaultConfig(), WithClock(clockwork.NewFakeClockAt(t0)), WithNotifier(n))
	require.NoError(t, e.Publish(ctx, model.DepartureSchedule{
		ID:                   "p",
		RouteID:              "r",
		Tier:                 model.TierPremium,
		ScheduledDepartureAt: at(t0.Add(48 * time.Hour)),
	}, 4, nil))

	reserved := make(chan error, 1)
	go func() {
		_, err := e.ReserveSeats(ctx, "p", 2)
		reserved <- err
	}()
	holdID := <-n.parked

	var done atomic.Bool
	confirmed := make(chan error, 1)
	go func() {
		confirmed <- e.ConfirmHold(ctx, holdID)
		done.Store(true)
	}()
	assert.Never(t, done.Load, 50*time.Millisecond, 5*time.Millisecond,
		"confirmation delivered while the creation was still pending")

	close(n.gate)
	require.NoError(t, <-reserved)
	require.NoError(t, <-confirmed)
	assert.Equal(t, []model.NotificationKind{model.NotifyHoldCreated, model.NotifyHoldConfirmed}, n.holdKinds())

	_, c, err := e.Snapshot("p")
	require.NoError(t, err)
	assert.Equal(t, model.CapacitySnapshot{TotalSeats: 4, AvailableSeats: 2, ConfirmedSeats: 2}, c)
}
