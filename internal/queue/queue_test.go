package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/trip-departure-scheduler/internal/logger"
	"github.com/iliyamo/trip-departure-scheduler/internal/model"
	"github.com/iliyamo/trip-departure-scheduler/internal/scheduler"
)

var t0 = time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	declared  []string
	published []published
	failNext  error
	closed    bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	f.declared = append(f.declared, name+"/"+kind)
	return nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if err := f.failNext; err != nil {
		f.failNext = nil
		return err
	}
	f.published = append(f.published, published{exchange, key, msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublisher_Deliver(t *testing.T) {
	var channels []*fakeChannel
	dial := func() (Channel, func() error, error) {
		ch := &fakeChannel{}
		channels = append(channels, ch)
		return ch, func() error { return nil }, nil
	}
	p := NewPublisher(dial)
	hold := model.ReservationHold{ID: "h1", SeatCount: 2, Status: model.HoldActive, ExpiresAt: t0.Add(15 * time.Minute)}
	n := model.Notification{
		Kind:     model.NotifyHoldCreated,
		At:       t0,
		Schedule: model.DepartureSchedule{ID: "s1", RouteID: "r1", Tier: model.TierVIP, Status: model.StatusScheduled},
		Capacity: model.CapacitySnapshot{TotalSeats: 10, AvailableSeats: 8, ActiveHoldSeats: 2},
		Hold:     &hold,
	}

	require.NoError(t, p.Deliver(context.Background(), n))
	require.Len(t, channels, 1)
	assert.Equal(t, []string{"trip.events/topic"}, channels[0].declared)
	require.Len(t, channels[0].published, 1)
	got := channels[0].published[0]
	assert.Equal(t, TripExchange, got.exchange)
	assert.Equal(t, "hold.created", got.key)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)

	var ev TripEvent
	require.NoError(t, json.Unmarshal(got.msg.Body, &ev))
	assert.Equal(t, "s1", ev.ScheduleID)
	assert.Equal(t, 8, ev.AvailableSeats)
	require.NotNil(t, ev.Hold)
	assert.Equal(t, "h1", ev.Hold.HoldID)

	// a failed publish drops the channel; the next delivery redials
	channels[0].failNext = errors.New("channel closed")
	assert.Error(t, p.Deliver(context.Background(), n))
	assert.True(t, channels[0].closed)
	require.NoError(t, p.Deliver(context.Background(), n))
	assert.Len(t, channels, 2)
}

func TestPublisher_DialError(t *testing.T) {
	p := NewPublisher(func() (Channel, func() error, error) { return nil, nil, errors.New("refused") })
	assert.Error(t, p.Deliver(context.Background(), model.Notification{Kind: model.NotifyScheduleBoarding}))
}

type settlerStub struct {
	confirmed []string
	released  []string
	err       error
}

func (s *settlerStub) ConfirmHold(_ context.Context, id string) error {
	s.confirmed = append(s.confirmed, id)
	return s.err
}

func (s *settlerStub) ReleaseHold(_ context.Context, id string, reason model.ReleaseReason) error {
	if reason != model.ReleaseCancelled {
		return fmt.Errorf("unexpected reason %s", reason)
	}
	s.released = append(s.released, id)
	return s.err
}

func TestPaymentConsumer_Handle(t *testing.T) {
	ctx := context.Background()
	st := &settlerStub{}
	c := NewPaymentConsumer("", st, logger.NewNop())

	require.NoError(t, c.Handle(ctx, []byte(`{"hold_id":"h1","outcome":"succeeded"}`)))
	require.NoError(t, c.Handle(ctx, []byte(`{"hold_id":"h2","outcome":"failed"}`)))
	require.NoError(t, c.Handle(ctx, []byte(`{"hold_id":"h3","outcome":"refunded"}`)))
	assert.Equal(t, []string{"h1"}, st.confirmed)
	assert.Equal(t, []string{"h2", "h3"}, st.released)

	assert.Error(t, c.Handle(ctx, []byte(`not json`)))
	assert.Error(t, c.Handle(ctx, []byte(`{"outcome":"succeeded"}`)))
	assert.Error(t, c.Handle(ctx, []byte(`{"hold_id":"h1","outcome":"pending"}`)))
}

func TestPaymentConsumer_HandleEngineErrors(t *testing.T) {
	ctx := context.Background()
	st := &settlerStub{err: fmt.Errorf("%w: hold h1 expired", scheduler.ErrHoldNotActive)}
	c := NewPaymentConsumer("", st, logger.NewNop())
	assert.NoError(t, c.Handle(ctx, []byte(`{"hold_id":"h1","outcome":"succeeded"}`)))

	st.err = scheduler.ErrHoldNotFound
	assert.NoError(t, c.Handle(ctx, []byte(`{"hold_id":"h1","outcome":"failed"}`)))

	st.err = scheduler.ErrLedgerCorrupted
	assert.ErrorIs(t, c.Handle(ctx, []byte(`{"hold_id":"h1","outcome":"succeeded"}`)), scheduler.ErrLedgerCorrupted)
}

func TestPaymentConsumer_HandleDuringShutdown(t *testing.T) {
	engine := scheduler.New(scheduler.DefaultConfig(), scheduler.WithClock(clockwork.NewFakeClockAt(t0)))
	dep := t0.Add(48 * time.Hour)
	require.NoError(t, engine.Publish(context.Background(), model.DepartureSchedule{
		ID: "s1", RouteID: "r1", Tier: model.TierPremium, ScheduledDepartureAt: &dep,
	}, 4, nil))
	hold, err := engine.ReserveSeats(context.Background(), "s1", 2)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewPaymentConsumer("", engine, logger.NewNop())
	body, err := json.Marshal(PaymentResult{HoldID: hold.ID, Outcome: PaymentSucceeded, PaymentID: "pay-1"})
	require.NoError(t, err)
	require.NoError(t, c.Handle(ctx, body))

	_, snap, err := engine.Snapshot("s1")
	require.NoError(t, err)
	assert.Equal(t, model.CapacitySnapshot{TotalSeats: 4, AvailableSeats: 2, ConfirmedSeats: 2}, snap)
}

func TestRequeueOnlyInterruptedWork(t *testing.T) {
	assert.True(t, requeue(fmt.Errorf("apply succeeded for hold h1: %w", context.Canceled)))
	assert.True(t, requeue(context.DeadlineExceeded))
	assert.False(t, requeue(errors.New("unmarshal: bad json")))
	assert.False(t, requeue(scheduler.ErrLedgerCorrupted))
}
