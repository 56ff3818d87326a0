package service

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/iliyamo/trip-departure-scheduler/internal/logger"
	"github.com/iliyamo/trip-departure-scheduler/internal/metrics"
	"github.com/iliyamo/trip-departure-scheduler/internal/model"
)

// Sink receives every dispatched notification.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n model.Notification) error
}

// deliverTimeout bounds one sink call.
const deliverTimeout = 5 * time.Second

// Dispatcher fans notifications out to sinks without ever blocking the
// engine.  Notifications of one schedule always land on the same shard,
// so they are delivered in the order they were raised.
type Dispatcher struct {
	shards  []chan model.Notification
	sinks   []Sink
	log     logger.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher starts workers shard goroutines, each with a queue of
// buffer notifications.
func NewDispatcher(workers, buffer int, log logger.Logger, m *metrics.Metrics, sinks ...Sink) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	d := &Dispatcher{
		shards:  make([]chan model.Notification, workers),
		sinks:   sinks,
		log:     log,
		metrics: m,
	}
	for i := range d.shards {
		d.shards[i] = make(chan model.Notification, buffer)
		d.wg.Add(1)
		go d.run(d.shards[i])
	}
	return d
}

// Notify implements scheduler.Notifier.  When the shard's queue is full
// the notification is dropped and counted.
func (d *Dispatcher) Notify(n model.Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(n, "dispatcher closed")
		return
	}
	shard := d.shards[xxhash.Sum64String(n.Schedule.ID)%uint64(len(d.shards))]
	select {
	case shard <- n:
	default:
		d.drop(n, "shard queue full")
	}
}

func (d *Dispatcher) drop(n model.Notification, why string) {
	d.metrics.Dropped()
	d.log.Warn("notification dropped", "reason", why, "kind", n.Kind, "schedule_id", n.Schedule.ID)
}

func (d *Dispatcher) run(in <-chan model.Notification) {
	defer d.wg.Done()
	for n := range in {
		for _, s := range d.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
			if err := s.Deliver(ctx, n); err != nil {
				d.log.Error("sink delivery failed", "sink", s.Name(), "kind", n.Kind, "schedule_id", n.Schedule.ID, "error", err)
			}
			cancel()
		}
	}
}

// Close stops accepting notifications and waits until the queued ones
// have been delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, s := range d.shards {
		close(s)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
