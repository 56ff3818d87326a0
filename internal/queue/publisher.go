package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/trip-departure-scheduler/internal/model"
)

// TripExchange is the topic exchange trip events are published to.
const TripExchange = "trip.events"

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Dialer opens a channel and returns it with a func that closes the
// underlying connection.
type Dialer func() (Channel, func() error, error)

// DialURL returns a Dialer for a broker URL.
func DialURL(url string) Dialer {
	return func() (Channel, func() error, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, nil, fmt.Errorf("dial: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("channel open: %w", err)
		}
		return ch, conn.Close, nil
	}
}

// Publisher is a dispatcher sink that publishes TripEvents as persistent
// JSON messages.  The connection is opened on first use and reopened after
// a publish failure.
type Publisher struct {
	dial Dialer

	mu      sync.Mutex
	ch      Channel
	closeFn func() error
}

func NewPublisher(dial Dialer) *Publisher { return &Publisher{dial: dial} }

func (p *Publisher) Name() string { return "amqp" }

// Deliver implements service.Sink.
func (p *Publisher) Deliver(ctx context.Context, n model.Notification) error {
	body, err := json.Marshal(NewTripEvent(n))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		if err := p.connect(); err != nil {
			return err
		}
	}
	err = p.ch.PublishWithContext(ctx, TripExchange, string(n.Kind), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    n.At.UTC(),
		Type:         string(n.Kind),
		Body:         body,
	})
	if err != nil {
		p.reset()
		return fmt.Errorf("publish %s: %w", n.Kind, err)
	}
	return nil
}

func (p *Publisher) connect() error {
	ch, closeFn, err := p.dial()
	if err != nil {
		return err
	}
	// Durable so bindings survive broker restarts.
	if err := ch.ExchangeDeclare(TripExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = closeFn()
		return fmt.Errorf("exchange declare: %w", err)
	}
	p.ch, p.closeFn = ch, closeFn
	return nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.closeFn != nil {
		_ = p.closeFn()
	}
	p.ch, p.closeFn = nil, nil
}

// Close releases the broker connection.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
}
