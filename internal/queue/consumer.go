package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/trip-departure-scheduler/internal/logger"
	"github.com/iliyamo/trip-departure-scheduler/internal/model"
	"github.com/iliyamo/trip-departure-scheduler/internal/scheduler"
)

// PaymentQueue carries settlement results from the payment service.
const PaymentQueue = "payment.results"

const (
	minReconnectDelay = time.Second
	maxReconnectDelay = 30 * time.Second
)

// HoldSettler is the part of the engine payment results act on.
type HoldSettler interface {
	ConfirmHold(ctx context.Context, holdID string) error
	ReleaseHold(ctx context.Context, holdID string, reason model.ReleaseReason) error
}

// PaymentConsumer applies payment results to holds: a successful payment
// confirms the hold, a failed or refunded one cancels it.
type PaymentConsumer struct {
	url    string
	engine HoldSettler
	log    logger.Logger
}

func NewPaymentConsumer(url string, engine HoldSettler, log logger.Logger) *PaymentConsumer {
	return &PaymentConsumer{url: url, engine: engine, log: log}
}

// Run consumes until ctx is cancelled, reconnecting with exponential
// backoff whenever the broker connection drops.
func (c *PaymentConsumer) Run(ctx context.Context) error {
	backoff := minReconnectDelay
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn("payment consumer disconnected", "error", err, "retry_in", backoff.String())
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < maxReconnectDelay {
			backoff *= 2
		}
	}
}

func (c *PaymentConsumer) consume(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("set QoS failed", "error", err)
	}
	if _, err := ch.QueueDeclare(PaymentQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, PaymentQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.log.Info("payment consumer started", "queue", PaymentQueue)

	for d := range msgs {
		if err := c.Handle(ctx, d.Body); err != nil {
			retry := requeue(err)
			c.log.Error("payment result rejected", "error", err, "requeue", retry)
			_ = d.Nack(false, retry) // poison messages are dead-lettered
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// Handle applies one payment result.  Outcomes that no longer apply, such
// as a success for a hold that already expired, are logged and
// acknowledged; an error is returned only for messages that could not be
// applied.
func (c *PaymentConsumer) Handle(ctx context.Context, body []byte) error {
	var res PaymentResult
	if err := json.Unmarshal(body, &res); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := res.Validate(); err != nil {
		return err
	}

	// a result already taken off the queue is applied even during shutdown
	ctx = context.WithoutCancel(ctx)
	var err error
	switch res.Outcome {
	case PaymentSucceeded:
		err = c.engine.ConfirmHold(ctx, res.HoldID)
	case PaymentFailed, PaymentRefunded:
		err = c.engine.ReleaseHold(ctx, res.HoldID, model.ReleaseCancelled)
	}

	switch scheduler.Classify(err) {
	case scheduler.CategoryNone:
		c.log.Info("payment result applied", "hold_id", res.HoldID, "outcome", res.Outcome)
		return nil
	case scheduler.CategoryState, scheduler.CategoryNotFound:
		// a late success on an expired hold needs a refund downstream
		c.log.Warn("payment result not applicable", "hold_id", res.HoldID, "outcome", res.Outcome,
			"payment_id", res.PaymentID, "error", err)
		return nil
	default:
		return fmt.Errorf("apply %s for hold %s: %w", res.Outcome, res.HoldID, err)
	}
}

// requeue reports whether a failed delivery should go back to the queue.
// Only interrupted work is retried; bad payloads and engine faults are not.
func requeue(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
