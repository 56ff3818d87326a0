// Package queue defines message payloads exchanged over the message broker
// together with the publisher and consumer that move them.
package queue

import (
	"fmt"
	"time"

	"github.com/iliyamo/trip-departure-scheduler/internal/model"
)

// TripEvent is published on the trip.events exchange for every
// notification the engine raises.  The routing key is Kind.
type TripEvent struct {
	Kind                 string     `json:"kind"`
	OccurredAt           time.Time  `json:"occurred_at"`
	ScheduleID           string     `json:"schedule_id"`
	RouteID              string     `json:"route_id"`
	Tier                 string     `json:"service_tier"`
	Status               string     `json:"status"`
	EstimatedDepartureAt time.Time  `json:"estimated_departure_at"`
	IsEstimated          bool       `json:"is_estimated"`
	TotalSeats           int        `json:"total_seats"`
	AvailableSeats       int        `json:"available_seats"`
	Hold                 *HoldEvent `json:"hold,omitempty"`
	Reason               string     `json:"reason,omitempty"`
}

// HoldEvent is the hold part of a TripEvent.
type HoldEvent struct {
	HoldID    string    `json:"hold_id"`
	SeatCount int       `json:"seat_count"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewTripEvent flattens a notification into its wire form.
func NewTripEvent(n model.Notification) TripEvent {
	ev := TripEvent{
		Kind:                 string(n.Kind),
		OccurredAt:           n.At.UTC(),
		ScheduleID:           n.Schedule.ID,
		RouteID:              n.Schedule.RouteID,
		Tier:                 string(n.Schedule.Tier),
		Status:               string(n.Schedule.Status),
		EstimatedDepartureAt: n.Schedule.EstimatedDepartureAt.UTC(),
		IsEstimated:          n.Schedule.IsEstimated,
		TotalSeats:           n.Capacity.TotalSeats,
		AvailableSeats:       n.Capacity.AvailableSeats,
		Reason:               n.Reason,
	}
	if h := n.Hold; h != nil {
		ev.Hold = &HoldEvent{HoldID: h.ID, SeatCount: h.SeatCount, Status: string(h.Status), ExpiresAt: h.ExpiresAt.UTC()}
	}
	return ev
}

// PaymentOutcome is the settlement result reported by the payment service.
type PaymentOutcome string

const (
	PaymentSucceeded PaymentOutcome = "succeeded"
	PaymentFailed    PaymentOutcome = "failed"
	PaymentRefunded  PaymentOutcome = "refunded"
)

// PaymentResult is consumed from the payment.results queue.
type PaymentResult struct {
	HoldID    string         `json:"hold_id"`
	Outcome   PaymentOutcome `json:"outcome"`
	PaymentID string         `json:"payment_id,omitempty"`
}

// Validate rejects results that cannot be applied.
func (p PaymentResult) Validate() error {
	if p.HoldID == "" {
		return fmt.Errorf("payment result without hold_id")
	}
	switch p.Outcome {
	case PaymentSucceeded, PaymentFailed, PaymentRefunded:
		return nil
	}
	return fmt.Errorf("unknown payment outcome %q", p.Outcome)
}
