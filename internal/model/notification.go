package model

import "time"

// NotificationKind names an outbound event produced by the scheduling
// engine.  The value doubles as the AMQP routing key.
type NotificationKind string

const (
	NotifyHoldCreated       NotificationKind = "hold.created"
	NotifyHoldConfirmed     NotificationKind = "hold.confirmed"
	NotifyHoldExpired       NotificationKind = "hold.expired"
	NotifyHoldCancelled     NotificationKind = "hold.cancelled"
	NotifyEstimateChanged   NotificationKind = "schedule.estimate_changed"
	NotifyScheduleBoarding  NotificationKind = "schedule.boarding"
	NotifyScheduleDeparted  NotificationKind = "schedule.departed"
	NotifyScheduleCancelled NotificationKind = "schedule.cancelled"
)

// Notification is emitted after a schedule's critical section completes.
// Hold is set for hold.* kinds.  Schedule and Capacity always describe the
// state right after the change.
type Notification struct {
	Kind     NotificationKind  `json:"kind"`
	At       time.Time         `json:"at"`
	Schedule DepartureSchedule `json:"schedule"`
	Capacity CapacitySnapshot  `json:"capacity"`
	Hold     *ReservationHold  `json:"hold,omitempty"`
	Reason   string            `json:"reason,omitempty"`
}

// CapacitySnapshot is a copy of a ledger's counters.
type CapacitySnapshot struct {
	TotalSeats      int `json:"total_seats"`
	AvailableSeats  int `json:"available_seats"`
	ActiveHoldSeats int `json:"active_hold_seats"`
	ConfirmedSeats  int `json:"confirmed_seats"`
}
