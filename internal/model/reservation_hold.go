package model

import "time"

// HoldStatus is the state of a reservation hold.
type HoldStatus string

const (
	HoldActive    HoldStatus = "ACTIVE"
	HoldConfirmed HoldStatus = "CONFIRMED"
	HoldExpired   HoldStatus = "EXPIRED"
	HoldCancelled HoldStatus = "CANCELLED"
)

// ReleaseReason says why seats go back to the ledger.  It maps onto the
// terminal hold status the release produces.
type ReleaseReason string

const (
	ReleaseExpired   ReleaseReason = "EXPIRED"
	ReleaseCancelled ReleaseReason = "CANCELLED"
)

// ReservationHold is a short lived claim on seats of one schedule while
// the customer completes payment.  Holds expire at ExpiresAt unless they
// are confirmed first.
//
// Fields:
//
//	ID         – opaque hold identifier returned to the client.
//	ScheduleID – schedule the seats belong to.
//	SeatCount  – number of seats claimed (always > 0).
//	Status     – ACTIVE, CONFIRMED, EXPIRED or CANCELLED.
//	CreatedAt  – when the hold was placed.
//	ExpiresAt  – CreatedAt plus the hold TTL.
//	UpdatedAt  – last status change.
type ReservationHold struct {
	ID         string     `json:"hold_id"`     // reservation_holds.id
	ScheduleID string     `json:"schedule_id"` // reservation_holds.schedule_id
	SeatCount  int        `json:"seat_count"`  // reservation_holds.seat_count
	Status     HoldStatus `json:"status"`      // reservation_holds.status
	CreatedAt  time.Time  `json:"created_at"`  // reservation_holds.created_at
	ExpiresAt  time.Time  `json:"expires_at"`  // reservation_holds.expires_at
	UpdatedAt  time.Time  `json:"updated_at"`  // reservation_holds.updated_at
}
