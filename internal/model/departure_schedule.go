package model

import "time"

// DepartureStatus is the lifecycle state of a departure schedule.
type DepartureStatus string

const (
	StatusScheduled DepartureStatus = "SCHEDULED"
	StatusBoarding  DepartureStatus = "BOARDING"
	StatusDeparted  DepartureStatus = "DEPARTED"
	StatusCancelled DepartureStatus = "CANCELLED"
)

// Terminal reports whether no further lifecycle transition is possible.
func (s DepartureStatus) Terminal() bool {
	return s == StatusDeparted || s == StatusCancelled
}

// DepartureSchedule is one published run of a vehicle on a route at a
// service tier.  It is created when the run is published and mutated only
// by the scheduling engine (status and estimate) or by an operator
// cancellation.
//
// Fields:
//
//	ID                   – schedule identifier.
//	RouteID              – route the vehicle runs on.
//	VehicleID            – vehicle assigned to the run.
//	Tier                 – service tier; decides the departure policy.
//	ScheduledDepartureAt – nominal departure (nil for pure flexible runs).
//	EstimatedDepartureAt – current departure estimate, always set.
//	IsEstimated          – true while the estimate is a statistical prediction.
//	Status               – lifecycle state.
//	PublishedAt          – when the run was published.
//	FullAt               – instant the run first reached full capacity before
//	                       its target, latched for early-full departures.
//	CancelReason         – operator or automatic cancellation reason.
type DepartureSchedule struct {
	ID                   string          // departure_schedules.id
	RouteID              string          // departure_schedules.route_id
	VehicleID            string          // departure_schedules.vehicle_id
	Tier                 ServiceTier     // departure_schedules.service_tier
	ScheduledDepartureAt *time.Time      // departure_schedules.scheduled_departure_at (nullable)
	EstimatedDepartureAt time.Time       // departure_schedules.estimated_departure_at
	IsEstimated          bool            // departure_schedules.is_estimated
	Status               DepartureStatus // departure_schedules.status
	PublishedAt          time.Time       // departure_schedules.published_at
	FullAt               *time.Time      // departure_schedules.full_at (nullable)
	CancelReason         string          // departure_schedules.cancel_reason
}

// ScheduleStatus is the read model returned to callers asking about a run.
type ScheduleStatus struct {
	ScheduleID           string          `json:"schedule_id"`
	Status               DepartureStatus `json:"status"`
	EstimatedDepartureAt time.Time       `json:"estimated_departure_at"`
	IsEstimated          bool            `json:"is_estimated"`
	FillRatio            float64         `json:"fill_ratio"`
}

// CalendarContext carries the calendar facts that shift a semi-fixed
// departure.  It is resolved outside the engine and injected.
type CalendarContext struct {
	IsWeekend bool
	IsHoliday bool
}
