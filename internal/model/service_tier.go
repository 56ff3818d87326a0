package model

import (
	"fmt"
	"strings"
)

// ServiceTier is the commercial class a trip is sold under.  The tier is
// fixed when a route run is published and decides which departure policy
// the run follows.
type ServiceTier string

const (
	TierRegular ServiceTier = "REGULAR"
	TierVIP     ServiceTier = "VIP"
	TierPremium ServiceTier = "PREMIUM"
)

// ScheduleType describes how firmly a run is anchored to the clock.
type ScheduleType string

const (
	ScheduleFlexible  ScheduleType = "FLEXIBLE"
	ScheduleSemiFixed ScheduleType = "SEMI_FIXED"
	ScheduleFixed     ScheduleType = "FIXED"
)

// DeparturePolicy describes what makes a run leave.
type DeparturePolicy string

const (
	PolicyOnFullCapacity           DeparturePolicy = "ON_FULL_CAPACITY"
	PolicyScheduledWithFlexibility DeparturePolicy = "SCHEDULED_WITH_FLEXIBILITY"
	PolicyStrictSchedule           DeparturePolicy = "STRICT_SCHEDULE"
)

// ParseServiceTier converts a stored or user supplied tier name into a
// ServiceTier.  Matching is case-insensitive.
func ParseServiceTier(s string) (ServiceTier, error) {
	switch ServiceTier(strings.ToUpper(strings.TrimSpace(s))) {
	case TierRegular:
		return TierRegular, nil
	case TierVIP:
		return TierVIP, nil
	case TierPremium:
		return TierPremium, nil
	}
	return "", fmt.Errorf("unknown service tier %q", s)
}
