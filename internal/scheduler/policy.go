package scheduler

import "github.com/iliyamo/trip-departure-scheduler/internal/model"

type tierPolicy struct {
	scheduleType model.ScheduleType
	departure    model.DeparturePolicy
}

var policyTable = map[model.ServiceTier]tierPolicy{
	model.TierRegular: {model.ScheduleFlexible, model.PolicyOnFullCapacity},
	model.TierVIP:     {model.ScheduleSemiFixed, model.PolicyScheduledWithFlexibility},
	model.TierPremium: {model.ScheduleFixed, model.PolicyStrictSchedule},
}

// PolicyFor returns the schedule type and departure policy of a tier.
// Unknown tiers fall back to the strictest policy; Publish rejects them
// before they can reach the engine.
func PolicyFor(tier model.ServiceTier) (model.ScheduleType, model.DeparturePolicy) {
	p, ok := policyTable[tier]
	if !ok {
		return model.ScheduleFixed, model.PolicyStrictSchedule
	}
	return p.scheduleType, p.departure
}
