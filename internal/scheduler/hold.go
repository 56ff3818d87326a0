package scheduler

import (
	"fmt"
	"time"

	"github.com/iliyamo/trip-departure-scheduler/internal/model"
)

// holdTransitions lists every legal hold status change.  Anything absent
// is rejected with ErrInvalidHoldTransition.
var holdTransitions = map[model.HoldStatus][]model.HoldStatus{
	model.HoldActive:    {model.HoldConfirmed, model.HoldExpired, model.HoldCancelled},
	model.HoldConfirmed: {model.HoldCancelled},
}

func canTransitionHold(from, to model.HoldStatus) bool {
	for _, s := range holdTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// transitionHold moves h to the target status or returns
// ErrInvalidHoldTransition.  It does not touch seat counters.
func transitionHold(h *model.ReservationHold, to model.HoldStatus, now time.Time) error {
	if !canTransitionHold(h.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidHoldTransition, h.Status, to)
	}
	h.Status = to
	h.UpdatedAt = now
	return nil
}

// IsExpired is the one expiry predicate shared by lazy checks and the
// sweep: a hold is expired once it is still ACTIVE at or after ExpiresAt.
func IsExpired(h model.ReservationHold, now time.Time) bool {
	return h.Status == model.HoldActive && !now.Before(h.ExpiresAt)
}

func statusForReason(r model.ReleaseReason) (model.HoldStatus, error) {
	switch r {
	case model.ReleaseExpired:
		return model.HoldExpired, nil
	case model.ReleaseCancelled:
		return model.HoldCancelled, nil
	}
	return "", fmt.Errorf("%w: unknown release reason %q", ErrInvalidHoldTransition, r)
}
