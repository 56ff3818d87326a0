package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/trip-departure-scheduler/internal/model"
)

// Ledger is the seat inventory of one schedule together with the holds
// placed against it.  It is not safe for concurrent use: the engine
// serializes every call for a schedule behind that schedule's lock.
//
// Every mutation re-checks
//
//	available + held + confirmed == total, all >= 0
//
// and reports ErrLedgerCorrupted when it does not hold.
type Ledger struct {
	scheduleID string

	total     int
	available int
	held      int
	confirmed int

	ttl   time.Duration
	holds map[string]*model.ReservationHold
	newID func() string
}

// NewLedger returns an empty ledger of total seats for a schedule whose
// holds live for ttl.
func NewLedger(scheduleID string, total int, ttl time.Duration) (*Ledger, error) {
	if total <= 0 {
		return nil, fmt.Errorf("%w: total seats must be positive, got %d", ErrInvalidSchedule, total)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: hold ttl must be positive", ErrInvalidSchedule)
	}
	return &Ledger{
		scheduleID: scheduleID,
		total:      total,
		available:  total,
		ttl:        ttl,
		holds:      make(map[string]*model.ReservationHold),
		newID:      uuid.NewString,
	}, nil
}

// Reserve claims seats and returns the new ACTIVE hold.
func (l *Ledger) Reserve(now time.Time, seats int) (model.ReservationHold, error) {
	if seats <= 0 {
		return model.ReservationHold{}, ErrInvalidSeatCount
	}
	if seats > l.available {
		return model.ReservationHold{}, fmt.Errorf("%w: requested %d, available %d", ErrInsufficientCapacity, seats, l.available)
	}
	h := &model.ReservationHold{
		ID:         l.newID(),
		ScheduleID: l.scheduleID,
		SeatCount:  seats,
		Status:     model.HoldActive,
		CreatedAt:  now,
		ExpiresAt:  now.Add(l.ttl),
		UpdatedAt:  now,
	}
	l.available -= seats
	l.held += seats
	l.holds[h.ID] = h
	return *h, l.check()
}

// Confirm moves an ACTIVE hold's seats from held to confirmed.  Callers
// expire due holds first; a hold past its expiry is still refused here.
func (l *Ledger) Confirm(now time.Time, id string) (model.ReservationHold, error) {
	h, ok := l.holds[id]
	if !ok {
		return model.ReservationHold{}, ErrHoldNotFound
	}
	if h.Status != model.HoldActive || IsExpired(*h, now) {
		return *h, fmt.Errorf("%w: hold %s is %s", ErrHoldNotActive, id, h.Status)
	}
	if err := transitionHold(h, model.HoldConfirmed, now); err != nil {
		return *h, err
	}
	l.held -= h.SeatCount
	l.confirmed += h.SeatCount
	return *h, l.check()
}

// Release returns a hold's seats to the available pool.  From ACTIVE any
// reason is accepted; from CONFIRMED only cancellation is.
func (l *Ledger) Release(now time.Time, id string, reason model.ReleaseReason) (model.ReservationHold, error) {
	h, ok := l.holds[id]
	if !ok {
		return model.ReservationHold{}, ErrHoldNotFound
	}
	to, err := statusForReason(reason)
	if err != nil {
		return *h, err
	}
	from := h.Status
	if err := transitionHold(h, to, now); err != nil {
		return *h, err
	}
	switch from {
	case model.HoldActive:
		l.held -= h.SeatCount
	case model.HoldConfirmed:
		l.confirmed -= h.SeatCount
	}
	l.available += h.SeatCount
	return *h, l.check()
}

// ExpireIfDue expires a single hold when IsExpired says so.  It reports
// whether the hold changed.
func (l *Ledger) ExpireIfDue(now time.Time, id string) (model.ReservationHold, bool, error) {
	h, ok := l.holds[id]
	if !ok {
		return model.ReservationHold{}, false, ErrHoldNotFound
	}
	if !IsExpired(*h, now) {
		return *h, false, nil
	}
	released, err := l.Release(now, id, model.ReleaseExpired)
	return released, err == nil, err
}

// ExpireDue expires every due hold and returns them oldest first.
func (l *Ledger) ExpireDue(now time.Time) ([]model.ReservationHold, error) {
	var out []model.ReservationHold
	for _, h := range l.sortedHolds() {
		if !IsExpired(*h, now) {
			continue
		}
		released, err := l.Release(now, h.ID, model.ReleaseExpired)
		if err != nil {
			return out, err
		}
		out = append(out, released)
	}
	return out, nil
}

// OpenHolds returns copies of all ACTIVE and CONFIRMED holds, oldest first.
func (l *Ledger) OpenHolds() []model.ReservationHold {
	var out []model.ReservationHold
	for _, h := range l.sortedHolds() {
		if h.Status == model.HoldActive || h.Status == model.HoldConfirmed {
			out = append(out, *h)
		}
	}
	return out
}

// Hold returns a copy of the hold with the given ID.
func (l *Ledger) Hold(id string) (model.ReservationHold, bool) {
	h, ok := l.holds[id]
	if !ok {
		return model.ReservationHold{}, false
	}
	return *h, true
}

// Restore re-inserts a persisted hold.  Only ACTIVE and CONFIRMED holds
// occupy seats; terminal holds are kept for lookups only.
func (l *Ledger) Restore(h model.ReservationHold) error {
	if h.SeatCount <= 0 {
		return ErrInvalidSeatCount
	}
	if _, dup := l.holds[h.ID]; dup {
		return fmt.Errorf("%w: duplicate hold %s", ErrInvalidSchedule, h.ID)
	}
	switch h.Status {
	case model.HoldActive:
		if h.SeatCount > l.available {
			return ErrInsufficientCapacity
		}
		l.available -= h.SeatCount
		l.held += h.SeatCount
	case model.HoldConfirmed:
		if h.SeatCount > l.available {
			return ErrInsufficientCapacity
		}
		l.available -= h.SeatCount
		l.confirmed += h.SeatCount
	}
	c := h
	l.holds[h.ID] = &c
	return l.check()
}

// FillRatio is the share of seats either held or confirmed.
func (l *Ledger) FillRatio() float64 {
	return float64(l.held+l.confirmed) / float64(l.total)
}

// Full reports whether no seat is available.
func (l *Ledger) Full() bool { return l.available == 0 }

// Snapshot copies the counters.
func (l *Ledger) Snapshot() model.CapacitySnapshot {
	return model.CapacitySnapshot{
		TotalSeats:      l.total,
		AvailableSeats:  l.available,
		ActiveHoldSeats: l.held,
		ConfirmedSeats:  l.confirmed,
	}
}

func (l *Ledger) check() error {
	if l.available < 0 || l.held < 0 || l.confirmed < 0 || l.available+l.held+l.confirmed != l.total {
		return fmt.Errorf("%w: available=%d held=%d confirmed=%d total=%d",
			ErrLedgerCorrupted, l.available, l.held, l.confirmed, l.total)
	}
	return nil
}

func (l *Ledger) sortedHolds() []*model.ReservationHold {
	hs := make([]*model.ReservationHold, 0, len(l.holds))
	for _, h := range l.holds {
		hs = append(hs, h)
	}
	sort.Slice(hs, func(i, j int) bool {
		if hs[i].CreatedAt.Equal(hs[j].CreatedAt) {
			return hs[i].ID < hs[j].ID
		}
		return hs[i].CreatedAt.Before(hs[j].CreatedAt)
	})
	return hs
}
