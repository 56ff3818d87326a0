package scheduler

import "errors"

// Capacity errors.  The caller may retry with fewer seats or another run.
var (
	// ErrInsufficientCapacity is returned when a reservation asks for more
	// seats than the schedule has available.
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	// ErrInvalidSeatCount is returned for reservations of zero or fewer seats.
	ErrInvalidSeatCount = errors.New("seat count must be positive")
)

// State errors.  They indicate the caller is acting on a stale view.
var (
	ErrHoldNotActive           = errors.New("hold is not active")
	ErrInvalidHoldTransition   = errors.New("invalid hold transition")
	ErrScheduleAlreadyTerminal = errors.New("schedule already terminal")
	ErrScheduleNotBookable     = errors.New("schedule not bookable")

	ErrInvalidScheduleTransition = errors.New("invalid schedule transition")
)

// Not-found errors.  The caller should refresh its state.
var (
	ErrHoldNotFound     = errors.New("hold not found")
	ErrScheduleNotFound = errors.New("schedule not found")
)

// ErrScheduleExists is returned when publishing a schedule ID twice.
var ErrScheduleExists = errors.New("schedule already published")

// ErrInvalidSchedule is returned by Publish for inconsistent input, e.g. a
// fixed-time tier without a scheduled departure.
var ErrInvalidSchedule = errors.New("invalid schedule")

// ErrLedgerCorrupted means a seat accounting invariant was violated.  The
// affected schedule refuses further operations; other schedules continue.
var ErrLedgerCorrupted = errors.New("ledger invariant violated")

// Category groups errors by how a caller should react.
type Category int

const (
	CategoryNone Category = iota
	CategoryCapacity
	CategoryState
	CategoryNotFound
	CategoryInternal
)

// Classify maps an error returned by the engine onto its Category.
func Classify(err error) Category {
	switch {
	case err == nil:
		return CategoryNone
	case errors.Is(err, ErrInsufficientCapacity), errors.Is(err, ErrInvalidSeatCount):
		return CategoryCapacity
	case errors.Is(err, ErrHoldNotActive), errors.Is(err, ErrInvalidHoldTransition),
		errors.Is(err, ErrScheduleAlreadyTerminal), errors.Is(err, ErrScheduleNotBookable),
		errors.Is(err, ErrScheduleExists), errors.Is(err, ErrInvalidScheduleTransition):
		return CategoryState
	case errors.Is(err, ErrHoldNotFound), errors.Is(err, ErrScheduleNotFound):
		return CategoryNotFound
	}
	return CategoryInternal
}
