package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/trip-departure-scheduler/internal/model"
)

// ScheduleRecord is a departure_schedules row: the schedule plus its seat
// counters as last persisted.
type ScheduleRecord struct {
	Schedule model.DepartureSchedule
	Capacity model.CapacitySnapshot
}

// ScheduleRepo provides access to the departure_schedules table.
type ScheduleRepo struct {
	db *sql.DB
}

// NewScheduleRepo returns a ScheduleRepo bound to db.
func NewScheduleRepo(db *sql.DB) *ScheduleRepo { return &ScheduleRepo{db: db} }

const scheduleColumns = `id, route_id, vehicle_id, service_tier, scheduled_departure_at,
	estimated_departure_at, is_estimated, status, published_at, full_at, cancel_reason,
	total_seats, available_seats, held_seats, confirmed_seats`

// ListOpen returns every schedule that has not departed or been
// cancelled, oldest publication first.
func (r *ScheduleRepo) ListOpen(ctx context.Context) ([]ScheduleRecord, error) {
	q := `SELECT ` + scheduleColumns + ` FROM departure_schedules
		WHERE status IN (?, ?) ORDER BY published_at, id`
	rows, err := r.db.QueryContext(ctx, q, string(model.StatusScheduled), string(model.StatusBoarding))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScheduleRecord
	for rows.Next() {
		var (
			rec       ScheduleRecord
			s         = &rec.Schedule
			tier      string
			status    string
			scheduled sql.NullTime
			fullAt    sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.RouteID, &s.VehicleID, &tier, &scheduled,
			&s.EstimatedDepartureAt, &s.IsEstimated, &status, &s.PublishedAt, &fullAt, &s.CancelReason,
			&rec.Capacity.TotalSeats, &rec.Capacity.AvailableSeats, &rec.Capacity.ActiveHoldSeats, &rec.Capacity.ConfirmedSeats,
		); err != nil {
			return nil, err
		}
		s.Tier = model.ServiceTier(tier)
		s.Status = model.DepartureStatus(status)
		s.ScheduledDepartureAt = timePtr(scheduled)
		s.FullAt = timePtr(fullAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveSnapshot writes the mutable part of a schedule and its ledger
// counters.  It returns ErrNotFound when the schedule row does not exist.
func (r *ScheduleRepo) SaveSnapshot(ctx context.Context, s model.DepartureSchedule, c model.CapacitySnapshot) error {
	const q = `UPDATE departure_schedules
		SET estimated_departure_at = ?, is_estimated = ?, status = ?, full_at = ?, cancel_reason = ?,
		    available_seats = ?, held_seats = ?, confirmed_seats = ?
		WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q,
		s.EstimatedDepartureAt.UTC(), s.IsEstimated, string(s.Status), nullTime(s.FullAt), s.CancelReason,
		c.AvailableSeats, c.ActiveHoldSeats, c.ConfirmedSeats, s.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: schedule %s", ErrNotFound, s.ID)
	}
	return nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
