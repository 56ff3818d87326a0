package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/trip-departure-scheduler/internal/model"
)

// HoldRepo provides access to the reservation_holds table.  Rows are never
// deleted; terminal holds stay for audit.
type HoldRepo struct {
	db *sql.DB
}

// NewHoldRepo returns a HoldRepo bound to db.
func NewHoldRepo(db *sql.DB) *HoldRepo { return &HoldRepo{db: db} }

// Upsert inserts a hold or, if it already exists, records its new status.
// Seat count and expiry never change after creation.
func (r *HoldRepo) Upsert(ctx context.Context, h model.ReservationHold) error {
	const q = `INSERT INTO reservation_holds (id, schedule_id, seat_count, status, created_at, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE status = VALUES(status), updated_at = VALUES(updated_at)`
	_, err := r.db.ExecContext(ctx, q, h.ID, h.ScheduleID, h.SeatCount, string(h.Status),
		h.CreatedAt.UTC(), h.ExpiresAt.UTC(), h.UpdatedAt.UTC())
	return err
}

// ListOpenBySchedule returns the ACTIVE and CONFIRMED holds of a schedule,
// oldest first.  ACTIVE rows past their expiry are returned as well; the
// engine expires them on its next sweep.
func (r *HoldRepo) ListOpenBySchedule(ctx context.Context, scheduleID string) ([]model.ReservationHold, error) {
	const q = `SELECT id, schedule_id, seat_count, status, created_at, expires_at, updated_at
		FROM reservation_holds
		WHERE schedule_id = ? AND status IN (?, ?)
		ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, q, scheduleID, string(model.HoldActive), string(model.HoldConfirmed))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ReservationHold
	for rows.Next() {
		var (
			h      model.ReservationHold
			status string
		)
		if err := rows.Scan(&h.ID, &h.ScheduleID, &h.SeatCount, &status, &h.CreatedAt, &h.ExpiresAt, &h.UpdatedAt); err != nil {
			return nil, err
		}
		h.Status = model.HoldStatus(status)
		h.CreatedAt, h.ExpiresAt, h.UpdatedAt = h.CreatedAt.UTC(), h.ExpiresAt.UTC(), h.UpdatedAt.UTC()
		out = append(out, h)
	}
	return out, rows.Err()
}
