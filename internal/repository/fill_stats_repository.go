package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/trip-departure-scheduler/internal/model"
)

// FillStatsRepo keeps a running average of how long a route takes to fill
// up, per service tier.
type FillStatsRepo struct {
	db *sql.DB
}

// NewFillStatsRepo returns a FillStatsRepo bound to db.
func NewFillStatsRepo(db *sql.DB) *FillStatsRepo { return &FillStatsRepo{db: db} }

// AverageFillDuration returns the recorded average.  ok is false when the
// route has no samples yet.
func (r *FillStatsRepo) AverageFillDuration(ctx context.Context, routeID string, tier model.ServiceTier) (d time.Duration, ok bool, err error) {
	const q = `SELECT avg_fill_seconds FROM route_fill_stats WHERE route_id = ? AND service_tier = ?`
	var secs int64
	err = r.db.QueryRowContext(ctx, q, routeID, string(tier)).Scan(&secs)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return time.Duration(secs) * time.Second, true, nil
}

// RecordFill folds one observed fill duration into the route's average.
func (r *FillStatsRepo) RecordFill(ctx context.Context, routeID string, tier model.ServiceTier, d time.Duration) error {
	const q = `INSERT INTO route_fill_stats (route_id, service_tier, avg_fill_seconds, samples)
		VALUES (?, ?, ?, 1)
		ON DUPLICATE KEY UPDATE
			avg_fill_seconds = (avg_fill_seconds * samples + VALUES(avg_fill_seconds)) DIV (samples + 1),
			samples = samples + 1`
	_, err := r.db.ExecContext(ctx, q, routeID, string(tier), int64(d/time.Second))
	return err
}
