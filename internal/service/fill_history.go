package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/trip-departure-scheduler/internal/logger"
	"github.com/iliyamo/trip-departure-scheduler/internal/model"
)

// FillStatsSource is the durable store of per-route fill averages.
type FillStatsSource interface {
	AverageFillDuration(ctx context.Context, routeID string, tier model.ServiceTier) (time.Duration, bool, error)
}

// FillHistory answers average-fill-duration lookups from Redis, falling
// back to the durable source on a miss.  Any failure yields 0, which the
// departure calculator treats as "no history".
type FillHistory struct {
	rdb *redis.Client // nil disables caching
	src FillStatsSource
	ttl time.Duration
	log logger.Logger
}

// NewFillHistory builds a cache-aside FillHistory.  rdb may be nil.
func NewFillHistory(rdb *redis.Client, src FillStatsSource, ttl time.Duration, log logger.Logger) *FillHistory {
	return &FillHistory{rdb: rdb, src: src, ttl: ttl, log: log}
}

func fillKey(routeID string, tier model.ServiceTier) string {
	return fmt.Sprintf("fill:avg:%s:%s", routeID, tier)
}

// AverageFillDuration implements scheduler.FillHistory.
func (h *FillHistory) AverageFillDuration(ctx context.Context, routeID string, tier model.ServiceTier) time.Duration {
	key := fillKey(routeID, tier)
	if h.rdb != nil {
		v, err := h.rdb.Get(ctx, key).Result()
		switch {
		case err == nil:
			if secs, perr := strconv.ParseInt(v, 10, 64); perr == nil {
				return time.Duration(secs) * time.Second
			}
			h.log.Warn("bad cached fill duration", "key", key, "value", v)
		case !errors.Is(err, redis.Nil):
			h.log.Warn("fill cache read failed", "key", key, "error", err)
		}
	}

	d, ok, err := h.src.AverageFillDuration(ctx, routeID, tier)
	if err != nil {
		h.log.Warn("fill history lookup failed", "route_id", routeID, "tier", tier, "error", err)
		return 0
	}
	if !ok {
		return 0
	}
	if h.rdb != nil {
		secs := strconv.FormatInt(int64(d/time.Second), 10)
		if err := h.rdb.Set(ctx, key, secs, h.ttl).Err(); err != nil {
			h.log.Warn("fill cache write failed", "key", key, "error", err)
		}
	}
	return d
}

// Forget drops the cached average so the next lookup reads the source.
func (h *FillHistory) Forget(ctx context.Context, routeID string, tier model.ServiceTier) {
	if h.rdb == nil {
		return
	}
	if err := h.rdb.Del(ctx, fillKey(routeID, tier)).Err(); err != nil {
		h.log.Warn("fill cache evict failed", "route_id", routeID, "error", err)
	}
}
