package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"github.com/iliyamo/trip-departure-scheduler/internal/config"
	"github.com/iliyamo/trip-departure-scheduler/internal/logger"
)

// Driver is the periodic surface of the engine.
type Driver interface {
	Tick(ctx context.Context)
	SweepExpired(ctx context.Context) int
	RefreshContext(ctx context.Context)
}

// Job names.
const (
	JobTick    = "lifecycle-tick"
	JobSweep   = "hold-sweep"
	JobRefresh = "context-refresh"
)

// Jobs owns the gocron scheduler that drives the engine in the background.
type Jobs struct {
	sched  gocron.Scheduler
	byName map[string]gocron.Job
}

// NewJobs registers the tick, sweep and refresh jobs.  Every job runs in
// singleton mode: a slow run is never overlapped by the next one.  The
// refresh job also syncs newly published schedules when loader is set.
func NewJobs(ctx context.Context, engine Driver, loader *Loader, cfg config.SchedulerConfig, clock clockwork.Clock, log logger.Logger) (*Jobs, error) {
	s, err := gocron.NewScheduler(
		gocron.WithClock(clock),
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	j := &Jobs{sched: s, byName: map[string]gocron.Job{}}

	add := func(name string, every time.Duration, fn func()) error {
		job, err := s.NewJob(
			gocron.DurationJob(every),
			gocron.NewTask(fn),
			gocron.WithName(name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
		j.byName[name] = job
		return nil
	}

	if err := add(JobTick, cfg.TickInterval, func() { engine.Tick(ctx) }); err != nil {
		return nil, err
	}
	if err := add(JobSweep, cfg.SweepInterval, func() { engine.SweepExpired(ctx) }); err != nil {
		return nil, err
	}
	refresh := func() {
		if loader != nil {
			if _, err := loader.Sync(ctx); err != nil {
				log.Error("schedule sync failed", "error", err)
			}
		}
		engine.RefreshContext(ctx)
	}
	if err := add(JobRefresh, cfg.ContextRefreshInterval, refresh); err != nil {
		return nil, err
	}
	return j, nil
}

// Start begins running the jobs.
func (j *Jobs) Start() { j.sched.Start() }

// RunNow triggers a job out of schedule.
func (j *Jobs) RunNow(name string) error {
	job, ok := j.byName[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return job.RunNow()
}

// Shutdown stops the scheduler and waits for running jobs.
func (j *Jobs) Shutdown() error { return j.sched.Shutdown() }
