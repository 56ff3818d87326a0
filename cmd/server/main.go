// Command server runs the trip departure scheduler.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/trip-departure-scheduler/internal/calendar"
	"github.com/iliyamo/trip-departure-scheduler/internal/config"
	"github.com/iliyamo/trip-departure-scheduler/internal/database"
	"github.com/iliyamo/trip-departure-scheduler/internal/handler"
	"github.com/iliyamo/trip-departure-scheduler/internal/logger"
	"github.com/iliyamo/trip-departure-scheduler/internal/metrics"
	"github.com/iliyamo/trip-departure-scheduler/internal/middleware"
	"github.com/iliyamo/trip-departure-scheduler/internal/model"
	"github.com/iliyamo/trip-departure-scheduler/internal/queue"
	"github.com/iliyamo/trip-departure-scheduler/internal/repository"
	"github.com/iliyamo/trip-departure-scheduler/internal/router"
	"github.com/iliyamo/trip-departure-scheduler/internal/scheduler"
	"github.com/iliyamo/trip-departure-scheduler/internal/service"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", "error", err)
	}
}

func run(cfg config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics("trip_scheduler", reg)

	db, err := database.Open(ctx, database.DSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	rdb := config.NewRedisClient(ctx)
	if rdb == nil {
		log.Warn("redis unavailable; fill-history cache and rate limiting disabled")
	} else {
		defer rdb.Close()
	}

	schedules := repository.NewScheduleRepo(db)
	holds := repository.NewHoldRepo(db)
	fills := repository.NewFillStatsRepo(db)
	history := service.NewFillHistory(rdb, fills, cfg.FillCacheTTL, log)

	clock := clockwork.NewRealClock()
	oracle, err := newCalendar(ctx, cfg.Calendar, clock, log)
	if err != nil {
		return err
	}

	sinks := []service.Sink{service.NewJournal(schedules, holds, fills, history.Forget)}
	if cfg.AMQPURL != "" {
		pub := queue.NewPublisher(queue.DialURL(cfg.AMQPURL))
		defer pub.Close()
		sinks = append(sinks, pub)
	}
	dispatcher := service.NewDispatcher(cfg.Dispatch.Workers, cfg.Dispatch.Buffer, log, m, sinks...)
	defer dispatcher.Close()

	engine := scheduler.New(engineConfig(cfg.Scheduler),
		scheduler.WithClock(clock),
		scheduler.WithCalendar(oracle),
		scheduler.WithFillHistory(history),
		scheduler.WithNotifier(dispatcher),
		scheduler.WithLogger(log),
		scheduler.WithMetrics(m),
	)

	loader := service.NewLoader(engine, schedules, holds, log)
	if _, err := loader.Sync(ctx); err != nil {
		return fmt.Errorf("restore schedules: %w", err)
	}

	jobs, err := service.NewJobs(ctx, engine, loader, cfg.Scheduler, clock, log)
	if err != nil {
		return err
	}
	jobs.Start()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			log.Debug("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency.String())
			return nil
		},
	}))
	router.RegisterRoutes(e, router.Deps{
		Schedules:   handler.NewScheduleHandler(engine, log),
		JWTSecret:   cfg.JWTSecret,
		ReserveRate: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, clock, log),
		Ready:       handler.Ready(db),
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", "addr", ":"+cfg.Port, "env", cfg.Env)
		if err := e.Start(":" + cfg.Port); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.AMQPURL != "" {
		consumer := queue.NewPaymentConsumer(cfg.AMQPURL, engine, log)
		g.Go(func() error { return consumer.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := e.Shutdown(shutdownCtx)
		return errors.Join(err, jobs.Shutdown())
	})
	return g.Wait()
}

func engineConfig(s config.SchedulerConfig) scheduler.Config {
	cfg := scheduler.DefaultConfig()
	cfg.HoldTTL = s.HoldTTL
	cfg.BoardingLead = s.BoardingLead
	cfg.WeekendShift = s.WeekendShift
	cfg.HolidayShift = s.HolidayShift
	cfg.DefaultFillDuration = s.DefaultFillDuration
	cfg.AutoCancel[model.ScheduleFlexible] = scheduler.AutoCancelPolicy{
		Enabled:      true,
		Cutoff:       s.FlexCancelCutoff,
		MinFillRatio: s.FlexMinFill,
	}
	return cfg
}

func newCalendar(ctx context.Context, c config.CalendarConfig, clock clockwork.Clock, log logger.Logger) (*calendar.Oracle, error) {
	loc, err := time.LoadLocation(c.Location)
	if err != nil {
		return nil, fmt.Errorf("calendar location %q: %w", c.Location, err)
	}
	if c.GoogleAPIKey != "" {
		src, err := calendar.NewGoogleHolidays(ctx, c.GoogleAPIKey, c.GoogleID, loc)
		if err != nil {
			return nil, err
		}
		log.Info("holidays from google calendar", "calendar_id", c.GoogleID)
		return calendar.NewOracle(loc, src, log, calendar.WithClock(clock)), nil
	}
	src, err := calendar.NewStaticHolidays(c.Holidays)
	if err != nil {
		return nil, fmt.Errorf("CALENDAR_HOLIDAYS: %w", err)
	}
	return calendar.NewOracle(loc, src, log, calendar.WithClock(clock)), nil
}
