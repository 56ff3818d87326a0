// Package config loads application configuration from environment variables.
package config

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Durations are parsed with time.ParseDuration
// ("15m", "2h").
type Config struct {
	Env       string // application environment (e.g. "dev", "prod")
	Port      string // HTTP port to listen on
	LogLevel  string // zap level: debug, info, warn, error
	DBUser    string // database username
	DBPass    string // database password (optional)
	DBHost    string // database host address
	DBPort    string // database port number
	DBName    string // database name
	JWTSecret string // secret used to verify bearer tokens
	AMQPURL   string // RabbitMQ URL; empty disables publishing and consuming

	FillCacheTTL time.Duration // lifetime of a cached route fill average

	Scheduler SchedulerConfig
	Calendar  CalendarConfig
	Dispatch  DispatchConfig
}

// SchedulerConfig carries the engine's timing knobs and the intervals of
// the background jobs that drive it.
type SchedulerConfig struct {
	HoldTTL                time.Duration // lifetime of an unconfirmed hold
	BoardingLead           time.Duration // boarding opens this long before departure
	WeekendShift           time.Duration // VIP weekend delay
	HolidayShift           time.Duration // VIP holiday delay
	DefaultFillDuration    time.Duration // fill time assumed when a route has no history
	TickInterval           time.Duration // lifecycle re-evaluation period
	SweepInterval          time.Duration // hold expiry sweep period, never above HoldTTL
	ContextRefreshInterval time.Duration // calendar and fill-history refresh period
	FlexCancelCutoff       time.Duration // flexible runs are judged this long after publishing
	FlexMinFill            float64       // minimum viable fill at the cutoff
}

// CalendarConfig selects the holiday source.
type CalendarConfig struct {
	Location     string   // IANA zone used to decide the local date
	Holidays     []string // static YYYY-MM-DD dates
	GoogleAPIKey string   // when set, holidays come from the Calendar API
	GoogleID     string   // public holiday calendar ID
}

// DispatchConfig sizes the notification dispatcher.
type DispatchConfig struct {
	Workers int
	Buffer  int
}

// Load reads a .env file if present, then configuration values from
// environment variables, and returns a Config.  Required variables are
// enforced by must() and missing values cause the program to exit with a
// fatal log message.
func Load() Config {
	_ = godotenv.Load() // a missing .env is fine; real env vars still apply

	cfg := Config{
		Env:          envStr("APP_ENV", "dev"),
		Port:         envStr("APP_PORT", "8080"),
		LogLevel:     envStr("LOG_LEVEL", "info"),
		DBUser:       must("DB_USER"),
		DBPass:       os.Getenv("DB_PASS"), // empty allowed
		DBHost:       must("DB_HOST"),
		DBPort:       must("DB_PORT"),
		DBName:       must("DB_NAME"),
		JWTSecret:    must("JWT_SECRET"),
		AMQPURL:      os.Getenv("AMQP_URL"),
		FillCacheTTL: envDur("FILL_CACHE_TTL", 10*time.Minute),
		Scheduler:    loadScheduler(),
		Calendar: CalendarConfig{
			Location:     envStr("CALENDAR_LOCATION", "UTC"),
			Holidays:     splitList(os.Getenv("CALENDAR_HOLIDAYS")),
			GoogleAPIKey: os.Getenv("GOOGLE_API_KEY"),
			GoogleID:     envStr("GOOGLE_HOLIDAY_CALENDAR_ID", "en.usa#holiday@group.v.calendar.google.com"),
		},
		Dispatch: DispatchConfig{
			Workers: envInt("DISPATCH_WORKERS", 4),
			Buffer:  envInt("DISPATCH_BUFFER", 1024),
		},
	}
	if cfg.Dispatch.Workers < 1 {
		cfg.Dispatch.Workers = 1
	}
	if cfg.Dispatch.Buffer < 1 {
		cfg.Dispatch.Buffer = 1
	}
	return cfg
}

func loadScheduler() SchedulerConfig {
	s := SchedulerConfig{
		HoldTTL:                envDur("HOLD_TTL", 15*time.Minute),
		BoardingLead:           envDur("BOARDING_LEAD", 30*time.Minute),
		WeekendShift:           envDur("WEEKEND_SHIFT", 2*time.Hour),
		HolidayShift:           envDur("HOLIDAY_SHIFT", 24*time.Hour),
		DefaultFillDuration:    envDur("DEFAULT_FILL_DURATION", 3*time.Hour),
		TickInterval:           envDur("TICK_INTERVAL", 30*time.Second),
		SweepInterval:          envDur("SWEEP_INTERVAL", time.Minute),
		ContextRefreshInterval: envDur("CONTEXT_REFRESH_INTERVAL", 5*time.Minute),
		FlexCancelCutoff:       envDur("FLEX_CANCEL_CUTOFF", 12*time.Hour),
		FlexMinFill:            envFloat("FLEX_MIN_FILL", 0.25),
	}
	if s.HoldTTL <= 0 {
		log.Fatalf("HOLD_TTL must be positive, got %s", s.HoldTTL)
	}
	if s.SweepInterval <= 0 || s.SweepInterval > s.HoldTTL {
		s.SweepInterval = s.HoldTTL
	}
	if s.TickInterval <= 0 {
		s.TickInterval = 30 * time.Second
	}
	if s.ContextRefreshInterval <= 0 {
		s.ContextRefreshInterval = 5 * time.Minute
	}
	if s.FlexMinFill < 0 || s.FlexMinFill > 1 {
		log.Fatalf("FLEX_MIN_FILL must be within [0,1], got %v", s.FlexMinFill)
	}
	return s
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envFloat(k string, d float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
