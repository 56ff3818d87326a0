package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all prometheus metrics of the scheduling service.  A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	HoldsReserved       prometheus.Counter
	ReserveRejected     *prometheus.CounterVec
	HoldTransitions     *prometheus.CounterVec
	ScheduleTransitions *prometheus.CounterVec
	LedgerViolations    prometheus.Counter
	DispatchDropped     prometheus.Counter
	OperationDuration   *prometheus.HistogramVec
}

// NewMetrics registers the metrics on reg under namespace.  Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HoldsReserved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "holds_reserved_total",
			Help:      "The total number of seat holds created",
		}),
		ReserveRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reserve_rejected_total",
			Help:      "Seat reservations refused, by reason",
		}, []string{"reason"}),
		HoldTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hold_transitions_total",
			Help:      "Hold status changes out of ACTIVE or CONFIRMED",
		}, []string{"status"}),
		ScheduleTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_transitions_total",
			Help:      "Departure lifecycle transitions, by target status",
		}, []string{"status"}),
		LedgerViolations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_violations_total",
			Help:      "Seat accounting invariant violations",
		}),
		DispatchDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Notifications dropped because a dispatch shard was full",
		}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time spent inside a schedule's critical section",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func (m *Metrics) HoldReserved() {
	if m == nil {
		return
	}
	m.HoldsReserved.Inc()
}

func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.ReserveRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) HoldTransition(status string) {
	if m == nil {
		return
	}
	m.HoldTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) ScheduleTransition(status string) {
	if m == nil {
		return
	}
	m.ScheduleTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) LedgerViolation() {
	if m == nil {
		return
	}
	m.LedgerViolations.Inc()
}

func (m *Metrics) Dropped() {
	if m == nil {
		return
	}
	m.DispatchDropped.Inc()
}

// Observe records how long op took since start.
func (m *Metrics) Observe(op string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
