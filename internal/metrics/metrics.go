// Package metrics exposes Prometheus instrumentation for the domain stores.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks store activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	SessionsInitialized *prometheus.CounterVec
	StatUpdates         *prometheus.CounterVec
	TasksCompleted      prometheus.Counter
	PointsAwarded       prometheus.Counter
	WorkoutsCreated     prometheus.Counter
	WorkoutsDeleted     prometheus.Counter
	RemoteWriteFailures *prometheus.CounterVec
	FetchDuration       *prometheus.HistogramVec
	ActiveSessions      prometheus.Gauge
}

// New registers all store metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsInitialized: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trainsync_sessions_initialized_total",
			Help: "User sessions initialized, by outcome (found, created, failed)",
		}, []string{"outcome"}),
		StatUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trainsync_stat_updates_total",
			Help: "Counter increments applied to users, by field",
		}, []string{"field"}),
		TasksCompleted: f.NewCounter(prometheus.CounterOpts{
			Name: "trainsync_tasks_completed_total",
			Help: "Tasks marked completed",
		}),
		PointsAwarded: f.NewCounter(prometheus.CounterOpts{
			Name: "trainsync_points_awarded_total",
			Help: "Points awarded for completed tasks",
		}),
		WorkoutsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "trainsync_workouts_created_total",
			Help: "Workout plans created",
		}),
		WorkoutsDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "trainsync_workouts_deleted_total",
			Help: "Workout plans deleted",
		}),
		RemoteWriteFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trainsync_remote_write_failures_total",
			Help: "Record store writes that failed after the in-memory state changed",
		}, []string{"collection"}),
		FetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trainsync_fetch_duration_seconds",
			Help:    "Duration of store fetches from the record store",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"view"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "trainsync_active_sessions",
			Help: "Sessions currently held in memory",
		}),
	}
}

func (m *Metrics) SessionInitialized(outcome string) {
	if m == nil {
		return
	}
	m.SessionsInitialized.WithLabelValues(outcome).Inc()
}

func (m *Metrics) StatUpdated(field string, by int) {
	if m == nil {
		return
	}
	m.StatUpdates.WithLabelValues(field).Add(float64(by))
}

// TaskCompleted records one completion and its reward.
func (m *Metrics) TaskCompleted(points int) {
	if m == nil {
		return
	}
	m.TasksCompleted.Inc()
	m.PointsAwarded.Add(float64(points))
}

func (m *Metrics) WorkoutCreated() {
	if m == nil {
		return
	}
	m.WorkoutsCreated.Inc()
}

func (m *Metrics) WorkoutDeleted() {
	if m == nil {
		return
	}
	m.WorkoutsDeleted.Inc()
}

func (m *Metrics) RemoteWriteFailed(collection string) {
	if m == nil {
		return
	}
	m.RemoteWriteFailures.WithLabelValues(collection).Inc()
}

// ObserveFetch records the duration of a fetch.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveFetch(view string, start time.Time) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(view).Observe(time.Since(start).Seconds())
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}
