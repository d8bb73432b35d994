// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	Interactions         *prometheus.CounterVec // labels: type, outcome
	DeferredTasksStarted *prometheus.CounterVec // labels: task
	DeferredTasksFailed  *prometheus.CounterVec // labels: task
	TokenRefreshes       *prometheus.CounterVec // labels: kind, outcome
	PersistenceOps       *prometheus.CounterVec // labels: backend, op, outcome

	// Histograms (seconds)
	PersistenceDuration *prometheus.HistogramVec // labels: backend, op
	UpstreamDuration    *prometheus.HistogramVec // labels: api, op

	// Gauges
	ActiveSessions prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		Interactions = promauto.NewCounterVec(prometheus.CounterOpts{Name: "grizzpector_interactions_total", Help: "Inbound interactions by type and outcome"}, []string{"type", "outcome"})
		DeferredTasksStarted = promauto.NewCounterVec(prometheus.CounterOpts{Name: "grizzpector_deferred_tasks_started_total", Help: "Deferred interaction tasks started"}, []string{"task"})
		DeferredTasksFailed = promauto.NewCounterVec(prometheus.CounterOpts{Name: "grizzpector_deferred_tasks_failed_total", Help: "Deferred interaction tasks that returned an error"}, []string{"task"})
		TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{Name: "grizzpector_token_refreshes_total", Help: "Token refresh attempts by token kind and outcome"}, []string{"kind", "outcome"})
		PersistenceOps = promauto.NewCounterVec(prometheus.CounterOpts{Name: "grizzpector_persistence_ops_total", Help: "Persistence provider operations"}, []string{"backend", "op", "outcome"})
		PersistenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "grizzpector_persistence_duration_seconds", Help: "Persistence provider operation duration seconds", Buckets: prometheus.DefBuckets}, []string{"backend", "op"})
		UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "grizzpector_upstream_duration_seconds", Help: "Upstream API call duration seconds", Buckets: prometheus.DefBuckets}, []string{"api", "op"})
		ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{Name: "grizzpector_active_sessions", Help: "Sessions currently held by the credential store"})
	})
}

// RecordInteraction counts a handled interaction.
func RecordInteraction(kind, outcome string) {
	if Interactions != nil {
		Interactions.WithLabelValues(kind, outcome).Inc()
	}
}

// RecordRefresh counts a token refresh attempt for kind ("outer" or "inner").
func RecordRefresh(kind string, err error) {
	if TokenRefreshes != nil {
		TokenRefreshes.WithLabelValues(kind, outcome(err)).Inc()
	}
}

// RecordPersistence counts a persistence operation and observes its duration.
func RecordPersistence(backend, op string, d time.Duration, err error) {
	if PersistenceOps != nil {
		PersistenceOps.WithLabelValues(backend, op, outcome(err)).Inc()
	}
	if PersistenceDuration != nil {
		PersistenceDuration.WithLabelValues(backend, op).Observe(d.Seconds())
	}
}

// UpstreamObserver returns the duration observer for one upstream operation, or nil
// before Init.
func UpstreamObserver(api, op string) prometheus.Observer {
	if UpstreamDuration == nil {
		return nil
	}
	return UpstreamDuration.WithLabelValues(api, op)
}

// SetActiveSessions records the number of registered sessions.
func SetActiveSessions(n int) {
	if ActiveSessions != nil {
		ActiveSessions.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
