package core

import (
	"compliancedash/pkg/domain"
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder exports operation counts, latency and committed
// changes as Prometheus collectors.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	changes    *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder registers the service collectors with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusMetricsRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "compliance",
			Subsystem: "core",
			Name:      "operations_total",
			Help:      "Service operations by name and outcome.",
		}, []string{"operation", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "compliance",
			Subsystem: "core",
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "compliance",
			Subsystem: "core",
			Name:      "changes_total",
			Help:      "Committed record changes by entity and action.",
		}, []string{"entity", "action"}),
	}
	for _, c := range []prometheus.Collector{r.operations, r.durations, r.changes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Observe records a service operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordChanges counts the changes of a committed transaction.
func (r *PrometheusMetricsRecorder) RecordChanges(_ context.Context, res domain.Result) {
	for _, c := range res.Changes {
		r.changes.WithLabelValues(string(c.Entity), string(c.Action)).Inc()
	}
}

// LogAuditRecorder writes audit entries to a Logger.
type LogAuditRecorder struct {
	logger Logger
}

// NewLogAuditRecorder returns a recorder logging to logger.
func NewLogAuditRecorder(logger Logger) *LogAuditRecorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &LogAuditRecorder{logger: logger}
}

// Record implements AuditRecorder.
func (r *LogAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	args := []any{
		"operation", entry.Operation,
		"entity", string(entry.Entity),
		"action", string(entry.Action),
		"status", string(entry.Status),
		"duration_ms", entry.Duration.Milliseconds(),
	}
	if entry.EntityID != "" {
		args = append(args, "entity_id", entry.EntityID)
	}
	if entry.Actor != "" {
		args = append(args, "actor", entry.Actor)
	}
	if entry.Status == AuditStatusError {
		r.logger.Warn("audit", append(args, "error", entry.Error)...)
		return
	}
	r.logger.Info("audit", args...)
}

// LogTracer emits one debug line per finished span.
type LogTracer struct {
	logger Logger
}

// NewLogTracer returns a tracer logging spans to logger.
func NewLogTracer(logger Logger) *LogTracer {
	if logger == nil {
		logger = noopLogger{}
	}
	return &LogTracer{logger: logger}
}

// Start implements Tracer.
func (t *LogTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &logSpan{logger: t.logger, operation: operation, started: time.Now()}
}

type logSpan struct {
	logger    Logger
	operation string
	started   time.Time
}

func (s *logSpan) End(err error) {
	args := []any{"operation", s.operation, "duration_ms", time.Since(s.started).Milliseconds()}
	if err != nil {
		args = append(args, "status", "error", "error", err)
	} else {
		args = append(args, "status", "success")
	}
	s.logger.Debug("span", args...)
}
